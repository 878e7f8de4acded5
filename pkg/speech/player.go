package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Player renders one synthesized audio clip and blocks until it finishes.
type Player interface {
	Play(ctx context.Context, audio []byte) error
	Name() string
}

// FFplayPlayer shells out to ffplay for playback. The clip is piped over
// stdin so nothing touches disk.
type FFplayPlayer struct {
	binary string
}

// FFplayOption configures an FFplayPlayer.
type FFplayOption func(*FFplayPlayer)

// WithFFplayBinary overrides the ffplay executable path.
func WithFFplayBinary(path string) FFplayOption {
	return func(p *FFplayPlayer) { p.binary = path }
}

// NewFFplayPlayer builds a player backed by the ffplay binary.
func NewFFplayPlayer(opts ...FFplayOption) *FFplayPlayer {
	p := &FFplayPlayer{binary: "ffplay"}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play pipes the clip into ffplay and waits for it to drain.
func (p *FFplayPlayer) Play(ctx context.Context, audio []byte) error {
	cmd := exec.CommandContext(ctx, p.binary,
		"-autoexit", "-nodisp", "-loglevel", "error", "-")
	cmd.Stdin = bytes.NewReader(audio)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("speech: ffplay: %s: %w", msg, err)
		}
		return fmt.Errorf("speech: ffplay: %w", err)
	}
	return nil
}

// Name implements Player.
func (p *FFplayPlayer) Name() string { return "ffplay" }

// MockPlayer records every clip it is asked to play. Useful in tests and
// when running headless.
type MockPlayer struct {
	// Err, when set, is returned from every Play call.
	Err error

	mu    sync.Mutex
	clips [][]byte
}

// NewMockPlayer builds an empty mock player.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

// Play records the clip and returns the configured error, if any.
func (m *MockPlayer) Play(ctx context.Context, audio []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.mu.Lock()
	clip := make([]byte, len(audio))
	copy(clip, audio)
	m.clips = append(m.clips, clip)
	m.mu.Unlock()
	return m.Err
}

// Name implements Player.
func (m *MockPlayer) Name() string { return "mock" }

// Clips returns a copy of every recorded clip, in play order.
func (m *MockPlayer) Clips() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.clips))
	copy(out, m.clips)
	return out
}

var (
	_ Player = (*FFplayPlayer)(nil)
	_ Player = (*MockPlayer)(nil)
)
