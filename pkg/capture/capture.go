// Package capture owns the microphone turn: it wires an audio source into
// the framer and forwards finished frames to the session's transport.
//
// A capture session is single-use. Start acquires the device and begins
// forwarding; Stop detaches the frame consumer before anything else so no
// frame can race past the end-of-audio notification, then releases the
// device. Stop is idempotent and safe to call from any goroutine.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jack-ferreri12/BasicInterviewer-v1/internal/log"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/audio"
)

// FrameSender delivers one encoded PCM16 frame to the transport.
// Implementations must not block; a dropped frame is acceptable,
// a stalled capture pipeline is not.
type FrameSender func(frame []byte)

// Session runs one listening turn against a single audio source.
type Session struct {
	source        audio.Source
	framer        *audio.Framer
	send          FrameSender
	onEnded       func()
	onStatus      func(string)
	frameDuration time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	running bool
	stopped bool
	detach  chan struct{}
	pumps   sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithEndedFunc registers a callback invoked exactly once during Stop,
// after frame forwarding has detached and before the device is released.
// This is where the end-of-audio control frame goes out.
func WithEndedFunc(fn func()) Option {
	return func(s *Session) { s.onEnded = fn }
}

// WithStatusFunc registers a callback for user-facing microphone status
// strings ("microphone active", acquisition failures, release).
func WithStatusFunc(fn func(status string)) Option {
	return func(s *Session) { s.onStatus = fn }
}

// WithFrameDuration overrides the default 20ms frame width.
func WithFrameDuration(d time.Duration) Option {
	return func(s *Session) { s.frameDuration = d }
}

// New builds a capture session around source, delivering frames via send.
func New(source audio.Source, send FrameSender, opts ...Option) *Session {
	s := &Session{
		source:        source,
		send:          send,
		frameDuration: 20 * time.Millisecond,
		detach:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.With("component", "capture")
	}
	s.framer = audio.NewFramer(s.logger)
	return s
}

// Start acquires the audio device and begins streaming frames.
// Device failures come back wrapping audio.ErrDeviceNotFound,
// audio.ErrDevicePermission or audio.ErrDeviceBusy.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("capture: session already stopped")
	}
	if s.running {
		return fmt.Errorf("capture: session already running")
	}

	if err := s.source.Start(ctx); err != nil {
		s.status("microphone unavailable")
		return fmt.Errorf("capture: start source %q: %w", s.source.Name(), err)
	}
	if err := s.framer.Start(s.source.SampleRate(), s.frameDuration); err != nil {
		_ = s.source.Stop()
		return fmt.Errorf("capture: start framer: %w", err)
	}

	s.running = true
	s.pumps.Add(2)
	go s.pumpSamples()
	go s.pumpFrames()

	s.status("microphone active")
	s.logger.Info("capture started",
		"device", s.source.Name(),
		"sample_rate", s.source.SampleRate(),
		"frame_duration", s.frameDuration)
	return nil
}

func (s *Session) status(text string) {
	if s.onStatus != nil {
		s.onStatus(text)
	}
}

// Pause suppresses frame emission without releasing the device.
// Samples arriving while paused are discarded, not queued, so Resume
// never replays stale audio.
func (s *Session) Pause() { s.framer.Pause() }

// Resume re-enables frame emission after Pause.
func (s *Session) Resume() { s.framer.Resume() }

// Stop ends the listening turn. The frame consumer is detached first,
// then the ended callback fires, then the framer and device shut down.
// Subsequent calls are no-ops.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if !wasRunning {
		return
	}

	// Detach forwarding before anything else. After this point no frame
	// reaches the transport, so the ended notification below is ordered
	// strictly after the last frame.
	close(s.detach)

	s.framer.Stop()
	_ = s.source.Stop()
	s.pumps.Wait()

	if s.onEnded != nil {
		s.onEnded()
	}

	s.status("microphone released")
	s.logger.Info("capture stopped",
		"frames_emitted", s.framer.Emitted(),
		"frames_dropped", s.framer.Overruns())
}

// pumpSamples moves raw sample chunks from the source into the framer.
func (s *Session) pumpSamples() {
	defer s.pumps.Done()
	for {
		select {
		case <-s.detach:
			return
		case chunk, ok := <-s.source.Stream():
			if !ok {
				return
			}
			s.framer.Push(chunk)
		}
	}
}

// pumpFrames forwards finished frames to the transport until detached.
func (s *Session) pumpFrames() {
	defer s.pumps.Done()
	for {
		select {
		case <-s.detach:
			return
		case frame, ok := <-s.framer.Frames():
			if !ok {
				return
			}
			// Re-check detach so a frame ready in the same select round
			// cannot slip out after Stop has detached us.
			select {
			case <-s.detach:
				return
			default:
			}
			s.send(frame)
		}
	}
}
