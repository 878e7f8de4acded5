// Package speech turns interviewer text into audible playback.
//
// The speaker is deliberately forgiving: synthesis and playback problems
// are logged and swallowed so the interview keeps moving. The only error
// Speak ever surfaces is context cancellation.
package speech

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jack-ferreri12/BasicInterviewer-v1/internal/log"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/backend"
)

const (
	// speakTimeout bounds one full synthesize-fetch-play cycle.
	speakTimeout = 30 * time.Second
	// fetchTimeout bounds the audio download alone.
	fetchTimeout = 10 * time.Second
	// defaultDedupWindow suppresses immediate repeats of the same text.
	defaultDedupWindow = 3 * time.Second
)

// Synthesizer produces playable audio for a piece of text.
// *backend.Client satisfies this.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*backend.SynthesisResult, error)
	FetchAudio(ctx context.Context, audioURL string) ([]byte, error)
}

// Speaker serializes text-to-speech playback. It is safe for concurrent
// use, though callers normally speak one utterance at a time.
type Speaker struct {
	synth       Synthesizer
	player      Player
	dedupWindow time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	lastText string
	lastAt   time.Time
}

// SpeakerOption configures a Speaker.
type SpeakerOption func(*Speaker)

// WithLogger sets the speaker logger.
func WithLogger(logger *slog.Logger) SpeakerOption {
	return func(s *Speaker) { s.logger = logger }
}

// WithDedupWindow overrides the repeat-suppression window. Zero disables
// suppression entirely.
func WithDedupWindow(d time.Duration) SpeakerOption {
	return func(s *Speaker) { s.dedupWindow = d }
}

// NewSpeaker builds a Speaker around a synthesizer and a player.
func NewSpeaker(synth Synthesizer, player Player, opts ...SpeakerOption) *Speaker {
	s := &Speaker{
		synth:       synth,
		player:      player,
		dedupWindow: defaultDedupWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.With("component", "speech")
	}
	return s
}

// Speak synthesizes text and plays it, blocking until playback settles.
// Blank text, repeated text inside the dedup window, and every synthesis
// or playback failure settle as nil so the caller's flow continues.
// Only context cancellation is reported.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if s.suppressed(text) {
		s.logger.Debug("duplicate utterance suppressed", "text", text)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, speakTimeout)
	defer cancel()

	res, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("synthesis failed", "error", err, "text", text)
		return nil
	}
	s.markSpoken(text)

	if !res.OK() {
		// Server-side fallback: no audio, the text still counts as said.
		s.logger.Warn("synthesis fell back to text",
			"error", res.Error, "fallback_text", res.FallbackText)
		return nil
	}

	audio, err := s.fetch(ctx, res.AudioURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("audio fetch failed", "error", err, "url", res.AudioURL)
		return nil
	}

	if err := s.player.Play(ctx, audio); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("playback failed", "error", err)
	}
	return nil
}

func (s *Speaker) fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	return s.synth.FetchAudio(ctx, url)
}

// suppressed reports whether text repeats the last successfully initiated
// utterance inside the dedup window.
func (s *Speaker) suppressed(text string) bool {
	if s.dedupWindow <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return text == s.lastText && time.Since(s.lastAt) < s.dedupWindow
}

func (s *Speaker) markSpoken(text string) {
	s.mu.Lock()
	s.lastText = text
	s.lastAt = time.Now()
	s.mu.Unlock()
}
