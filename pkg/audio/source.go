package audio

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Device errors surfaced by sources. The capture session maps these onto
// user-facing status strings.
var (
	ErrDeviceNotFound   = errors.New("audio: no capture device found")
	ErrDevicePermission = errors.New("audio: capture permission denied")
	ErrDeviceBusy       = errors.New("audio: capture device already in use")
)

// Source captures raw audio from a microphone or other input.
// Samples are mono floats in [-1, 1] at the source's sample rate.
type Source interface {
	// Start begins capture. It returns a device error if the microphone
	// cannot be acquired.
	Start(ctx context.Context) error

	// Stop halts capture and closes the stream channel.
	// Safe to call multiple times.
	Stop() error

	// Stream returns the channel of captured sample chunks.
	Stream() <-chan []float32

	// SampleRate returns the capture rate in Hz.
	SampleRate() int

	// Name returns the backend name (e.g. "ffmpeg", "mock").
	Name() string
}

// MockSource generates synthetic audio for tests and development without
// a microphone: silence by default, or a sine wave.
type MockSource struct {
	logger     *slog.Logger
	sampleRate int
	chunk      time.Duration

	frequency float64
	amplitude float64

	mu      sync.Mutex
	running bool
	stream  chan []float32
	stop    chan struct{}

	phase float64
}

// MockOption configures a MockSource.
type MockOption func(*MockSource)

// WithSineWave makes the mock generate a sine wave instead of silence.
func WithSineWave(frequency, amplitude float64) MockOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithChunkDuration sets the duration of each generated chunk.
func WithChunkDuration(d time.Duration) MockOption {
	return func(m *MockSource) {
		m.chunk = d
	}
}

// NewMockSource creates a mock source at the given sample rate.
func NewMockSource(sampleRate int, logger *slog.Logger, opts ...MockOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{
		logger:     logger.With("component", "audio.mock"),
		sampleRate: sampleRate,
		chunk:      20 * time.Millisecond,
		amplitude:  0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins generating audio chunks on a ticker.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrDeviceBusy
	}
	m.running = true
	m.stream = make(chan []float32, 16)
	m.stop = make(chan struct{})

	go m.generate(ctx, m.stream, m.stop)
	return nil
}

// Stop halts generation. Safe to call multiple times.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	close(m.stop)
	return nil
}

// Stream returns the generated chunk channel.
func (m *MockSource) Stream() <-chan []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// SampleRate returns the configured rate.
func (m *MockSource) SampleRate() int { return m.sampleRate }

// Name returns "mock".
func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) generate(ctx context.Context, stream chan []float32, stop chan struct{}) {
	defer close(stream)

	samples := m.sampleRate * int(m.chunk.Milliseconds()) / 1000
	ticker := time.NewTicker(m.chunk)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			chunk := make([]float32, samples)
			if m.frequency > 0 {
				step := 2 * math.Pi * m.frequency / float64(m.sampleRate)
				for i := range chunk {
					chunk[i] = float32(m.amplitude * math.Sin(m.phase))
					m.phase += step
				}
				if m.phase > 2*math.Pi {
					m.phase -= 2 * math.Pi * math.Floor(m.phase/(2*math.Pi))
				}
			}
			select {
			case stream <- chunk:
			default:
				// Consumer backed up; drop, mock audio has no value.
			}
		}
	}
}

// Compile-time interface checks.
var _ Source = (*MockSource)(nil)
