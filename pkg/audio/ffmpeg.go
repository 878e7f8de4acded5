package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// FFmpegSource captures the default microphone by shelling out to ffmpeg
// and reading raw 32-bit float samples from its stdout. It avoids cgo
// audio bindings at the cost of requiring ffmpeg on PATH.
type FFmpegSource struct {
	logger     *slog.Logger
	sampleRate int
	device     string
	binary     string

	mu      sync.Mutex
	running bool
	cmd     *exec.Cmd
	stream  chan []float32
	stop    chan struct{}
}

// FFmpegOption configures an FFmpegSource.
type FFmpegOption func(*FFmpegSource)

// WithDevice overrides the platform default input device.
func WithDevice(device string) FFmpegOption {
	return func(s *FFmpegSource) {
		s.device = device
	}
}

// WithBinary overrides the ffmpeg binary path.
func WithBinary(path string) FFmpegOption {
	return func(s *FFmpegSource) {
		s.binary = path
	}
}

// NewFFmpegSource creates a microphone source at the given sample rate.
func NewFFmpegSource(sampleRate int, logger *slog.Logger, opts ...FFmpegOption) *FFmpegSource {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FFmpegSource{
		logger:     logger.With("component", "audio.ffmpeg"),
		sampleRate: sampleRate,
		binary:     "ffmpeg",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches ffmpeg and begins streaming sample chunks.
func (s *FFmpegSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrDeviceBusy
	}

	args := s.captureArgs()
	cmd := exec.Command(s.binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("audio: ffmpeg stdout: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return classifyDeviceError(err.Error())
	}

	s.cmd = cmd
	s.running = true
	s.stream = make(chan []float32, 16)
	s.stop = make(chan struct{})

	s.logger.Info("microphone capture started",
		"binary", s.binary,
		"sample_rate", s.sampleRate,
		"device", s.deviceOrDefault(),
	)

	go s.readLoop(ctx, stdout, &stderr, s.stream, s.stop)
	return nil
}

// Stop terminates ffmpeg and closes the stream. Safe to call twice.
func (s *FFmpegSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	close(s.stop)
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	return nil
}

// Stream returns the captured chunk channel.
func (s *FFmpegSource) Stream() <-chan []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// SampleRate returns the capture rate.
func (s *FFmpegSource) SampleRate() int { return s.sampleRate }

// Name returns "ffmpeg".
func (s *FFmpegSource) Name() string { return "ffmpeg" }

// captureArgs builds the platform-specific ffmpeg invocation for the
// default microphone, emitting mono f32le to stdout.
func (s *FFmpegSource) captureArgs() []string {
	device := s.deviceOrDefault()
	var in []string
	switch runtime.GOOS {
	case "darwin":
		in = []string{"-f", "avfoundation", "-i", device}
	case "windows":
		in = []string{"-f", "dshow", "-i", device}
	default:
		in = []string{"-f", "alsa", "-i", device}
	}
	return append(append([]string{"-hide_banner", "-loglevel", "error"}, in...),
		"-ac", "1",
		"-ar", strconv.Itoa(s.sampleRate),
		"-f", "f32le",
		"-",
	)
}

func (s *FFmpegSource) deviceOrDefault() string {
	if s.device != "" {
		return s.device
	}
	switch runtime.GOOS {
	case "darwin":
		return ":0"
	case "windows":
		return "audio=default"
	default:
		return "default"
	}
}

// readLoop streams stdout into ~20ms chunks until the process dies or
// Stop is called.
func (s *FFmpegSource) readLoop(ctx context.Context, stdout io.Reader, stderr *strings.Builder, stream chan []float32, stop chan struct{}) {
	defer close(stream)
	defer s.cmd.Wait()

	chunkSamples := s.sampleRate / 50 // 20ms
	buf := make([]byte, chunkSamples*4)

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-stop:
			return
		default:
		}

		if _, err := io.ReadFull(stdout, buf); err != nil {
			if derr := classifyDeviceError(stderr.String()); derr != nil {
				s.logger.Error("microphone capture failed", "error", derr)
			}
			return
		}

		chunk := make([]float32, chunkSamples)
		for i := range chunk {
			bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
			chunk[i] = math.Float32frombits(bits)
		}

		select {
		case stream <- chunk:
		case <-stop:
			return
		}
	}
}

// classifyDeviceError maps ffmpeg failure text onto the device error
// taxonomy. Unrecognized failures come back as ErrDeviceNotFound: from the
// session's point of view the microphone could not be acquired.
func classifyDeviceError(detail string) error {
	lower := strings.ToLower(detail)
	switch {
	case lower == "":
		return nil
	case strings.Contains(lower, "busy") || strings.Contains(lower, "in use"):
		return fmt.Errorf("%w: %s", ErrDeviceBusy, strings.TrimSpace(detail))
	case strings.Contains(lower, "permission") || strings.Contains(lower, "denied") || strings.Contains(lower, "not permitted"):
		return fmt.Errorf("%w: %s", ErrDevicePermission, strings.TrimSpace(detail))
	default:
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, strings.TrimSpace(detail))
	}
}

var _ Source = (*FFmpegSource)(nil)
