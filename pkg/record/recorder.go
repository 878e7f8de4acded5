// Package record captures a local video of the interviewee while the
// session runs. Recording is strictly best-effort: it shares nothing with
// the audio pipeline and none of its failures may disturb the interview.
package record

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jack-ferreri12/BasicInterviewer-v1/internal/log"
)

// stopGrace is how long ffmpeg gets to finalize the container after a
// quit request before being killed.
const stopGrace = 5 * time.Second

// VideoRecorder shells out to ffmpeg to record the default camera.
type VideoRecorder struct {
	dir    string
	device string
	binary string
	logger *slog.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	path string
	done chan struct{}
}

// Option configures a VideoRecorder.
type Option func(*VideoRecorder)

// WithDevice overrides the capture device name.
func WithDevice(device string) Option {
	return func(r *VideoRecorder) { r.device = device }
}

// WithBinary overrides the ffmpeg executable path.
func WithBinary(path string) Option {
	return func(r *VideoRecorder) { r.binary = path }
}

// WithLogger sets the recorder logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *VideoRecorder) { r.logger = logger }
}

// New builds a recorder that writes into dir.
func New(dir string, opts ...Option) *VideoRecorder {
	r := &VideoRecorder{
		dir:    dir,
		binary: "ffmpeg",
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.With("component", "record")
	}
	return r
}

// Start begins recording. The caller should log and ignore any error;
// the interview proceeds identically with or without a recording.
func (r *VideoRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd != nil {
		return fmt.Errorf("record: already recording to %s", r.path)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("record: create dir: %w", err)
	}
	name := fmt.Sprintf("interview-%s-%s.mp4",
		time.Now().Format("20060102-150405"), uuid.NewString()[:8])
	path := filepath.Join(r.dir, name)

	cmd := exec.CommandContext(ctx, r.binary, r.captureArgs(path)...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("record: start ffmpeg: %w", err)
	}

	r.cmd = cmd
	r.path = path
	r.done = make(chan struct{})
	done := r.done

	go func() {
		defer close(done)
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			// Exit status 255 is ffmpeg's normal response to the quit key.
			r.logger.Debug("ffmpeg exited",
				"error", err, "stderr", lastLine(stderr.String()))
		}
	}()

	r.logger.Info("video recording started", "path", path)
	return nil
}

// Stop asks ffmpeg to finalize and waits briefly for it. Safe to call
// when not recording and safe to call twice.
func (r *VideoRecorder) Stop() {
	r.mu.Lock()
	cmd := r.cmd
	done := r.done
	path := r.path
	r.cmd = nil
	r.mu.Unlock()

	if cmd == nil {
		return
	}

	// Graceful first so the mp4 index gets written.
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		_ = cmd.Process.Kill()
	}
	select {
	case <-done:
	case <-time.After(stopGrace):
		_ = cmd.Process.Kill()
		<-done
	}

	r.logger.Info("video recording stopped", "path", path)
}

// Path returns the output file of the current or most recent recording.
func (r *VideoRecorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// captureArgs builds the platform-specific ffmpeg invocation.
func (r *VideoRecorder) captureArgs(path string) []string {
	device := r.device
	switch runtime.GOOS {
	case "darwin":
		if device == "" {
			device = "0"
		}
		return []string{"-f", "avfoundation", "-framerate", "30", "-i", device,
			"-c:v", "libx264", "-preset", "ultrafast", "-pix_fmt", "yuv420p", "-y", path}
	case "windows":
		if device == "" {
			device = "video=Integrated Camera"
		}
		return []string{"-f", "dshow", "-i", device,
			"-c:v", "libx264", "-preset", "ultrafast", "-pix_fmt", "yuv420p", "-y", path}
	default:
		if device == "" {
			device = "/dev/video0"
		}
		return []string{"-f", "v4l2", "-framerate", "30", "-i", device,
			"-c:v", "libx264", "-preset", "ultrafast", "-pix_fmt", "yuv420p", "-y", path}
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
