// Package audio converts raw microphone samples into fixed-width PCM16
// frames and provides the capture source abstraction.
//
// The framer runs in its own goroutine and communicates with the rest of
// the client only through channels: samples in, frames out. Nothing shares
// mutable buffers across that boundary, so UI or network work can never
// delay frame production beyond one processing quantum.
package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAlreadyStarted is returned by Start on a running framer.
var ErrAlreadyStarted = errors.New("audio: framer already started")

const (
	// inputQueueDepth buffers inbound sample chunks. At 20ms chunks this
	// is over a second of backlog before overruns start.
	inputQueueDepth = 64

	// frameQueueDepth buffers emitted frames awaiting the consumer.
	frameQueueDepth = 64
)

type framerCommand int

const (
	cmdPause framerCommand = iota
	cmdResume
	cmdStop
)

// Framer accumulates raw float samples and emits fixed-duration PCM16
// little-endian frames. Every emitted frame holds exactly
// sampleRate*frameDuration worth of samples; partial tails are buffered,
// never emitted short.
type Framer struct {
	logger *slog.Logger

	samplesPerFrame int

	in     chan []float32
	ctl    chan framerCommand
	frames chan []byte

	startMu sync.Mutex
	started bool

	overruns atomic.Int64
	emitted  atomic.Int64
}

// NewFramer creates an idle framer.
func NewFramer(logger *slog.Logger) *Framer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Framer{
		logger: logger.With("component", "audio.framer"),
	}
}

// Start begins frame production. frameDuration must divide into a whole
// number of samples at the given rate.
func (f *Framer) Start(sampleRate int, frameDuration time.Duration) error {
	f.startMu.Lock()
	defer f.startMu.Unlock()

	if f.started {
		return ErrAlreadyStarted
	}
	if sampleRate <= 0 || frameDuration <= 0 {
		return fmt.Errorf("audio: invalid framer config: rate=%d duration=%v", sampleRate, frameDuration)
	}
	spf := sampleRate * int(frameDuration.Milliseconds()) / 1000
	if spf <= 0 || (sampleRate*int(frameDuration.Milliseconds()))%1000 != 0 {
		return fmt.Errorf("audio: %v frames at %d Hz do not align to whole samples", frameDuration, sampleRate)
	}

	f.samplesPerFrame = spf
	f.in = make(chan []float32, inputQueueDepth)
	f.ctl = make(chan framerCommand, 8)
	f.frames = make(chan []byte, frameQueueDepth)
	f.started = true

	go f.run()

	f.logger.Info("framer started",
		"sample_rate", sampleRate,
		"frame_ms", frameDuration.Milliseconds(),
		"samples_per_frame", spf,
	)
	return nil
}

// Push delivers raw samples to the framer. Ownership of the slice
// transfers with the call. Push never blocks: if the framer is backed up
// the chunk is dropped and counted as an overrun.
func (f *Framer) Push(samples []float32) {
	f.startMu.Lock()
	in := f.in
	started := f.started
	f.startMu.Unlock()
	if !started {
		return
	}

	select {
	case in <- samples:
	default:
		f.overruns.Add(1)
	}
}

// Frames returns the emitted frame stream. The channel closes on Stop.
func (f *Framer) Frames() <-chan []byte {
	return f.frames
}

// Pause stops emission. Samples keep being consumed and framed but frames
// produced while paused are discarded, so Resume never bursts stale audio.
func (f *Framer) Pause() { f.command(cmdPause) }

// Resume re-enables emission.
func (f *Framer) Resume() { f.command(cmdResume) }

// Stop discards all buffered samples and halts processing. The frame
// channel is closed. Stop is idempotent.
func (f *Framer) Stop() {
	f.startMu.Lock()
	if !f.started {
		f.startMu.Unlock()
		return
	}
	f.started = false
	ctl := f.ctl
	f.startMu.Unlock()

	ctl <- cmdStop
}

// Overruns returns the number of sample chunks dropped because the framer
// was backed up.
func (f *Framer) Overruns() int64 {
	return f.overruns.Load()
}

// Emitted returns the number of frames emitted so far.
func (f *Framer) Emitted() int64 {
	return f.emitted.Load()
}

func (f *Framer) command(cmd framerCommand) {
	f.startMu.Lock()
	defer f.startMu.Unlock()
	if !f.started {
		return
	}
	select {
	case f.ctl <- cmd:
	default:
	}
}

// run is the framer's isolated processing loop.
func (f *Framer) run() {
	var queue []int16
	paused := false

	defer close(f.frames)

	for {
		select {
		case cmd := <-f.ctl:
			switch cmd {
			case cmdPause:
				paused = true
			case cmdResume:
				paused = false
			case cmdStop:
				f.logger.Info("framer stopped",
					"frames_emitted", f.emitted.Load(),
					"overruns", f.overruns.Load(),
				)
				return
			}

		case samples := <-f.in:
			queue = append(queue, pcm16FromFloat(samples)...)

			for len(queue) >= f.samplesPerFrame {
				frame := queue[:f.samplesPerFrame]
				queue = queue[f.samplesPerFrame:]

				if paused {
					continue
				}

				buf := pcm16Bytes(frame)
				select {
				case f.frames <- buf:
					f.emitted.Add(1)
				default:
					f.overruns.Add(1)
				}
			}

			// Re-base the queue so the backing array does not grow without
			// bound across frames.
			if len(queue) > 0 && cap(queue) > 4*f.samplesPerFrame {
				queue = append(make([]int16, 0, 2*f.samplesPerFrame), queue...)
			} else if len(queue) == 0 {
				queue = queue[:0]
			}
		}
	}
}

// pcm16FromFloat converts [-1,1] float samples to signed 16-bit via
// clamp-then-scale, truncating.
func pcm16FromFloat(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int16(s * 32767)
	}
	return out
}

// pcm16Bytes encodes samples as little-endian bytes.
func pcm16Bytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}
