package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/audio"
)

// frameRecorder is a FrameSender that counts deliveries and records
// whether any arrived after the ended callback fired.
type frameRecorder struct {
	mu         sync.Mutex
	frames     int
	ended      bool
	afterEnded int
}

func (r *frameRecorder) send(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
	if r.ended {
		r.afterEnded++
	}
}

func (r *frameRecorder) markEnded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = true
}

func (r *frameRecorder) snapshot() (frames, afterEnded int, ended bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames, r.afterEnded, r.ended
}

func TestSessionForwardsFrames(t *testing.T) {
	src := audio.NewMockSource(16000, nil,
		audio.WithSineWave(440, 0.5),
		audio.WithChunkDuration(10*time.Millisecond))
	rec := &frameRecorder{}

	sess := New(src, rec.send, WithEndedFunc(rec.markEnded))
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		frames, _, _ := rec.snapshot()
		if frames >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("only %d frames after 2s, want >= 3", frames)
		case <-time.After(10 * time.Millisecond):
		}
	}
	sess.Stop()
}

func TestStopOrdering(t *testing.T) {
	src := audio.NewMockSource(16000, nil,
		audio.WithSineWave(440, 0.5),
		audio.WithChunkDuration(5*time.Millisecond))
	rec := &frameRecorder{}

	sess := New(src, rec.send, WithEndedFunc(rec.markEnded))
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	sess.Stop()

	frames, afterEnded, ended := rec.snapshot()
	if !ended {
		t.Error("ended callback never fired")
	}
	if afterEnded != 0 {
		t.Errorf("%d frames delivered after ended callback (of %d total)", afterEnded, frames)
	}

	// Nothing more arrives once stopped.
	before := frames
	time.Sleep(100 * time.Millisecond)
	if after, _, _ := rec.snapshot(); after != before {
		t.Errorf("frames kept flowing after Stop: %d -> %d", before, after)
	}
}

func TestStopIdempotent(t *testing.T) {
	src := audio.NewMockSource(16000, nil)
	ends := 0
	sess := New(src, func([]byte) {}, WithEndedFunc(func() { ends++ }))
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sess.Stop()
	sess.Stop()
	sess.Stop()
	if ends != 1 {
		t.Errorf("ended callback fired %d times, want 1", ends)
	}
}

func TestStatusCallback(t *testing.T) {
	src := audio.NewMockSource(16000, nil)
	var statuses []string
	var statusMu sync.Mutex
	sess := New(src, func([]byte) {}, WithStatusFunc(func(st string) {
		statusMu.Lock()
		statuses = append(statuses, st)
		statusMu.Unlock()
	}))

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sess.Stop()

	statusMu.Lock()
	defer statusMu.Unlock()
	want := []string{"microphone active", "microphone released"}
	if len(statuses) != len(want) || statuses[0] != want[0] || statuses[1] != want[1] {
		t.Errorf("statuses = %q, want %q", statuses, want)
	}
}

func TestStopBeforeStart(t *testing.T) {
	src := audio.NewMockSource(16000, nil)
	ends := 0
	sess := New(src, func([]byte) {}, WithEndedFunc(func() { ends++ }))

	sess.Stop()
	if ends != 0 {
		t.Errorf("ended callback fired on never-started session")
	}
	if err := sess.Start(context.Background()); err == nil {
		t.Error("Start after Stop should fail")
	}
}

func TestConcurrentStop(t *testing.T) {
	src := audio.NewMockSource(16000, nil,
		audio.WithChunkDuration(5*time.Millisecond))
	ends := 0
	var endMu sync.Mutex
	sess := New(src, func([]byte) {}, WithEndedFunc(func() {
		endMu.Lock()
		ends++
		endMu.Unlock()
	}))
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Stop()
		}()
	}
	wg.Wait()

	endMu.Lock()
	defer endMu.Unlock()
	if ends != 1 {
		t.Errorf("ended callback fired %d times under concurrent Stop, want 1", ends)
	}
}
