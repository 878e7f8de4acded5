package audio

import (
	"context"
	"testing"
	"time"
)

func TestMockSourceStreams(t *testing.T) {
	src := NewMockSource(testRate, nil, WithChunkDuration(5*time.Millisecond))
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Stop()

	select {
	case chunk := <-src.Stream():
		want := testRate * 5 / 1000
		if len(chunk) != want {
			t.Errorf("chunk = %d samples, want %d", len(chunk), want)
		}
	case <-time.After(time.Second):
		t.Fatal("no chunk within 1s")
	}
}

func TestMockSourceStartWhileRunning(t *testing.T) {
	src := NewMockSource(testRate, nil)
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Stop()

	if err := src.Start(context.Background()); err != ErrDeviceBusy {
		t.Errorf("second Start = %v, want ErrDeviceBusy", err)
	}
}

func TestMockSourceStopIdempotent(t *testing.T) {
	src := NewMockSource(testRate, nil)
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestMockSourceSineAmplitude(t *testing.T) {
	src := NewMockSource(testRate, nil, WithSineWave(440, 0.5), WithChunkDuration(20*time.Millisecond))
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Stop()

	select {
	case chunk := <-src.Stream():
		var peak float32
		for _, s := range chunk {
			if s > peak {
				peak = s
			}
			if s < -peak {
				peak = -s
			}
		}
		if peak < 0.4 || peak > 0.51 {
			t.Errorf("sine peak = %v, want ~0.5", peak)
		}
	case <-time.After(time.Second):
		t.Fatal("no chunk within 1s")
	}
}
