package record

import (
	"context"
	"testing"
)

func TestStopWithoutStartIsNoop(t *testing.T) {
	r := New(t.TempDir())
	r.Stop()
	r.Stop()
	if r.Path() != "" {
		t.Errorf("Path = %q before any recording", r.Path())
	}
}

func TestStartMissingBinaryFails(t *testing.T) {
	r := New(t.TempDir(), WithBinary("definitely-not-ffmpeg"))
	if err := r.Start(context.Background()); err == nil {
		t.Error("Start with missing binary succeeded")
		r.Stop()
	}
}

func TestDoubleStartRejected(t *testing.T) {
	// Any spawnable binary stands in for ffmpeg here.
	r := New(t.TempDir(), WithBinary("sleep"))
	if err := r.Start(context.Background()); err != nil {
		t.Skipf("sleep unavailable: %v", err)
	}
	defer r.Stop()
	if err := r.Start(context.Background()); err == nil {
		t.Error("second Start succeeded while recording")
	}
}
