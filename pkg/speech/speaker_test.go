package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/backend"
)

// fakeSynth implements Synthesizer with canned responses.
type fakeSynth struct {
	mu         sync.Mutex
	synthCalls []string
	fetchCalls []string

	result   *backend.SynthesisResult
	synthErr error
	audio    []byte
	fetchErr error
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (*backend.SynthesisResult, error) {
	f.mu.Lock()
	f.synthCalls = append(f.synthCalls, text)
	f.mu.Unlock()
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return f.result, nil
}

func (f *fakeSynth) FetchAudio(ctx context.Context, audioURL string) ([]byte, error) {
	f.mu.Lock()
	f.fetchCalls = append(f.fetchCalls, audioURL)
	f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.audio, nil
}

func (f *fakeSynth) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.synthCalls...)
}

func okResult() *backend.SynthesisResult {
	return &backend.SynthesisResult{Status: "success", AudioURL: "/static/clip.mp3"}
}

func TestSpeakPlaysAudio(t *testing.T) {
	synth := &fakeSynth{result: okResult(), audio: []byte("mp3-bytes")}
	player := NewMockPlayer()
	sp := NewSpeaker(synth, player)

	if err := sp.Speak(context.Background(), "Tell me about yourself."); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	clips := player.Clips()
	if len(clips) != 1 {
		t.Fatalf("played %d clips, want 1", len(clips))
	}
	if string(clips[0]) != "mp3-bytes" {
		t.Errorf("clip = %q", clips[0])
	}
}

func TestSpeakBlankTextIsNoop(t *testing.T) {
	synth := &fakeSynth{result: okResult()}
	sp := NewSpeaker(synth, NewMockPlayer())

	for _, text := range []string{"", "   ", "\n\t"} {
		if err := sp.Speak(context.Background(), text); err != nil {
			t.Errorf("Speak(%q): %v", text, err)
		}
	}
	if n := len(synth.calls()); n != 0 {
		t.Errorf("blank text triggered %d synthesis calls", n)
	}
}

func TestSpeakSuppressesImmediateRepeat(t *testing.T) {
	synth := &fakeSynth{result: okResult(), audio: []byte("x")}
	sp := NewSpeaker(synth, NewMockPlayer())

	const text = "What is your greatest strength?"
	if err := sp.Speak(context.Background(), text); err != nil {
		t.Fatalf("first Speak: %v", err)
	}
	if err := sp.Speak(context.Background(), text); err != nil {
		t.Fatalf("second Speak: %v", err)
	}

	if calls := synth.calls(); len(calls) != 1 {
		t.Errorf("synthesis called %d times for repeated text, want 1", len(calls))
	}
}

func TestSpeakRepeatAllowedAfterWindow(t *testing.T) {
	synth := &fakeSynth{result: okResult(), audio: []byte("x")}
	sp := NewSpeaker(synth, NewMockPlayer(), WithDedupWindow(20*time.Millisecond))

	const text = "And why this company?"
	if err := sp.Speak(context.Background(), text); err != nil {
		t.Fatalf("first Speak: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if err := sp.Speak(context.Background(), text); err != nil {
		t.Fatalf("second Speak: %v", err)
	}

	if calls := synth.calls(); len(calls) != 2 {
		t.Errorf("synthesis called %d times, want 2", len(calls))
	}
}

func TestSpeakFailedSynthesisDoesNotSuppressRetry(t *testing.T) {
	synth := &fakeSynth{synthErr: errors.New("boom")}
	sp := NewSpeaker(synth, NewMockPlayer())

	const text = "Walk me through your resume."
	if err := sp.Speak(context.Background(), text); err != nil {
		t.Fatalf("first Speak: %v", err)
	}
	if err := sp.Speak(context.Background(), text); err != nil {
		t.Fatalf("second Speak: %v", err)
	}

	// A failed attempt never initiated speech, so the retry is not a dup.
	if calls := synth.calls(); len(calls) != 2 {
		t.Errorf("synthesis called %d times, want 2", len(calls))
	}
}

func TestSpeakSettlesNilOnFailures(t *testing.T) {
	tests := []struct {
		name  string
		synth *fakeSynth
		pErr  error
	}{
		{"synthesis error", &fakeSynth{synthErr: errors.New("synth down")}, nil},
		{"server fallback", &fakeSynth{result: &backend.SynthesisResult{
			Error: "TTS failed", FallbackText: "Tell me about yourself.",
		}}, nil},
		{"fetch error", &fakeSynth{result: okResult(), fetchErr: errors.New("404")}, nil},
		{"playback error", &fakeSynth{result: okResult(), audio: []byte("x")}, errors.New("no device")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			player := NewMockPlayer()
			player.Err = tt.pErr
			sp := NewSpeaker(tt.synth, player)
			if err := sp.Speak(context.Background(), "Some question."); err != nil {
				t.Errorf("Speak = %v, want nil", err)
			}
		})
	}
}

func TestSpeakFallbackSkipsPlayback(t *testing.T) {
	synth := &fakeSynth{result: &backend.SynthesisResult{
		Error: "quota", FallbackText: "Next question.",
	}}
	player := NewMockPlayer()
	sp := NewSpeaker(synth, player)

	if err := sp.Speak(context.Background(), "Next question."); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(synth.fetchCalls) != 0 {
		t.Error("fallback result still fetched audio")
	}
	if len(player.Clips()) != 0 {
		t.Error("fallback result still played audio")
	}
}

func TestSpeakHonorsCancellation(t *testing.T) {
	synth := &fakeSynth{result: okResult(), audio: []byte("x")}
	sp := NewSpeaker(synth, NewMockPlayer())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sp.Speak(ctx, "Anything."); !errors.Is(err, context.Canceled) {
		t.Errorf("Speak on cancelled ctx = %v, want context.Canceled", err)
	}
}
