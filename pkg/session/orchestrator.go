// Package session drives the interview state machine.
//
// The orchestrator is the sole writer of session state. All of its
// mutation happens on one event-loop goroutine; the transport's reader
// and the UI only talk to it through channels and read-only accessors.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jack-ferreri12/BasicInterviewer-v1/internal/log"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/protocol"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/transcript"
)

const (
	// defaultSettleDelay separates the end of playback from the start of
	// capture so the microphone never hears the interviewer's tail.
	defaultSettleDelay = 500 * time.Millisecond
	// defaultCompletionDelay lets closing remarks land before teardown.
	defaultCompletionDelay = 3 * time.Second
	// teardownTimeout bounds the final backend calls.
	teardownTimeout = 10 * time.Second

	fallbackRetryText   = "I didn't catch that. Let me repeat the question."
	fallbackClosingText = "That concludes our interview. Thank you for your time."
)

// Backend is the HTTP surface the orchestrator needs.
// *backend.Client satisfies this.
type Backend interface {
	SubmitQuestion(ctx context.Context, question string) error
	EndInterview(ctx context.Context)
	Transcript(ctx context.Context) ([]transcript.Entry, error)
}

// Speaker plays one interviewer utterance and blocks until it settles.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Transport is the duplex control channel. *channel.Channel satisfies this.
type Transport interface {
	Connect(ctx context.Context) error
	SendJSON(v any)
	Close()
	OnMessage(fn func(protocol.Event))
	OnClosed(fn func(error))
}

// Capturer is one single-use listening turn.
type Capturer interface {
	Start(ctx context.Context) error
	Stop()
}

// CaptureFactory builds a fresh capture turn. Wiring frames and the
// end-of-audio notification to the transport is the factory's business.
type CaptureFactory func() Capturer

// Orchestrator owns one interview from question submission to transcript.
type Orchestrator struct {
	backend    Backend
	speaker    Speaker
	transport  Transport
	newCapture CaptureFactory
	recorder   *transcript.Recorder
	questions  []string
	logger     *slog.Logger

	settleDelay     time.Duration
	completionDelay time.Duration

	onState    func(State)
	onProgress func(current, total int)
	onFinal    func([]transcript.Line)

	events chan protocol.Event
	closed chan error

	// Loop-owned; only the Run goroutine touches these.
	questionIdx      int
	questionsTotal   int
	awaitingFollowUp bool
	capture          Capturer

	state        atomic.Int32
	teardownOnce sync.Once
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithStateFunc registers a callback fired on every state change.
func WithStateFunc(fn func(State)) Option {
	return func(o *Orchestrator) { o.onState = fn }
}

// WithProgressFunc registers a callback fired when question progress moves.
func WithProgressFunc(fn func(current, total int)) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

// WithFinalFunc registers a callback receiving the rendered transcript
// at teardown.
func WithFinalFunc(fn func([]transcript.Line)) Option {
	return func(o *Orchestrator) { o.onFinal = fn }
}

// WithSettleDelay overrides the playback-to-capture settle delay.
func WithSettleDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.settleDelay = d }
}

// WithCompletionDelay overrides the delay between closing remarks and
// teardown.
func WithCompletionDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.completionDelay = d }
}

// New builds an orchestrator for one interview over the given questions.
func New(b Backend, sp Speaker, tr Transport, newCapture CaptureFactory, rec *transcript.Recorder, questions []string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:         b,
		speaker:         sp,
		transport:       tr,
		newCapture:      newCapture,
		recorder:        rec,
		questions:       questions,
		questionsTotal:  len(questions),
		settleDelay:     defaultSettleDelay,
		completionDelay: defaultCompletionDelay,
		events:          make(chan protocol.Event, 64),
		closed:          make(chan error, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.With("component", "session")
	}
	return o
}

// State returns the current machine state. Safe from any goroutine.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Run executes the interview until completion, transport loss, or context
// cancellation. It returns nil only when the interview completed normally.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.transport.OnMessage(func(ev protocol.Event) {
		o.events <- ev
	})
	o.transport.OnClosed(func(err error) {
		select {
		case o.closed <- err:
		default:
		}
	})

	o.setState(StateConnecting)

	// Submissions are strictly sequential; the server's question order is
	// the submission order.
	for i, q := range o.questions {
		if err := o.backend.SubmitQuestion(ctx, q); err != nil {
			o.fail()
			return fmt.Errorf("session: submit question %d: %w", i+1, err)
		}
	}
	if err := o.transport.Connect(ctx); err != nil {
		o.fail()
		return fmt.Errorf("session: connect: %w", err)
	}

	// The backend owns when the first question is ready; wait in idle.
	o.setState(StateIdle)

	for {
		select {
		case <-ctx.Done():
			o.stopCapture()
			o.teardown()
			return ctx.Err()
		case err := <-o.closed:
			if o.State() == StateComplete {
				return nil
			}
			o.fail()
			if err == nil {
				err = errors.New("channel closed before completion")
			}
			return fmt.Errorf("session: %w", err)
		case ev := <-o.events:
			if done := o.handle(ctx, ev); done {
				return nil
			}
		}
	}
}

// handle dispatches one inbound event. It returns true when the interview
// has completed and the loop should exit.
func (o *Orchestrator) handle(ctx context.Context, ev protocol.Event) bool {
	msg := ev.Msg
	if msg.Error != "" {
		o.logger.Warn("backend reported error", "error", msg.Error)
	}

	// Side-band user transcript echoes arrive on any event kind.
	if t := strings.TrimSpace(msg.UserTranscript); t != "" {
		o.recorder.Append(transcript.SpeakerInterviewee, t, transcript.Flags{
			FollowUpAnswer: o.awaitingFollowUp,
		})
		o.awaitingFollowUp = false
	}

	switch ev.Kind {
	case protocol.EventComplete:
		o.complete(ctx, msg)
		return true
	case protocol.EventInterviewReady:
		o.interviewReady(ctx, msg)
	case protocol.EventAIUtterance:
		o.aiUtterance(ctx, msg)
	case protocol.EventReadyToListen:
		o.beginListening(ctx)
	case protocol.EventNoSpeech:
		o.noSpeechRetry(ctx, msg)
	default:
		o.logger.Debug("ignoring message", "type", msg.Type)
	}
	return false
}

// interviewReady speaks the opening question pushed by the backend.
func (o *Orchestrator) interviewReady(ctx context.Context, msg protocol.Message) {
	o.setProgress(msg.QuestionNumber, msg.QuestionsTotal)

	text := strings.TrimSpace(msg.CurrentQuestionText)
	if text == "" {
		text = strings.TrimSpace(msg.AIResponse)
	}
	if text == "" {
		o.logger.Warn("interview_ready carried no question text")
		return
	}

	o.recorder.Append(transcript.SpeakerInterviewer, text, transcript.Flags{
		QuestionNumber: o.questionIdx + 1,
	})
	o.speakAndAck(ctx, text)
}

// aiUtterance handles an interviewer turn mid-session. Playback always
// pre-empts any live capture.
func (o *Orchestrator) aiUtterance(ctx context.Context, msg protocol.Message) {
	o.stopCapture()

	utterance := strings.TrimSpace(msg.AIResponse)
	next := strings.TrimSpace(msg.NextQuestionText)

	texts := make([]string, 0, 2)
	if utterance != "" {
		o.recorder.Append(transcript.SpeakerInterviewer, utterance, transcript.Flags{
			FollowUp: msg.IsFollowUpAsk,
		})
		texts = append(texts, utterance)
	}
	o.awaitingFollowUp = msg.IsFollowUpAsk

	if next != "" && next != utterance && !msg.IsFollowUpAsk {
		// Advancing to a new main question clears any follow-up context.
		o.setProgress(msg.QuestionNumber, msg.QuestionsTotal)
		o.awaitingFollowUp = false
		o.recorder.Append(transcript.SpeakerInterviewer, next, transcript.Flags{
			Transition:     true,
			QuestionNumber: o.questionIdx + 1,
		})
		texts = append(texts, next)
	}

	if len(texts) == 0 {
		o.logger.Debug("utterance event carried no speakable text")
		return
	}
	o.speakAndAck(ctx, texts...)
}

// speakAndAck plays each text in order and always acknowledges with
// tts_complete, however playback went, so server turn-taking proceeds.
func (o *Orchestrator) speakAndAck(ctx context.Context, texts ...string) {
	o.setState(StateSpeaking)
	for _, t := range texts {
		if err := o.speaker.Speak(ctx, t); err != nil {
			o.logger.Warn("speech interrupted", "error", err)
			break
		}
	}
	o.transport.SendJSON(protocol.TTSComplete())
	o.setState(StateProcessing)
}

// beginListening opens the microphone after a short settle delay.
func (o *Orchestrator) beginListening(ctx context.Context) {
	if o.State() == StateSpeaking {
		return
	}
	time.Sleep(o.settleDelay)
	o.startCapture(ctx)
}

func (o *Orchestrator) startCapture(ctx context.Context) {
	if o.capture != nil {
		return
	}
	c := o.newCapture()
	if err := c.Start(ctx); err != nil {
		// Device trouble halts capture but not the session.
		o.logger.Error("microphone unavailable", "error", err)
		return
	}
	o.capture = c
	o.setState(StateListening)
}

func (o *Orchestrator) stopCapture() {
	if o.capture == nil {
		return
	}
	o.capture.Stop()
	o.capture = nil
}

// noSpeechRetry re-prompts without advancing question progress.
func (o *Orchestrator) noSpeechRetry(ctx context.Context, msg protocol.Message) {
	o.stopCapture()

	retry := strings.TrimSpace(msg.AIResponse)
	if retry == "" {
		retry = fallbackRetryText
	}
	question := strings.TrimSpace(msg.NextQuestionText)
	if question == "" && o.questionIdx < len(o.questions) {
		question = o.questions[o.questionIdx]
	}

	o.setState(StateSpeaking)
	if err := o.speaker.Speak(ctx, retry); err != nil {
		o.logger.Warn("speech interrupted", "error", err)
	}
	if question != "" && question != retry {
		if err := o.speaker.Speak(ctx, question); err != nil {
			o.logger.Warn("speech interrupted", "error", err)
		}
	}

	time.Sleep(o.settleDelay)
	o.startCapture(ctx)
}

// complete renders closing remarks and tears the session down.
func (o *Orchestrator) complete(ctx context.Context, msg protocol.Message) {
	o.setState(StateComplete)
	o.stopCapture()

	closing := strings.TrimSpace(msg.AIResponse)
	if closing == "" {
		closing = fallbackClosingText
	}
	o.recorder.Append(transcript.SpeakerInterviewer, closing, transcript.Flags{})
	if err := o.speaker.Speak(ctx, closing); err != nil {
		o.logger.Warn("closing speech interrupted", "error", err)
	}

	// Give the server a moment to finalize before the last fetch.
	time.Sleep(o.completionDelay)
	o.teardown()
}

// teardown runs the end-of-session sequence exactly once: close the
// channel, notify the backend, fetch the authoritative transcript, and
// hand the rendered result to the final callback.
func (o *Orchestrator) teardown() {
	o.teardownOnce.Do(func() {
		o.transport.Close()
		o.stopCapture()

		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()

		o.backend.EndInterview(ctx)
		entries, err := o.backend.Transcript(ctx)
		if err != nil {
			o.logger.Warn("transcript fetch failed, using local fallback", "error", err)
			entries = nil
		}
		lines := o.recorder.Render(entries)
		if o.onFinal != nil {
			o.onFinal(lines)
		}
	})
}

func (o *Orchestrator) fail() {
	o.stopCapture()
	o.setState(StateError)
}

func (o *Orchestrator) setState(s State) {
	prev := State(o.state.Swap(int32(s)))
	if prev == s {
		return
	}
	o.logger.Info("state changed", "from", prev.String(), "to", s.String())
	if o.onState != nil {
		o.onState(s)
	}
}

func (o *Orchestrator) setProgress(number, total int) {
	if total > 0 {
		o.questionsTotal = total
	}
	if number > 0 {
		o.questionIdx = number - 1
		if o.onProgress != nil {
			o.onProgress(number, o.questionsTotal)
		}
	}
}
