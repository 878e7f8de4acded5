// Package protocol defines the control messages exchanged with the interview
// backend over the duplex channel. Inbound messages are loosely structured:
// any subset of fields may be present, so decoding is total and the message
// is classified into a closed set of event kinds before dispatch.
package protocol

import (
	"encoding/json"
	"strings"
)

// MessageType identifies a typed control message.
type MessageType string

const (
	// Backend → client
	TypeInterviewReady MessageType = "interview_ready"
	TypeReadyToListen  MessageType = "ready_to_listen"
	TypeNoSpeech       MessageType = "no_speech_detected"

	// Client → backend
	TypeTTSComplete MessageType = "tts_complete"
	TypeAudioEnded  MessageType = "client_audio_ended"
)

// Message mirrors the backend's control frame. Every field is optional;
// a single frame frequently carries several of them at once (an AI
// utterance plus a user-transcript echo plus progress counters).
type Message struct {
	Type                MessageType `json:"type,omitempty"`
	CurrentQuestionText string      `json:"current_question_text,omitempty"`
	NextQuestionText    string      `json:"next_question_text,omitempty"`
	QuestionNumber      int         `json:"question_number,omitempty"`
	QuestionsTotal      int         `json:"questions_total,omitempty"`
	AIResponse          string      `json:"ai_response,omitempty"`
	UserTranscript      string      `json:"user_transcript,omitempty"`
	IsFollowUpAsk       bool        `json:"is_follow_up_ask,omitempty"`
	InterviewComplete   bool        `json:"interview_complete,omitempty"`
	Status              string      `json:"status,omitempty"`
	Message             string      `json:"message,omitempty"`
	Error               string      `json:"error,omitempty"`
}

// EventKind is the closed set of events the orchestrator dispatches on.
type EventKind int

const (
	// EventUnknown is a frame that carries nothing actionable. It is
	// logged and ignored, never treated as an error.
	EventUnknown EventKind = iota

	// EventInterviewReady is the first question being ready.
	EventInterviewReady

	// EventAIUtterance carries text the interviewer should speak.
	EventAIUtterance

	// EventReadyToListen tells the client to begin capturing.
	EventReadyToListen

	// EventNoSpeech reports that no speech was detected; the current
	// question is re-asked without advancing progress.
	EventNoSpeech

	// EventComplete ends the interview.
	EventComplete
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventInterviewReady:
		return "interview_ready"
	case EventAIUtterance:
		return "ai_utterance"
	case EventReadyToListen:
		return "ready_to_listen"
	case EventNoSpeech:
		return "no_speech"
	case EventComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Event is a classified inbound message. Msg retains every field so the
// dispatcher can consume side-band data (user transcript echo, progress)
// that rides along with the primary event.
type Event struct {
	Kind EventKind
	Msg  Message
}

// Decode parses an inbound control frame. It never fails hard: malformed
// JSON or an unrecognized shape yields an EventUnknown the caller can log
// and drop.
func Decode(data []byte) Event {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{Kind: EventUnknown}
	}
	return Event{Kind: msg.Classify(), Msg: msg}
}

// Classify maps a loose message onto its primary event kind. Completion
// dominates everything; the no-speech retry outranks a plain utterance
// because its AI text is the retry prompt, not a new question.
func (m Message) Classify() EventKind {
	switch {
	case m.InterviewComplete:
		return EventComplete
	case m.Type == TypeInterviewReady:
		return EventInterviewReady
	case m.Type == TypeNoSpeech || m.Status == string(TypeNoSpeech):
		return EventNoSpeech
	case strings.TrimSpace(m.AIResponse) != "":
		return EventAIUtterance
	case m.Type == TypeReadyToListen:
		return EventReadyToListen
	default:
		return EventUnknown
	}
}

// ControlFrame is an outbound client → backend message.
type ControlFrame struct {
	Type MessageType `json:"type"`
}

// TTSComplete acknowledges that playback of the last utterance settled.
func TTSComplete() ControlFrame {
	return ControlFrame{Type: TypeTTSComplete}
}

// AudioEnded signals the end of the client's utterance capture.
func AudioEnded() ControlFrame {
	return ControlFrame{Type: TypeAudioEnded}
}
