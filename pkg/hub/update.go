// Package hub fans interview updates out to live websocket viewers using
// the channel-based register/broadcast pattern.
package hub

import "encoding/json"

// Update is one JSON frame pushed to viewers.
type Update struct {
	Type string `json:"type"`

	// state and mic updates
	State string `json:"state,omitempty"`
	Mic   string `json:"mic,omitempty"`

	// transcript updates
	Label string `json:"label,omitempty"`
	Text  string `json:"text,omitempty"`

	// progress updates
	QuestionNumber int `json:"question_number,omitempty"`
	QuestionsTotal int `json:"questions_total,omitempty"`
}

// StateUpdate announces a session state change.
func StateUpdate(state string) Update {
	return Update{Type: "state", State: state}
}

// MicUpdate announces a microphone status change.
func MicUpdate(status string) Update {
	return Update{Type: "mic", Mic: status}
}

// TranscriptUpdate announces one new transcript line.
func TranscriptUpdate(label, text string) Update {
	return Update{Type: "transcript", Label: label, Text: text}
}

// ProgressUpdate announces question progress.
func ProgressUpdate(current, total int) Update {
	return Update{Type: "progress", QuestionNumber: current, QuestionsTotal: total}
}

func (u Update) encode() []byte {
	data, _ := json.Marshal(u)
	return data
}
