// Package transcript records the interview exchange as it happens and
// renders the final transcript for display and export.
//
// Entries are append-only and never mutated. The authoritative ordering is
// the server's; the locally accumulated log is a fallback for when the
// server transcript is empty or unavailable.
package transcript

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// Speaker identifies who produced an utterance. The values match the
// backend's transcript encoding.
type Speaker string

const (
	SpeakerInterviewer Speaker = "AI"
	SpeakerInterviewee Speaker = "Human"
)

// Entry is one utterance. The JSON tags match the backend transcript
// endpoint, so server entries unmarshal directly into this type.
type Entry struct {
	Speaker          Speaker `json:"speaker"`
	Text             string  `json:"text"`
	IsFollowUp       bool    `json:"is_followup,omitempty"`
	IsFollowUpAnswer bool    `json:"is_followup_answer,omitempty"`
	TransitionTo     *int    `json:"transition_to,omitempty"`
	QuestionNumber   int     `json:"question_number,omitempty"`
}

// IsTransition reports whether this entry closes out one main question and
// introduces the next. Presence of the transition target is the marker.
func (e Entry) IsTransition() bool {
	return e.TransitionTo != nil
}

// Flags qualifies an appended entry.
type Flags struct {
	FollowUp       bool
	FollowUpAnswer bool
	Transition     bool
	QuestionNumber int
}

// Sink receives labeled lines for live display as entries are appended.
type Sink interface {
	AppendLine(label, text string)
}

// Recorder accumulates the ongoing transcript.
type Recorder struct {
	logger *slog.Logger
	sink   Sink

	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates a Recorder. sink may be nil when there is no live
// display.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		logger: logger.With("component", "transcript"),
		sink:   sink,
	}
}

// Append adds one immutable entry to the ongoing log and pushes the labeled
// line to the live sink.
func (r *Recorder) Append(speaker Speaker, text string, flags Flags) {
	entry := Entry{
		Speaker:          speaker,
		Text:             text,
		IsFollowUp:       flags.FollowUp,
		IsFollowUpAnswer: flags.FollowUpAnswer,
		QuestionNumber:   flags.QuestionNumber,
	}
	if flags.Transition {
		next := flags.QuestionNumber
		entry.TransitionTo = &next
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	count := len(r.entries)
	r.mu.Unlock()

	label := liveLabel(speaker, flags)
	if r.sink != nil {
		r.sink.AppendLine(label, text)
	}
	r.logger.Debug("transcript entry appended", "label", label, "entries", count)
}

// Entries returns a copy of the locally accumulated log.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of accumulated entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// liveLabel derives the label shown in the ongoing log.
func liveLabel(speaker Speaker, flags Flags) string {
	if speaker == SpeakerInterviewee {
		if flags.FollowUpAnswer {
			return "You (Follow-up)"
		}
		return "You"
	}
	if flags.FollowUp {
		return "Interviewer (Follow-up)"
	}
	return "Interviewer"
}

// Line is one row of the rendered final transcript.
type Line struct {
	Label string
	Text  string
}

// Render produces the final labeled transcript. The server transcript is
// authoritative; when it is empty the locally accumulated log is used as a
// best-effort fallback, preserving per-question ordering.
func (r *Recorder) Render(server []Entry) []Line {
	entries := server
	if len(entries) == 0 {
		r.logger.Info("server transcript empty, falling back to local log")
		entries = r.Entries()
	}
	return renderLines(entries)
}

// renderLines derives display labels from entry flags. A running follow-up
// context carries interviewee answers that were not explicitly flagged.
func renderLines(entries []Entry) []Line {
	var lines []Line
	questionNum := 0
	inFollowUp := false

	for _, e := range entries {
		switch {
		case e.Speaker == SpeakerInterviewer && e.IsFollowUp:
			inFollowUp = true
			lines = append(lines, Line{Label: "Interviewer (Follow-up)", Text: e.Text})
		case e.Speaker == SpeakerInterviewer && e.IsTransition():
			inFollowUp = false
			lines = append(lines, Line{Label: "Interviewer", Text: e.Text})
		case e.Speaker == SpeakerInterviewer:
			inFollowUp = false
			if e.QuestionNumber > 0 {
				questionNum = e.QuestionNumber
			} else {
				questionNum++
			}
			lines = append(lines, Line{Label: questionLabel(questionNum), Text: e.Text})
		case e.IsFollowUpAnswer || inFollowUp:
			lines = append(lines, Line{Label: "You (Follow-up response)", Text: e.Text})
		default:
			lines = append(lines, Line{Label: "You", Text: e.Text})
		}
	}
	return lines
}

func questionLabel(n int) string {
	return "Interviewer (Question " + strconv.Itoa(n) + ")"
}

// ExportText renders lines as the downloadable plain-text transcript.
func ExportText(lines []Line) string {
	var b strings.Builder
	b.WriteString("INTERVIEW TRANSCRIPT\n\n")
	for _, l := range lines {
		b.WriteString(l.Label)
		b.WriteString(": ")
		b.WriteString(l.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}
