package session

// State is the orchestrator's single source of truth for what the
// interview is doing. Speaking and Listening are mutually exclusive by
// construction; there are no independent "playback active" and "capture
// active" flags to drift apart.
type State int

const (
	// StateIdle means no interview activity; also the post-connect state
	// while waiting for the backend to push the first event.
	StateIdle State = iota
	// StateConnecting covers question submission and the channel dial.
	StateConnecting
	// StateSpeaking means interviewer audio is playing.
	StateSpeaking
	// StateListening means the microphone is live.
	StateListening
	// StateProcessing means a turn ended and the backend is thinking.
	StateProcessing
	// StateComplete is terminal: the interview finished normally.
	StateComplete
	// StateError is terminal: transport loss or an unrecoverable fault.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSpeaking:
		return "speaking"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}
