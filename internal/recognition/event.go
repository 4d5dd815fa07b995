package recognition

import "fmt"

// EventKind tags an Event.
type EventKind int

const (
	InterimText EventKind = iota
	FinalText
	SpeechDetected
	SessionStarted
	SessionEnded
	Error
)

func (k EventKind) String() string {
	switch k {
	case InterimText:
		return "interim_text"
	case FinalText:
		return "final_text"
	case SpeechDetected:
		return "speech_detected"
	case SessionStarted:
		return "session_started"
	case SessionEnded:
		return "session_ended"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ErrorKind classifies recognizer failures.
type ErrorKind int

const (
	// NoSpeech is benign: the session ended without hearing anything.
	NoSpeech ErrorKind = iota
	// Aborted is benign: expected during a programmatic stop or restart.
	Aborted
	// NetworkError is recoverable through a restart.
	NetworkError
	// PermissionDenied is fatal: listening is disabled for good.
	PermissionDenied
)

func (k ErrorKind) String() string {
	switch k {
	case NoSpeech:
		return "no_speech"
	case Aborted:
		return "aborted"
	case NetworkError:
		return "network"
	case PermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Benign reports whether the kind is absorbed by normal renewal.
func (k ErrorKind) Benign() bool { return k == NoSpeech || k == Aborted }

// Fatal reports whether the kind disables listening permanently.
func (k ErrorKind) Fatal() bool { return k == PermissionDenied }

// Event is the only way the adapter talks upward. Text is set for
// InterimText and FinalText, ErrKind and Err for Error.
type Event struct {
	Kind    EventKind
	Text    string
	ErrKind ErrorKind
	Err     error
}

func (e Event) String() string {
	switch e.Kind {
	case InterimText, FinalText:
		return fmt.Sprintf("%s(%q)", e.Kind, e.Text)
	case Error:
		return fmt.Sprintf("error(%s)", e.ErrKind)
	default:
		return e.Kind.String()
	}
}
