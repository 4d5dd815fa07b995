package recognition

import "errors"

// Errors a Backend reports, either from Start or through Signal.Err.
var (
	ErrNoSpeech          = errors.New("recognition: no speech detected")
	ErrAborted           = errors.New("recognition: aborted")
	ErrNetwork           = errors.New("recognition: network error")
	ErrPermissionDenied  = errors.New("recognition: permission denied")
	ErrServiceNotAllowed = errors.New("recognition: service not allowed")

	// ErrAlreadyStarted is returned by Start when the primitive is already running.
	ErrAlreadyStarted = errors.New("recognition: already started")
	// ErrInvalidState is returned when Start is called while the primitive is stopping.
	ErrInvalidState = errors.New("recognition: invalid state")
)

// Classify maps a backend error onto the error taxonomy. Unknown failures are
// treated as recoverable.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrServiceNotAllowed):
		return PermissionDenied
	case errors.Is(err, ErrNoSpeech):
		return NoSpeech
	case errors.Is(err, ErrAborted):
		return Aborted
	}
	return NetworkError
}
