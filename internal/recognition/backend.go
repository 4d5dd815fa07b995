package recognition

import "context"

// Signal is a raw notification from a Backend. Error signals carry Err.
type Signal struct {
	Kind EventKind
	Text string
	Err  error
}

// Backend is a streaming recognition primitive. Start begins a recognition
// session and reports its lifecycle through emit; completion of Stop is
// reported asynchronously as a SessionEnded signal. Interim text must be a
// cumulative snapshot of the current segment, not a delta. FinalText closes
// the segment; the next snapshot starts a new one.
type Backend interface {
	Start(ctx context.Context, emit func(Signal)) error
	Stop() error
}
