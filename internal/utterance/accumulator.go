// Package utterance folds transcript events into the best-guess text of the
// in-progress user turn.
package utterance

import (
	"strings"
	"time"

	"murmur/companion/internal/recognition"
)

// Accumulator holds the current utterance. Snapshots from the recognizer are
// cumulative within one segment, so interim text replaces the segment's
// portion. A final closes the segment: its text is sealed and later segments
// append to it. Text from sessions that ended before a flush is sealed the
// same way.
//
// Accumulator is not safe for concurrent use; it is owned by the turn
// coordinator's event loop.
type Accumulator struct {
	sealed       string
	current      string
	lastUpdateAt time.Time
}

// Apply folds ev into the buffer and reports whether the text changed.
func (a *Accumulator) Apply(ev recognition.Event, now time.Time) bool {
	switch ev.Kind {
	case recognition.InterimText, recognition.FinalText:
	default:
		return false
	}
	a.lastUpdateAt = now
	changed := ev.Text != a.current
	a.current = ev.Text
	if ev.Kind == recognition.FinalText {
		a.Seal()
	}
	return changed
}

// Seal freezes the current segment so the next one appends to it.
func (a *Accumulator) Seal() {
	a.sealed = a.CurrentText()
	a.current = ""
}

// CurrentText returns the best guess for the utterance.
func (a *Accumulator) CurrentText() string {
	switch {
	case a.sealed == "":
		return a.current
	case a.current == "":
		return a.sealed
	default:
		return a.sealed + " " + a.current
	}
}

// Empty reports whether there is no text to flush.
func (a *Accumulator) Empty() bool { return strings.TrimSpace(a.CurrentText()) == "" }

// LastUpdateAt is the time of the most recent transcript event.
func (a *Accumulator) LastUpdateAt() time.Time { return a.lastUpdateAt }

// Reset clears the utterance.
func (a *Accumulator) Reset() {
	a.sealed = ""
	a.current = ""
}
