// Package recognition wraps a streaming speech recognition primitive and
// normalizes its lifecycle into a small typed event set.
package recognition

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// Adapter normalizes a Backend. Start is idempotent-safe, duplicate lifecycle
// signals are absorbed, and errors are classified before they reach the sink.
type Adapter struct {
	backend Backend
	sink    func(Event)
	log     *slog.Logger

	mu   sync.Mutex
	open bool // a start was issued and no SessionEnded has been forwarded yet
	live bool // SessionStarted forwarded for the open session
}

// NewAdapter returns an Adapter forwarding normalized events to sink.
// sink must not block.
func NewAdapter(b Backend, sink func(Event), log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{backend: b, sink: sink, log: log.With("component", "recognition")}
}

// Start asks the backend to begin a session. An "already started" report from
// the backend is swallowed; if the session is already live, SessionStarted is
// reported again so the caller sees it come up.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	a.open = true
	a.mu.Unlock()

	err := a.backend.Start(ctx, a.emit)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAlreadyStarted) {
		metricStartSwallowed.Inc()
		a.mu.Lock()
		live := a.live
		a.mu.Unlock()
		a.log.Debug("start ignored, backend already running", "live", live)
		if live {
			// The session is already up, so no SessionStarted will follow.
			a.sink(Event{Kind: SessionStarted})
		}
		return nil
	}
	if !errors.Is(err, ErrInvalidState) {
		a.mu.Lock()
		a.open = false
		a.live = false
		a.mu.Unlock()
	}
	return err
}

// Stop requests termination. SessionEnded follows asynchronously.
func (a *Adapter) Stop() error {
	err := a.backend.Stop()
	if errors.Is(err, ErrInvalidState) {
		a.log.Debug("stop ignored, backend not running")
		return nil
	}
	return err
}

func (a *Adapter) emit(s Signal) {
	ev := Event{Kind: s.Kind}
	switch s.Kind {
	case SessionStarted:
		a.mu.Lock()
		dup := a.live
		a.open, a.live = true, true
		a.mu.Unlock()
		if dup {
			metricDuplicates.WithLabelValues(s.Kind.String()).Inc()
			return
		}
	case SessionEnded:
		a.mu.Lock()
		dup := !a.open
		a.open, a.live = false, false
		a.mu.Unlock()
		if dup {
			metricDuplicates.WithLabelValues(s.Kind.String()).Inc()
			return
		}
	case InterimText, FinalText:
		ev.Text = strings.TrimSpace(s.Text)
		if ev.Text == "" {
			return
		}
	case Error:
		ev.Err = s.Err
		ev.ErrKind = Classify(s.Err)
		metricErrors.WithLabelValues(ev.ErrKind.String()).Inc()
	}
	metricEvents.WithLabelValues(s.Kind.String()).Inc()
	a.sink(ev)
}
