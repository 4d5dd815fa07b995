// Package supervisor owns the recognition session lifecycle: it serializes
// restarts, applies backoff and classifies adapter errors.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"murmur/companion/internal/clock"
	"murmur/companion/internal/recognition"
)

// Session is the recognition adapter as seen by the supervisor.
type Session interface {
	Start(ctx context.Context) error
	Stop() error
}

// Config tunes restart behaviour.
type Config struct {
	// RestartDelay lets the primitive release its resources before a restart.
	RestartDelay time.Duration
	// MaxBackoff caps the delay after repeated recoverable failures.
	MaxBackoff time.Duration
	// FailureWindow is how long a recoverable failure counts towards backoff.
	FailureWindow time.Duration
	// StallTimeout bounds how long Starting or Stopping may last without the
	// primitive reporting progress.
	StallTimeout time.Duration
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		RestartDelay:  250 * time.Millisecond,
		MaxBackoff:    10 * time.Second,
		FailureWindow: 60 * time.Second,
		StallTimeout:  5 * time.Second,
	}
}

// Outcome reports what an event did to the session.
type Outcome struct {
	// Started is set when the session entered Listening.
	Started bool
	// Ended is set when a recognition session ended.
	Ended bool
}

// Supervisor is the session state machine. It is not safe for concurrent
// use: every method runs on the owning event loop. Timer expiries are
// delivered through post, which must enqueue the function on that loop.
type Supervisor struct {
	cfg  Config
	clk  clock.Clock
	sess Session
	ctx  context.Context
	post func(func())
	gate func() bool
	log  *slog.Logger

	state     State
	lastError error

	restartInFlight bool
	restartTimer    clock.Timer
	restartGen      uint64

	stallTimer clock.Timer
	stallGen   uint64

	failures []time.Time

	// OnTransition, if set, observes every state change.
	OnTransition func(from, to State)
	// OnFatal, if set, is called once when the supervisor becomes Disabled.
	OnFatal func(err error)
}

// New returns an Idle supervisor. gate reports whether the coordinator
// currently wants the session running; it is consulted before scheduling a
// restart.
func New(ctx context.Context, cfg Config, clk clock.Clock, sess Session, post func(func()), gate func() bool, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultConfig().RestartDelay
	}
	return &Supervisor{
		cfg:  cfg,
		clk:  clk,
		sess: sess,
		ctx:  ctx,
		post: post,
		gate: gate,
		log:  log.With("component", "supervisor"),
	}
}

// State returns the current state.
func (s *Supervisor) State() State { return s.state }

// LastError returns the most recent non-benign error.
func (s *Supervisor) LastError() error { return s.lastError }

// RestartInFlight reports whether a restart is scheduled or executing.
func (s *Supervisor) RestartInFlight() bool { return s.restartInFlight }

// Ensure drives the session toward the wanted running state.
func (s *Supervisor) Ensure(want bool) {
	switch s.state {
	case Disabled:
		return
	case Idle:
		if want && s.begin() {
			s.maybeScheduleRestart()
		}
	case Starting, Listening:
		if !want {
			s.halt()
		}
	case Restarting:
		if !want {
			s.cancelRestart()
			s.setState(Idle)
		}
	}
}

// HandleEvent applies a lifecycle or error event from the adapter.
func (s *Supervisor) HandleEvent(ev recognition.Event) Outcome {
	var out Outcome
	switch ev.Kind {
	case recognition.SessionStarted:
		switch s.state {
		case Starting:
			s.cancelStall()
			s.setState(Listening)
			out.Started = true
		case Idle, Restarting:
			// The primitive came up on its own; keep the microphone closed.
			s.cancelRestart()
			s.halt()
		case Disabled:
			_ = s.sess.Stop()
		}
	case recognition.SessionEnded:
		out.Ended = true
		switch s.state {
		case Disabled, Restarting:
			return out
		}
		s.cancelStall()
		s.setState(Idle)
		s.maybeScheduleRestart()
	case recognition.Error:
		switch {
		case ev.ErrKind.Fatal():
			s.disable(ev.Err)
		case ev.ErrKind.Benign():
			s.log.Debug("benign recognition error", "kind", ev.ErrKind, "error", ev.Err)
		default:
			s.lastError = ev.Err
			s.noteFailure()
			s.log.Warn("recoverable recognition error", "kind", ev.ErrKind, "error", ev.Err)
		}
	}
	return out
}

// Shutdown cancels timers and stops an active session.
func (s *Supervisor) Shutdown() {
	s.cancelRestart()
	s.cancelStall()
	switch s.state {
	case Starting, Listening:
		_ = s.sess.Stop()
	}
	if s.state != Disabled {
		s.setState(Idle)
	}
}

// begin issues Start. It reports whether the attempt failed in a way that
// should be retried.
func (s *Supervisor) begin() bool {
	s.setState(Starting)
	s.armStall()
	err := s.sess.Start(s.ctx)
	if err == nil {
		return false
	}
	s.cancelStall()
	switch kind := recognition.Classify(err); {
	case errors.Is(err, recognition.ErrInvalidState):
		// The primitive is still winding down; its SessionEnded drives the
		// next attempt. Never retry from here.
		metricStartRejected.Inc()
		s.log.Warn("start rejected by recognizer", "error", err)
		s.setState(Stopping)
		s.armStall()
	case kind.Fatal():
		s.disable(err)
	default:
		s.lastError = err
		s.noteFailure()
		s.log.Warn("start failed", "error", err)
		s.setState(Idle)
		return true
	}
	return false
}

func (s *Supervisor) halt() {
	s.cancelStall()
	s.setState(Stopping)
	if err := s.sess.Stop(); err != nil {
		s.log.Warn("stop failed", "error", err)
	}
	s.armStall()
}

func (s *Supervisor) maybeScheduleRestart() {
	if s.state != Idle || s.restartInFlight || !s.gate() {
		return
	}
	delay := s.restartDelay()
	s.restartInFlight = true
	s.restartGen++
	gen := s.restartGen
	s.setState(Restarting)
	s.restartTimer = s.clk.AfterFunc(delay, func() {
		s.post(func() { s.onRestartTimer(gen) })
	})
	metricRestarts.Inc()
	metricRestartDelayMS.Observe(float64(delay.Milliseconds()))
	s.log.Debug("restart scheduled", "delay", delay)
}

func (s *Supervisor) onRestartTimer(gen uint64) {
	if gen != s.restartGen || s.restartTimer == nil {
		return
	}
	s.restartTimer = nil
	if s.state != Restarting {
		s.restartInFlight = false
		return
	}
	// The flag stays up for the whole attempt and clears once Start returns
	// or fails.
	retry := s.begin()
	s.restartInFlight = false
	if retry {
		s.maybeScheduleRestart()
	}
}

func (s *Supervisor) cancelRestart() {
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
	s.restartGen++
	s.restartInFlight = false
}

func (s *Supervisor) armStall() {
	if s.cfg.StallTimeout <= 0 {
		return
	}
	s.stallGen++
	gen := s.stallGen
	s.stallTimer = s.clk.AfterFunc(s.cfg.StallTimeout, func() {
		s.post(func() { s.onStall(gen) })
	})
}

func (s *Supervisor) cancelStall() {
	if s.stallTimer != nil {
		s.stallTimer.Stop()
		s.stallTimer = nil
	}
	s.stallGen++
}

func (s *Supervisor) onStall(gen uint64) {
	if gen != s.stallGen || s.stallTimer == nil {
		return
	}
	s.stallTimer = nil
	metricStalls.WithLabelValues(s.state.String()).Inc()
	s.log.Warn("recognizer stalled", "state", s.state)
	switch s.state {
	case Starting:
		_ = s.sess.Stop()
		s.setState(Idle)
		s.maybeScheduleRestart()
	case Stopping:
		s.setState(Idle)
		s.maybeScheduleRestart()
	}
}

func (s *Supervisor) disable(err error) {
	if s.state == Disabled {
		return
	}
	s.cancelRestart()
	s.cancelStall()
	switch s.state {
	case Starting, Listening:
		_ = s.sess.Stop()
	}
	if err == nil {
		err = recognition.ErrPermissionDenied
	}
	s.lastError = err
	s.setState(Disabled)
	s.log.Error("listening disabled", "error", err)
	if s.OnFatal != nil {
		s.OnFatal(err)
	}
}

func (s *Supervisor) noteFailure() {
	now := s.clk.Now()
	cutoff := now.Add(-s.cfg.FailureWindow)
	j := 0
	for _, t := range s.failures {
		if t.After(cutoff) {
			s.failures[j] = t
			j++
		}
	}
	s.failures = append(s.failures[:j], now)
}

// restartDelay doubles the base delay for each recent failure.
func (s *Supervisor) restartDelay() time.Duration {
	now := s.clk.Now()
	n := 0
	for _, t := range s.failures {
		if now.Sub(t) < s.cfg.FailureWindow {
			n++
		}
	}
	if n > 5 {
		n = 5
	}
	d := s.cfg.RestartDelay << uint(n)
	if s.cfg.MaxBackoff > 0 && d > s.cfg.MaxBackoff {
		d = s.cfg.MaxBackoff
	}
	return d
}

func (s *Supervisor) setState(to State) {
	from := s.state
	if from == to {
		return
	}
	metricStateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	s.state = to
	if s.OnTransition != nil {
		s.OnTransition(from, to)
	}
}
