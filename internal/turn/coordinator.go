// Package turn coordinates a voice conversation: it decides when the
// microphone is open, folds recognizer output into utterances and hands each
// finished turn to the consumer exactly once.
//
// All mutable state is owned by one goroutine that applies one message at a
// time. Public methods, recognizer callbacks and timer expiries only enqueue
// messages for it.
package turn

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"murmur/companion/internal/clock"
	"murmur/companion/internal/echo"
	"murmur/companion/internal/floor"
	"murmur/companion/internal/recognition"
	"murmur/companion/internal/silence"
	"murmur/companion/internal/supervisor"
	"murmur/companion/internal/utterance"
)

// Config tunes the coordinator and the components it owns.
type Config struct {
	Mode       silence.Mode
	Thresholds silence.Thresholds
	// Watchdog force-releases agent holds (processing, speaking, turn in
	// flight) that last longer than this.
	Watchdog   time.Duration
	Echo       echo.Config
	Supervisor supervisor.Config
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Mode:       silence.ModeNormal,
		Thresholds: silence.DefaultThresholds(),
		Watchdog:   30 * time.Second,
		Echo:       echo.DefaultConfig(),
		Supervisor: supervisor.DefaultConfig(),
	}
}

// Options wires the coordinator to its surroundings. Callbacks run on the
// coordinator goroutine and must not block.
type Options struct {
	Clock clock.Clock
	Log   *slog.Logger
	// OnUtterance receives every accepted turn, once.
	OnUtterance func(Utterance)
	// OnStatus receives the status whenever it changes.
	OnStatus func(Status)
	// OnFatal is called once if listening becomes permanently disabled.
	OnFatal func(error)
	// OnEvent receives notable decisions for the conversation event log.
	OnEvent func(typ string, payload map[string]any)
}

// Coordinator is the turn-taking engine for one conversation.
type Coordinator struct {
	cfg  Config
	opts Options
	clk  clock.Clock
	log  *slog.Logger
	ctx  context.Context

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}

	closeOnce sync.Once
	status    atomic.Pointer[Status]

	// Owned by the loop goroutine.
	adapter *recognition.Adapter
	sup     *supervisor.Supervisor
	floor   *floor.Manager
	acc     utterance.Accumulator
	det     *silence.Detector
	echo    *echo.Suppressor
	mode    silence.Mode

	cooldownTimer clock.Timer
	cooldownGen   uint64
	watchdogTimer clock.Timer
	watchdogGen   uint64

	lastReason string
	stopped    bool
}

// New starts a coordinator driving backend. The coordinator runs until Close
// is called or ctx is done.
func New(ctx context.Context, cfg Config, backend recognition.Backend, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = silence.DefaultThresholds()
	}
	if cfg.Mode == "" {
		cfg.Mode = silence.ModeNormal
	}
	c := &Coordinator{
		cfg:   cfg,
		opts:  opts,
		clk:   opts.Clock,
		log:   opts.Log.With("component", "turn"),
		ctx:   ctx,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		floor: floor.New(),
		echo:  echo.New(cfg.Echo),
		mode:  cfg.Mode,
	}
	c.det = silence.NewDetector(c.clk, cfg.Thresholds[cfg.Mode])
	c.adapter = recognition.NewAdapter(backend, c.onRecognition, opts.Log)
	c.sup = supervisor.New(ctx, cfg.Supervisor, c.clk, c.adapter, c.post, c.wantsListening, opts.Log)
	c.sup.OnFatal = c.onFatal
	c.sup.OnTransition = func(from, to supervisor.State) {
		if to == supervisor.Restarting {
			c.event("restart_scheduled", map[string]any{"from": from.String()})
		}
	}
	c.status.Store(&Status{State: supervisor.Idle.String(), Reason: floor.ReasonUserStopped, Mode: c.mode})
	go c.run()
	return c
}

// Start opens the microphone on behalf of the user.
func (c *Coordinator) Start() { c.post(func() { c.setUserWants(true) }) }

// Stop closes the microphone on behalf of the user. A partial utterance is
// discarded.
func (c *Coordinator) Stop() { c.post(func() { c.setUserWants(false) }) }

// Toggle flips the user's listening preference.
func (c *Coordinator) Toggle() { c.post(func() { c.setUserWants(!c.floor.UserWants()) }) }

// SetAgentProcessing reports whether the consumer is working on a turn.
func (c *Coordinator) SetAgentProcessing(on bool) {
	c.post(func() {
		c.floor.OnAgentProcessing(on, c.clk.Now())
		c.reevaluate()
	})
}

// SetAgentSpeaking reports whether synthesized speech is playing.
func (c *Coordinator) SetAgentSpeaking(on bool) {
	c.post(func() {
		c.floor.OnAgentSpeaking(on, c.clk.Now())
		c.reevaluate()
	})
}

// NoteAgentSpoke records finished synthesized speech. It completes the turn
// in flight and keeps the microphone closed for cooldown.
func (c *Coordinator) NoteAgentSpoke(text string, cooldown time.Duration) {
	if cooldown < 0 {
		cooldown = 0
	}
	c.post(func() {
		now := c.clk.Now()
		c.echo.NoteAgentSpoke(text, cooldown, now)
		c.floor.OnAgentSpoke(now.Add(cooldown), now)
		c.armCooldown(cooldown)
		c.reevaluate()
	})
}

// SetMode changes the silence threshold. A running silence timer restarts
// with the new value.
func (c *Coordinator) SetMode(m silence.Mode) {
	c.post(func() {
		if m == c.mode {
			return
		}
		c.mode = m
		c.det.SetThreshold(c.cfg.Thresholds[m], c.postSilence)
		if !c.acc.Empty() && !c.det.Pending() && !c.det.Armed() {
			c.det.Arm(c.postSilence)
		}
		c.event("mode_changed", map[string]any{"mode": string(m)})
	})
}

// Flush delivers the current utterance now instead of waiting for silence.
// It goes through the same echo and duplicate checks, and is how dictation
// text leaves the buffer. It does nothing while the agent holds the floor.
func (c *Coordinator) Flush() {
	c.post(func() {
		if c.acc.Empty() || c.det.Pending() {
			return
		}
		if c.floor.Busy() {
			c.log.Debug("manual flush ignored while agent holds the floor")
			return
		}
		c.det.Cancel()
		c.flush(c.acc.CurrentText())
	})
}

// Status returns the latest status snapshot.
func (c *Coordinator) Status() Status { return *c.status.Load() }

// IsListening reports whether the user has the microphone switched on.
func (c *Coordinator) IsListening() bool { return c.Status().Listening }

// IsRecording reports whether a recognition session is capturing audio.
func (c *Coordinator) IsRecording() bool { return c.Status().Recording }

// Close stops the recognition session, cancels every timer and waits for the
// coordinator goroutine to exit.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.post(c.shutdown)
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		<-c.done
	})
}

// Done is closed once the coordinator goroutine has exited.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

func (c *Coordinator) post(fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, fn)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Coordinator) next() (func(), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	fn := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return fn, true
}

func (c *Coordinator) run() {
	defer close(c.done)
	for {
		select {
		case <-c.wake:
		case <-c.ctx.Done():
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			c.shutdown()
			return
		}
		for {
			fn, ok := c.next()
			if !ok {
				break
			}
			fn()
			c.publish()
			if c.stopped {
				return
			}
		}
	}
}

func (c *Coordinator) shutdown() {
	if c.stopped {
		return
	}
	c.stopped = true
	c.det.Cancel()
	c.cancelCooldown()
	c.cancelWatchdog()
	c.sup.Shutdown()
}

func (c *Coordinator) setUserWants(on bool) {
	c.floor.SetUserWants(on, c.clk.Now())
	if !on {
		c.det.Cancel()
		c.det.Resolve()
		c.acc.Reset()
	}
	c.reevaluate()
}

// wantsListening is the supervisor's restart gate.
func (c *Coordinator) wantsListening() bool {
	return c.floor.Evaluate(c.clk.Now()).Listen
}

// reevaluate applies the floor policy to the recognition session.
func (c *Coordinator) reevaluate() {
	now := c.clk.Now()
	d := c.floor.Evaluate(now)
	if d.Reason != c.lastReason {
		metricFloorDecisions.WithLabelValues(d.Reason).Inc()
		c.log.Debug("floor", "listen", d.Listen, "reason", d.Reason)
		c.lastReason = d.Reason
	}
	switch {
	case !c.floor.Busy():
		c.cancelWatchdog()
	case c.watchdogTimer == nil:
		c.armWatchdog(c.cfg.Watchdog)
	}
	c.sup.Ensure(d.Listen)
	if d.Listen && !c.acc.Empty() && !c.det.Armed() && !c.det.Pending() {
		// Text held back while the agent had the floor.
		c.det.Arm(c.postSilence)
	}
}

func (c *Coordinator) onRecognition(ev recognition.Event) {
	c.post(func() { c.handleRecognition(ev) })
}

func (c *Coordinator) handleRecognition(ev recognition.Event) {
	now := c.clk.Now()
	switch ev.Kind {
	case recognition.InterimText, recognition.FinalText:
		if !c.floor.Evaluate(now).Listen {
			c.log.Debug("transcript ignored while floor closed", "kind", ev.Kind)
			return
		}
		c.acc.Apply(ev, now)
		c.det.Arm(c.postSilence)
	case recognition.SpeechDetected:
		if !c.acc.Empty() && c.det.Armed() {
			c.det.Arm(c.postSilence)
		}
	default:
		out := c.sup.HandleEvent(ev)
		if out.Ended && !c.acc.Empty() {
			// Keep the words of the finished session for the next one.
			c.acc.Seal()
		}
		if out.Started {
			c.event("session_started", nil)
		}
	}
}

func (c *Coordinator) postSilence(gen uint64) {
	c.post(func() { c.onSilence(gen) })
}

func (c *Coordinator) onSilence(gen uint64) {
	text, ok := c.det.Fire(gen, c.acc.CurrentText())
	if !ok {
		return
	}
	if c.floor.Busy() {
		// Hold the text until the floor reopens.
		c.det.Resolve()
		return
	}
	c.flush(text)
}

func (c *Coordinator) flush(text string) {
	now := c.clk.Now()
	quiet := now.Sub(c.acc.LastUpdateAt())
	v := c.echo.Check(text, now)
	c.det.Resolve()
	c.acc.Reset()
	if !v.Accept {
		metricFlushDropped.WithLabelValues(string(v.Reason)).Inc()
		c.log.Info("flush dropped", "reason", v.Reason, "chars", len(v.Text))
		c.event("flush_dropped", map[string]any{"reason": string(v.Reason), "text": v.Text})
		return
	}
	u := Utterance{ID: uuid.NewString(), Text: v.Text, At: now}
	c.floor.OnTurnSubmitted(now)
	c.reevaluate()
	metricUtterances.Inc()
	metricUtteranceChars.Observe(float64(len(u.Text)))
	c.log.Info("utterance", "id", u.ID, "chars", len(u.Text), "quiet", quiet)
	c.event("utterance", map[string]any{"id": u.ID, "text": u.Text, "quiet_ms": quiet.Milliseconds()})
	if c.opts.OnUtterance != nil {
		c.opts.OnUtterance(u)
	}
}

func (c *Coordinator) onFatal(err error) {
	c.det.Cancel()
	c.event("fatal", map[string]any{"error": err.Error()})
	if c.opts.OnFatal != nil {
		c.opts.OnFatal(err)
	}
}

func (c *Coordinator) armCooldown(d time.Duration) {
	c.cancelCooldown()
	if d <= 0 {
		return
	}
	gen := c.cooldownGen
	c.cooldownTimer = c.clk.AfterFunc(d, func() {
		c.post(func() {
			if gen != c.cooldownGen {
				return
			}
			c.cooldownTimer = nil
			c.reevaluate()
		})
	})
}

func (c *Coordinator) cancelCooldown() {
	if c.cooldownTimer != nil {
		c.cooldownTimer.Stop()
		c.cooldownTimer = nil
	}
	c.cooldownGen++
}

// armWatchdog starts the stuck-turn timer when the agent side takes the
// floor. It is not re-armed while the hold continues.
func (c *Coordinator) armWatchdog(d time.Duration) {
	c.cancelWatchdog()
	if c.cfg.Watchdog <= 0 {
		return
	}
	gen := c.watchdogGen
	c.watchdogTimer = c.clk.AfterFunc(d, func() {
		c.post(func() { c.onWatchdog(gen) })
	})
}

func (c *Coordinator) cancelWatchdog() {
	if c.watchdogTimer != nil {
		c.watchdogTimer.Stop()
		c.watchdogTimer = nil
	}
	c.watchdogGen++
}

func (c *Coordinator) onWatchdog(gen uint64) {
	if gen != c.watchdogGen {
		return
	}
	c.watchdogTimer = nil
	if !c.floor.Busy() {
		return
	}
	now := c.clk.Now()
	since, _ := c.floor.HeldSince()
	if held := now.Sub(since); held < c.cfg.Watchdog {
		// The oldest hold began after the timer was armed.
		c.armWatchdog(c.cfg.Watchdog - held)
		return
	}
	metricWatchdogResets.Inc()
	c.log.Warn("agent hold exceeded watchdog, releasing", "held_since", since, "timeout", c.cfg.Watchdog)
	c.event("watchdog_reset", map[string]any{"timeout_ms": c.cfg.Watchdog.Milliseconds()})
	c.floor.ForceRelease(now)
	c.reevaluate()
}

func (c *Coordinator) event(typ string, payload map[string]any) {
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(typ, payload)
	}
}

func (c *Coordinator) publish() {
	st := c.sup.State()
	next := Status{
		Listening:  c.floor.UserWants() && st != supervisor.Disabled,
		Recording:  st == supervisor.Listening,
		Restarting: c.sup.RestartInFlight(),
		State:      st.String(),
		Reason:     c.floor.Evaluate(c.clk.Now()).Reason,
		Mode:       c.mode,
		Disabled:   st == supervisor.Disabled,
	}
	if err := c.sup.LastError(); err != nil {
		next.LastError = err.Error()
	}
	if *c.status.Load() == next {
		return
	}
	c.status.Store(&next)
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(next)
	}
}
