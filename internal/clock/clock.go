// Package clock is the time source for engine timers. Production code runs on
// clockwork's real clock; tests drive a clockwork fake through Fake, which
// waits for every due callback before Advance returns.
package clock

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock provides the current time and scheduled callbacks.
type Clock = clockwork.Clock

// Timer is a cancellable scheduled callback.
type Timer = clockwork.Timer

// Real returns the wall clock.
func Real() Clock { return clockwork.NewRealClock() }

// Fake is a manually advanced Clock. clockwork runs AfterFunc callbacks on
// their own goroutines; Fake steps through deadlines in order and waits for
// the callbacks due at each one, so tests observe their effects as soon as
// Advance returns. Callbacks due at the same instant may run concurrently.
type Fake struct {
	clockwork.Clock
	advance func(time.Duration)

	mu     sync.Mutex
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clockwork.Timer
	f       *Fake
	at      time.Time
	seq     int
	stopped bool
	ran     bool
	done    chan struct{}
}

// NewFake returns a Fake clock positioned at start.
func NewFake(start time.Time) *Fake {
	fc := clockwork.NewFakeClockAt(start)
	return &Fake{Clock: fc, advance: fc.Advance}
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{f: f, at: f.Clock.Now().Add(d), seq: f.seq, done: make(chan struct{})}
	t.Timer = f.Clock.AfterFunc(d, func() {
		f.mu.Lock()
		t.ran = true
		done := t.done
		f.mu.Unlock()
		defer close(done)
		fn()
	})
	f.timers = append(f.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	ok := t.Timer.Stop()
	if ok {
		t.stopped = true
	}
	return ok
}

// Reset is not supported for callbacks; engine code re-arms with AfterFunc.
func (t *fakeTimer) Reset(time.Duration) bool {
	panic("clock: Reset on a fake AfterFunc timer")
}

// Pending returns the number of armed timers that have neither fired nor
// been stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.stopped && !t.ran {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing due timers in deadline order.
// Timers armed by a callback fire in the same call when they fall due before
// the target.
func (f *Fake) Advance(d time.Duration) {
	target := f.Now().Add(d)
	for {
		f.mu.Lock()
		next := f.nextDue(target)
		if next == nil {
			if step := target.Sub(f.Clock.Now()); step > 0 {
				f.advance(step)
			}
			f.mu.Unlock()
			return
		}
		if step := next.at.Sub(f.Clock.Now()); step > 0 {
			f.advance(step)
		} else {
			f.advance(0)
		}
		var wait []*fakeTimer
		now := f.Clock.Now()
		for _, t := range f.timers {
			if !t.stopped && !t.at.After(now) {
				wait = append(wait, t)
			}
		}
		f.mu.Unlock()
		for _, t := range wait {
			<-t.done
		}
		f.mu.Lock()
		f.prune()
		f.mu.Unlock()
	}
}

// nextDue must be called with f.mu held.
func (f *Fake) nextDue(target time.Time) *fakeTimer {
	f.prune()
	sort.SliceStable(f.timers, func(i, j int) bool {
		if f.timers[i].at.Equal(f.timers[j].at) {
			return f.timers[i].seq < f.timers[j].seq
		}
		return f.timers[i].at.Before(f.timers[j].at)
	})
	if len(f.timers) == 0 || f.timers[0].at.After(target) {
		return nil
	}
	return f.timers[0]
}

// prune drops finished and stopped timers. Callers hold f.mu.
func (f *Fake) prune() {
	live := f.timers[:0]
	for _, t := range f.timers {
		if t.stopped {
			continue
		}
		if t.ran {
			select {
			case <-t.done:
				continue
			default:
			}
		}
		live = append(live, t)
	}
	f.timers = live
}
