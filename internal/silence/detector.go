// Package silence decides when the user has finished speaking.
package silence

import (
	"fmt"
	"strings"
	"time"

	"murmur/companion/internal/clock"
)

// Mode selects the silence threshold for a conversation.
type Mode string

const (
	// ModeNormal is regular back-and-forth dialogue.
	ModeNormal Mode = "normal"
	// ModeUnhurried gives the user long pauses to think.
	ModeUnhurried Mode = "unhurried"
	// ModeDictation never flushes on silence.
	ModeDictation Mode = "dictation"
)

// Never disables the silence timer.
const Never time.Duration = 0

// Thresholds maps modes to silence thresholds. A zero threshold never fires.
type Thresholds map[Mode]time.Duration

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ModeNormal:    4500 * time.Millisecond,
		ModeUnhurried: 25 * time.Second,
		ModeDictation: Never,
	}
}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeNormal, ModeUnhurried, ModeDictation:
		return m, nil
	}
	return "", fmt.Errorf("silence: unknown mode %q", s)
}

// Detector arms a cancellable timer on every buffer update. When it expires
// with a non-empty buffer and no flush pending, it calls onExpire with the
// buffer text.
//
// All methods must be called from the owning event loop. The expiry callback
// registered with the clock must only post back into that loop; fire then
// runs there.
type Detector struct {
	clk       clock.Clock
	threshold time.Duration

	timer   clock.Timer
	gen     uint64
	pending bool
}

// NewDetector returns a Detector using threshold.
func NewDetector(clk clock.Clock, threshold time.Duration) *Detector {
	return &Detector{clk: clk, threshold: threshold}
}

// SetThreshold changes the threshold, re-arming a running timer so the new
// value applies from now.
func (d *Detector) SetThreshold(threshold time.Duration, post func(gen uint64)) {
	d.threshold = threshold
	if d.timer != nil {
		d.Arm(post)
	}
}

// Arm cancels any pending timer and arms a new one. post is invoked on
// expiry from the clock's goroutine with the generation it was armed with.
func (d *Detector) Arm(post func(gen uint64)) {
	d.Cancel()
	if d.threshold <= 0 {
		return
	}
	d.gen++
	gen := d.gen
	d.timer = d.clk.AfterFunc(d.threshold, func() { post(gen) })
}

// Cancel disarms the timer.
func (d *Detector) Cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Armed reports whether a timer is pending.
func (d *Detector) Armed() bool { return d.timer != nil }

// Fire handles an expiry posted for gen. It returns the text to flush and
// true when a flush should be requested. Stale generations are ignored.
func (d *Detector) Fire(gen uint64, text string) (string, bool) {
	if gen != d.gen || d.timer == nil {
		return "", false
	}
	d.timer = nil
	if strings.TrimSpace(text) == "" || d.pending {
		return "", false
	}
	d.pending = true
	return text, true
}

// Resolve marks the outstanding flush request as handled.
func (d *Detector) Resolve() { d.pending = false }

// Pending reports whether a flush request is outstanding.
func (d *Detector) Pending() bool { return d.pending }
