package silence

import (
	"testing"
	"time"

	"murmur/companion/internal/clock"
)

type harness struct {
	clk  *clock.Fake
	d    *Detector
	text string
	got  []string
}

func newHarness(threshold time.Duration) *harness {
	h := &harness{clk: clock.NewFake(time.Unix(0, 0))}
	h.d = NewDetector(h.clk, threshold)
	return h
}

// post stands in for the event loop: it runs Fire synchronously.
func (h *harness) post(gen uint64) {
	if text, ok := h.d.Fire(gen, h.text); ok {
		h.got = append(h.got, text)
	}
}

func TestDetectorFiresAfterThreshold(t *testing.T) {
	h := newHarness(4500 * time.Millisecond)
	h.text = "Hello there"
	h.d.Arm(h.post)
	h.clk.Advance(4499 * time.Millisecond)
	if len(h.got) != 0 {
		t.Fatal("fired early")
	}
	h.clk.Advance(time.Millisecond)
	if len(h.got) != 1 || h.got[0] != "Hello there" {
		t.Fatalf("unexpected flushes %v", h.got)
	}
}

func TestDetectorRearmResetsCountdown(t *testing.T) {
	h := newHarness(time.Second)
	h.text = "a"
	h.d.Arm(h.post)
	h.clk.Advance(900 * time.Millisecond)
	h.d.Arm(h.post)
	h.clk.Advance(900 * time.Millisecond)
	if len(h.got) != 0 {
		t.Fatal("re-armed timer fired early")
	}
	h.clk.Advance(100 * time.Millisecond)
	if len(h.got) != 1 {
		t.Fatalf("expected exactly one flush, got %v", h.got)
	}
}

func TestDetectorEmptyBufferDoesNotFlush(t *testing.T) {
	h := newHarness(time.Second)
	h.text = "  "
	h.d.Arm(h.post)
	h.clk.Advance(2 * time.Second)
	if len(h.got) != 0 {
		t.Fatalf("unexpected flush %v", h.got)
	}
}

func TestDetectorPendingBlocksSecondFlush(t *testing.T) {
	h := newHarness(time.Second)
	h.text = "one"
	h.d.Arm(h.post)
	h.clk.Advance(time.Second)
	h.d.Arm(h.post)
	h.clk.Advance(time.Second)
	if len(h.got) != 1 {
		t.Fatalf("expected pending flush to block, got %v", h.got)
	}
	h.d.Resolve()
	h.d.Arm(h.post)
	h.clk.Advance(time.Second)
	if len(h.got) != 2 {
		t.Fatalf("expected flush after resolve, got %v", h.got)
	}
}

func TestDetectorCancelAndStaleGeneration(t *testing.T) {
	h := newHarness(time.Second)
	h.text = "x"
	h.d.Arm(h.post)
	h.d.Cancel()
	h.clk.Advance(2 * time.Second)
	if len(h.got) != 0 {
		t.Fatal("cancelled timer flushed")
	}
	if _, ok := h.d.Fire(0, "x"); ok {
		t.Fatal("stale generation must be ignored")
	}
}

func TestDetectorNeverMode(t *testing.T) {
	h := newHarness(DefaultThresholds()[ModeDictation])
	h.text = "dictated text"
	h.d.Arm(h.post)
	if h.d.Armed() {
		t.Fatal("dictation mode should not arm a timer")
	}
	h.clk.Advance(time.Hour)
	if len(h.got) != 0 {
		t.Fatal("dictation mode flushed")
	}
}

func TestSetThresholdRearms(t *testing.T) {
	h := newHarness(25 * time.Second)
	h.text = "thinking"
	h.d.Arm(h.post)
	h.clk.Advance(time.Second)
	h.d.SetThreshold(2*time.Second, h.post)
	h.clk.Advance(2 * time.Second)
	if len(h.got) != 1 {
		t.Fatalf("expected flush with new threshold, got %v", h.got)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(" Unhurried "); err != nil || m != ModeUnhurried {
		t.Fatalf("got %q %v", m, err)
	}
	if _, err := ParseMode("shouty"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
