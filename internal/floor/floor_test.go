package floor

import (
	"testing"
	"time"
)

var t0 = time.Unix(1000, 0)

func TestUserStopClosesFloor(t *testing.T) {
	f := New()
	if d := f.Evaluate(t0); d.Listen || d.Reason != ReasonUserStopped {
		t.Fatalf("expected closed floor before start, got %+v", d)
	}
	if d := f.SetUserWants(true, t0); !d.Listen || d.Reason != ReasonOpen {
		t.Fatalf("expected open floor, got %+v", d)
	}
}

func TestAgentHoldsFloor(t *testing.T) {
	f := New()
	f.SetUserWants(true, t0)
	if d := f.OnAgentProcessing(true, t0); d.Listen || d.Reason != ReasonAgentProcessing {
		t.Fatalf("expected processing hold, got %+v", d)
	}
	if d := f.OnAgentSpeaking(true, t0); d.Listen {
		t.Fatalf("expected closed floor, got %+v", d)
	}
	f.OnAgentProcessing(false, t0)
	if d := f.Evaluate(t0); d.Reason != ReasonAgentSpeaking {
		t.Fatalf("expected speaking hold, got %+v", d)
	}
	if d := f.OnAgentSpeaking(false, t0); !d.Listen {
		t.Fatalf("expected open floor, got %+v", d)
	}
}

func TestCooldownBoundary(t *testing.T) {
	f := New()
	f.SetUserWants(true, t0)
	f.OnTurnSubmitted(t0)
	if d := f.Evaluate(t0); d.Reason != ReasonTurnInFlight {
		t.Fatalf("expected turn in flight, got %+v", d)
	}
	d := f.OnAgentSpoke(t0.Add(5*time.Second), t0)
	if d.Listen || d.Reason != ReasonCooldown {
		t.Fatalf("expected cooldown, got %+v", d)
	}
	if d := f.Evaluate(t0.Add(2 * time.Second)); d.Listen {
		t.Fatalf("floor opened during cooldown")
	}
	if d := f.Evaluate(t0.Add(5001 * time.Millisecond)); !d.Listen {
		t.Fatalf("floor still closed after cooldown: %+v", d)
	}
}

func TestCooldownNeverShrinks(t *testing.T) {
	f := New()
	f.OnAgentSpoke(t0.Add(5*time.Second), t0)
	f.OnAgentSpoke(t0.Add(time.Second), t0)
	if got := f.CooldownUntil(); !got.Equal(t0.Add(5 * time.Second)) {
		t.Fatalf("cooldown shrank to %v", got)
	}
}

func TestForceRelease(t *testing.T) {
	f := New()
	f.SetUserWants(true, t0)
	f.OnAgentProcessing(true, t0)
	f.OnAgentSpeaking(true, t0.Add(time.Second))
	f.OnTurnSubmitted(t0)
	since, held := f.HeldSince()
	if !held || !since.Equal(t0) {
		t.Fatalf("held=%v since=%v", held, since)
	}
	if d := f.ForceRelease(t0); !d.Listen || f.Busy() {
		t.Fatalf("expected open floor after release, got %+v", d)
	}
	if _, held := f.HeldSince(); held {
		t.Fatal("hold survived release")
	}
}

func TestHeldSinceTracksOldestActiveHold(t *testing.T) {
	f := New()
	f.SetUserWants(true, t0)
	f.OnAgentProcessing(true, t0)
	f.OnAgentSpeaking(true, t0.Add(20*time.Second))
	f.OnAgentProcessing(false, t0.Add(25*time.Second))
	since, held := f.HeldSince()
	if !held || !since.Equal(t0.Add(20*time.Second)) {
		t.Fatalf("held=%v since=%v", held, since)
	}
	f.OnAgentSpeaking(false, t0.Add(26*time.Second))
	f.OnTurnSubmitted(t0.Add(27 * time.Second))
	f.OnTurnSubmitted(t0.Add(28 * time.Second))
	if since, _ := f.HeldSince(); !since.Equal(t0.Add(27 * time.Second)) {
		t.Fatalf("turn hold restarted at %v", since)
	}
}
