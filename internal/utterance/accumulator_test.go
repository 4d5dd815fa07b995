package utterance

import (
	"testing"
	"time"

	"murmur/companion/internal/recognition"
)

func interim(s string) recognition.Event {
	return recognition.Event{Kind: recognition.InterimText, Text: s}
}
func final(s string) recognition.Event {
	return recognition.Event{Kind: recognition.FinalText, Text: s}
}

func TestFinalWinsOverInterims(t *testing.T) {
	cases := [][]string{
		{"hel", "hello", "hello wor"},
		{"completely different"},
		{},
	}
	for _, interims := range cases {
		var a Accumulator
		now := time.Unix(0, 0)
		for _, s := range interims {
			a.Apply(interim(s), now)
		}
		a.Apply(final("hello world"), now)
		if got := a.CurrentText(); got != "hello world" {
			t.Fatalf("after %v: got %q", interims, got)
		}
	}
}

func TestApplyTracksUpdateTime(t *testing.T) {
	var a Accumulator
	t0 := time.Unix(10, 0)
	a.Apply(interim("Hello"), t0)
	t1 := t0.Add(time.Second)
	if changed := a.Apply(interim("Hello"), t1); changed {
		t.Fatal("identical snapshot should not report a change")
	}
	if !a.LastUpdateAt().Equal(t1) {
		t.Fatalf("expected update time %v, got %v", t1, a.LastUpdateAt())
	}
}

func TestApplyIgnoresLifecycleEvents(t *testing.T) {
	var a Accumulator
	a.Apply(interim("hi"), time.Unix(0, 0))
	if a.Apply(recognition.Event{Kind: recognition.SessionEnded}, time.Unix(1, 0)) {
		t.Fatal("lifecycle events must not change text")
	}
	if a.CurrentText() != "hi" {
		t.Fatalf("got %q", a.CurrentText())
	}
}

func TestSealCarriesTextAcrossSessions(t *testing.T) {
	var a Accumulator
	now := time.Unix(0, 0)
	a.Apply(final("I went walking"), now)
	a.Seal()
	a.Apply(interim("by the"), now)
	a.Apply(interim("by the river"), now)
	if got := a.CurrentText(); got != "I went walking by the river" {
		t.Fatalf("got %q", got)
	}
	a.Reset()
	if !a.Empty() {
		t.Fatalf("reset should empty the buffer, got %q", a.CurrentText())
	}
}

func TestFinalsAcrossPausesAppend(t *testing.T) {
	var a Accumulator
	now := time.Unix(0, 0)
	a.Apply(interim("I had a"), now)
	a.Apply(final("I had a long day."), now)
	a.Apply(interim("Work was"), now)
	if got := a.CurrentText(); got != "I had a long day. Work was" {
		t.Fatalf("got %q", got)
	}
	a.Apply(final("Work was hard."), now)
	if got := a.CurrentText(); got != "I had a long day. Work was hard." {
		t.Fatalf("got %q", got)
	}
}
