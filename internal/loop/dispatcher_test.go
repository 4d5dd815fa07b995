package loop

import (
	"errors"
	"testing"
	"time"

	"murmur/companion/internal/silence"
	"murmur/companion/internal/store"
	"murmur/companion/internal/types"
	"murmur/companion/internal/voicews"
)

type fakeTarget struct {
	calls    []string
	cooldown time.Duration
	spoke    string
	mode     silence.Mode
	on       bool
}

func (f *fakeTarget) Start()                 { f.calls = append(f.calls, "start") }
func (f *fakeTarget) Stop()                  { f.calls = append(f.calls, "stop") }
func (f *fakeTarget) Toggle()                { f.calls = append(f.calls, "toggle") }
func (f *fakeTarget) Flush()                 { f.calls = append(f.calls, "flush") }
func (f *fakeTarget) SetMode(m silence.Mode) { f.calls = append(f.calls, "mode"); f.mode = m }
func (f *fakeTarget) SetAgentProcessing(on bool) {
	f.calls = append(f.calls, "processing")
	f.on = on
}
func (f *fakeTarget) SetAgentSpeaking(on bool) {
	f.calls = append(f.calls, "speaking")
	f.on = on
}
func (f *fakeTarget) NoteAgentSpoke(text string, cooldown time.Duration) {
	f.calls = append(f.calls, "spoke")
	f.spoke, f.cooldown = text, cooldown
}

func newDispatcher(t *testing.T) (*Dispatcher, *fakeTarget, *store.Store) {
	t.Helper()
	st := store.New(0)
	_ = st.CreateConversation(&types.Conversation{ID: "c1"})
	d := New(st, 5*time.Second)
	ft := &fakeTarget{}
	d.Attach("c1", ft)
	return d, ft, st
}

func TestRoutesControlMessages(t *testing.T) {
	d, ft, st := newDispatcher(t)
	for _, m := range []voicews.Message{
		{Type: "start"},
		{Type: "agent_processing", On: true},
		{Type: "agent_speaking", On: false},
		{Type: "toggle"},
		{Type: "flush"},
		{Type: "stop"},
	} {
		if err := d.OnMessage("c1", m); err != nil {
			t.Fatalf("%s: %v", m.Type, err)
		}
	}
	want := []string{"start", "processing", "speaking", "toggle", "flush", "stop"}
	if len(ft.calls) != len(want) {
		t.Fatalf("calls %v, want %v", ft.calls, want)
	}
	for i := range want {
		if ft.calls[i] != want[i] {
			t.Fatalf("calls %v, want %v", ft.calls, want)
		}
	}
	if n := len(st.ListEvents("c1")); n != len(want) {
		t.Fatalf("expected %d control events, got %d", len(want), n)
	}
}

func TestAgentSpokeCooldown(t *testing.T) {
	d, ft, _ := newDispatcher(t)
	if err := d.OnMessage("c1", voicews.Message{Type: "agent_spoke", Text: "Sure."}); err != nil {
		t.Fatal(err)
	}
	if ft.spoke != "Sure." || ft.cooldown != 5*time.Second {
		t.Fatalf("expected default cooldown, got %q %v", ft.spoke, ft.cooldown)
	}
	ms := int64(1200)
	_ = d.OnMessage("c1", voicews.Message{Type: "agent_spoke", Text: "Ok", CooldownMs: &ms})
	if ft.cooldown != 1200*time.Millisecond {
		t.Fatalf("expected explicit cooldown, got %v", ft.cooldown)
	}
}

func TestModeMessage(t *testing.T) {
	d, ft, _ := newDispatcher(t)
	if err := d.OnMessage("c1", voicews.Message{Type: "mode", Mode: "Dictation"}); err != nil {
		t.Fatal(err)
	}
	if ft.mode != silence.ModeDictation {
		t.Fatalf("mode %q", ft.mode)
	}
	if err := d.OnMessage("c1", voicews.Message{Type: "mode", Mode: "shouty"}); err == nil {
		t.Fatal("expected invalid mode error")
	}
}

func TestRejectsUnknown(t *testing.T) {
	d, _, _ := newDispatcher(t)
	if err := d.OnMessage("c1", voicews.Message{Type: "dance"}); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected unknown type, got %v", err)
	}
	if err := d.OnMessage("c2", voicews.Message{Type: "start"}); !errors.Is(err, ErrNoConversation) {
		t.Fatalf("expected no conversation, got %v", err)
	}
}

func TestDetachOnlyCurrent(t *testing.T) {
	d, ft, _ := newDispatcher(t)
	other := &fakeTarget{}
	d.Detach("c1", other)
	if err := d.OnMessage("c1", voicews.Message{Type: "start"}); err != nil {
		t.Fatalf("stale detach removed current target: %v", err)
	}
	d.Detach("c1", ft)
	if err := d.OnMessage("c1", voicews.Message{Type: "start"}); !errors.Is(err, ErrNoConversation) {
		t.Fatalf("expected detached, got %v", err)
	}
}
