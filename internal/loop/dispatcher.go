package loop

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"murmur/companion/internal/silence"
	"murmur/companion/internal/store"
	"murmur/companion/internal/voicews"
)

var (
	ErrNoConversation = errors.New("conversation not attached")
	ErrUnknownType    = errors.New("unknown message type")
)

// Target is the turn coordinator as driven by client control messages.
type Target interface {
	Start()
	Stop()
	Toggle()
	SetAgentProcessing(on bool)
	SetAgentSpeaking(on bool)
	NoteAgentSpoke(text string, cooldown time.Duration)
	SetMode(m silence.Mode)
	Flush()
}

// Dispatcher routes client control messages to the conversation's coordinator.
type Dispatcher struct {
	store *store.Store

	defaultCooldown time.Duration

	mu      sync.Mutex
	targets map[string]Target
}

func New(st *store.Store, defaultCooldown time.Duration) *Dispatcher {
	return &Dispatcher{store: st, defaultCooldown: defaultCooldown, targets: make(map[string]Target)}
}

// Attach registers the coordinator for a conversation, replacing any previous one.
func (d *Dispatcher) Attach(conversationID string, t Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets[conversationID] = t
}

// Detach removes the conversation's coordinator if it is still t.
func (d *Dispatcher) Detach(conversationID string, t Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.targets[conversationID] == t {
		delete(d.targets, conversationID)
	}
}

func (d *Dispatcher) target(conversationID string) Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.targets[conversationID]
}

// OnMessage applies one client control message.
func (d *Dispatcher) OnMessage(conversationID string, msg voicews.Message) error {
	t := d.target(conversationID)
	if t == nil {
		return ErrNoConversation
	}

	switch msg.Type {
	case "start":
		t.Start()
	case "stop":
		t.Stop()
	case "toggle":
		t.Toggle()
	case "flush":
		t.Flush()
	case "agent_processing":
		t.SetAgentProcessing(msg.On)
	case "agent_speaking":
		t.SetAgentSpeaking(msg.On)
	case "agent_spoke":
		cooldown := d.defaultCooldown
		if msg.CooldownMs != nil {
			cooldown = time.Duration(*msg.CooldownMs) * time.Millisecond
		}
		t.NoteAgentSpoke(msg.Text, cooldown)
		d.store.AppendEvent(conversationID, "agent_spoke", map[string]any{"chars": len(msg.Text), "cooldown_ms": cooldown.Milliseconds()})
		return nil
	case "mode":
		m, err := silence.ParseMode(msg.Mode)
		if err != nil {
			return err
		}
		t.SetMode(m)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}

	payload := map[string]any{"type": msg.Type}
	switch msg.Type {
	case "agent_processing", "agent_speaking":
		payload["on"] = msg.On
	case "mode":
		payload["mode"] = msg.Mode
	}
	d.store.AppendEvent(conversationID, "control", payload)
	return nil
}
