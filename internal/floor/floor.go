// Package floor decides who holds the conversational floor, and therefore
// whether the microphone should be open.
package floor

import "time"

// Decision represents whether the floor manager wants the microphone open.
type Decision struct {
	Listen bool
	Reason string // e.g. "agent_speaking"
}

// Reasons reported in Decision.
const (
	ReasonOpen            = "open"
	ReasonUserStopped     = "user_stopped"
	ReasonAgentProcessing = "agent_processing"
	ReasonAgentSpeaking   = "agent_speaking"
	ReasonTurnInFlight    = "turn_in_flight"
	ReasonCooldown        = "cooldown"
)

// Manager tracks the inputs of the listening policy. It holds no timers; the
// caller re-evaluates when CooldownUntil passes.
type Manager struct {
	userWants     bool
	processing    bool
	speaking      bool
	turnInFlight  bool
	cooldownUntil time.Time

	processingSince time.Time
	speakingSince   time.Time
	turnSince       time.Time
}

func New() *Manager { return &Manager{} }

func (m *Manager) SetUserWants(on bool, now time.Time) Decision {
	m.userWants = on
	return m.Evaluate(now)
}

func (m *Manager) OnAgentProcessing(on bool, now time.Time) Decision {
	if on && !m.processing {
		m.processingSince = now
	}
	m.processing = on
	return m.Evaluate(now)
}

func (m *Manager) OnAgentSpeaking(on bool, now time.Time) Decision {
	if on && !m.speaking {
		m.speakingSince = now
	}
	m.speaking = on
	return m.Evaluate(now)
}

// OnTurnSubmitted marks an accepted utterance as handed to the consumer.
func (m *Manager) OnTurnSubmitted(now time.Time) Decision {
	if !m.turnInFlight {
		m.turnSince = now
	}
	m.turnInFlight = true
	return m.Evaluate(now)
}

// OnAgentSpoke completes the round trip started by OnTurnSubmitted and
// closes the floor until cooldownUntil.
func (m *Manager) OnAgentSpoke(cooldownUntil, now time.Time) Decision {
	m.turnInFlight = false
	m.speaking = false
	if cooldownUntil.After(m.cooldownUntil) {
		m.cooldownUntil = cooldownUntil
	}
	return m.Evaluate(now)
}

// ForceRelease clears every agent-side hold. Used by the stuck-turn watchdog.
func (m *Manager) ForceRelease(now time.Time) Decision {
	m.processing = false
	m.speaking = false
	m.turnInFlight = false
	return m.Evaluate(now)
}

// Evaluate applies the policy at now without changing any input.
func (m *Manager) Evaluate(now time.Time) Decision {
	switch {
	case !m.userWants:
		return Decision{Reason: ReasonUserStopped}
	case m.processing:
		return Decision{Reason: ReasonAgentProcessing}
	case m.speaking:
		return Decision{Reason: ReasonAgentSpeaking}
	case m.turnInFlight:
		return Decision{Reason: ReasonTurnInFlight}
	case now.Before(m.cooldownUntil):
		return Decision{Reason: ReasonCooldown}
	}
	return Decision{Listen: true, Reason: ReasonOpen}
}

func (m *Manager) UserWants() bool          { return m.userWants }
func (m *Manager) CooldownUntil() time.Time { return m.cooldownUntil }

// Busy reports whether the agent side holds the floor.
func (m *Manager) Busy() bool { return m.processing || m.speaking || m.turnInFlight }

// HeldSince returns when the oldest active agent-side hold began, and false
// when the floor is not busy.
func (m *Manager) HeldSince() (time.Time, bool) {
	var since time.Time
	held := false
	for _, h := range []struct {
		on bool
		at time.Time
	}{
		{m.processing, m.processingSince},
		{m.speaking, m.speakingSince},
		{m.turnInFlight, m.turnSince},
	} {
		if h.on && (!held || h.at.Before(since)) {
			since, held = h.at, true
		}
	}
	return since, held
}
