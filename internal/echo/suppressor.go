// Package echo filters flush requests that are the system's own voice, repeats,
// or recognizer boilerplate.
package echo

import (
	"strings"
	"time"
	"unicode"
)

// Reason explains a verdict.
type Reason string

const (
	Accepted     Reason = "accepted"
	Cooldown     Reason = "cooldown"
	SelfEcho     Reason = "self_echo"
	Repeat       Reason = "repeat"
	Denylisted   Reason = "denylist"
	EmptyRequest Reason = "empty"
)

// Verdict is the outcome of Check.
type Verdict struct {
	Accept bool
	Reason Reason
	Text   string
}

// Config tunes the suppressor.
type Config struct {
	// MinEchoLen is the shortest text considered for self-similarity.
	MinEchoLen int
	// EchoMemory bounds how long the last agent utterance is compared against.
	EchoMemory time.Duration
	// RepeatWindow bounds how long the last accepted flush is compared against.
	RepeatWindow time.Duration
	// Denylist holds non-content phrases matched case-insensitively.
	Denylist []string
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		MinEchoLen:   10,
		EchoMemory:   30 * time.Second,
		RepeatWindow: 30 * time.Second,
		Denylist:     DefaultDenylist(),
	}
}

// DefaultDenylist lists phrases recognizers hallucinate from background audio.
func DefaultDenylist() []string {
	return []string{
		"thank you for watching",
		"thanks for watching",
		"please subscribe",
		"subtitles by",
		"transcribed by",
		"[music]",
		"[inaudible]",
	}
}

// Window is the echo state set when the agent finishes speaking.
type Window struct {
	CooldownUntil      time.Time
	LastAgentUtterance string
	SpokeAt            time.Time
}

// Suppressor applies cooldown, self-similarity, exact-repeat and denylist
// checks, in that order. Not safe for concurrent use.
type Suppressor struct {
	cfg      Config
	deny     []string
	window   Window
	accepted string
	acceptAt time.Time
}

// New returns a Suppressor for cfg.
func New(cfg Config) *Suppressor {
	if cfg.MinEchoLen <= 0 {
		cfg.MinEchoLen = 10
	}
	s := &Suppressor{cfg: cfg}
	for _, p := range cfg.Denylist {
		if p = normalize(p); p != "" {
			s.deny = append(s.deny, p)
		}
	}
	return s
}

// NoteAgentSpoke records what the agent said and arms the cooldown.
func (s *Suppressor) NoteAgentSpoke(text string, cooldown time.Duration, now time.Time) {
	s.window = Window{
		CooldownUntil:      now.Add(cooldown),
		LastAgentUtterance: text,
		SpokeAt:            now,
	}
}

// CoolingDown reports whether now is inside the cooldown.
func (s *Suppressor) CoolingDown(now time.Time) bool { return now.Before(s.window.CooldownUntil) }

// Check decides whether text should be forwarded. Accepted text is
// remembered for repeat detection.
func (s *Suppressor) Check(text string, now time.Time) Verdict {
	text = strings.TrimSpace(text)
	v := Verdict{Text: text}
	switch {
	case text == "":
		v.Reason = EmptyRequest
	case s.CoolingDown(now):
		v.Reason = Cooldown
	case s.selfEcho(text, now):
		v.Reason = SelfEcho
	case s.repeat(text, now):
		v.Reason = Repeat
	case s.denylisted(text):
		v.Reason = Denylisted
	default:
		v.Accept = true
		v.Reason = Accepted
		s.accepted = text
		s.acceptAt = now
	}
	metricVerdicts.WithLabelValues(string(v.Reason)).Inc()
	return v
}

func (s *Suppressor) selfEcho(text string, now time.Time) bool {
	if s.window.LastAgentUtterance == "" || now.Sub(s.window.SpokeAt) > s.cfg.EchoMemory {
		return false
	}
	t := normalize(text)
	if len([]rune(t)) <= s.cfg.MinEchoLen {
		return false
	}
	agent := normalize(s.window.LastAgentUtterance)
	if strings.Contains(agent, t) {
		return true
	}
	return strings.Contains(agent, head(t, 2*s.cfg.MinEchoLen))
}

func (s *Suppressor) repeat(text string, now time.Time) bool {
	return s.accepted != "" && text == s.accepted && now.Sub(s.acceptAt) <= s.cfg.RepeatWindow
}

func (s *Suppressor) denylisted(text string) bool {
	t := normalize(text)
	for _, p := range s.deny {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// normalize lowercases, drops punctuation other than brackets and collapses
// whitespace.
func normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '[', r == ']', r == '\'':
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			space = true
		}
	}
	return b.String()
}

func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
