package turn

import (
	"time"

	"murmur/companion/internal/silence"
)

// Status is a read-only snapshot of the coordinator.
type Status struct {
	// Listening is true while the user wants the microphone open and
	// listening has not been disabled.
	Listening bool `json:"listening"`
	// Recording is true while a recognition session is capturing audio.
	Recording bool `json:"recording"`
	// Restarting is true while a session restart is scheduled or executing.
	Restarting bool         `json:"restarting"`
	State      string       `json:"state"`
	Reason     string       `json:"reason"`
	Mode       silence.Mode `json:"mode"`
	Disabled   bool         `json:"disabled"`
	LastError  string       `json:"last_error,omitempty"`
}

// Utterance is one accepted user turn.
type Utterance struct {
	ID   string    `json:"id"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}
