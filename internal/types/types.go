package types

import "time"

type Event struct {
	Type    string         `json:"type"`
	Ts      time.Time      `json:"timestamp"`
	Payload map[string]any `json:"payload,omitempty"`
}

type Conversation struct {
	ID        string    `json:"conversation_id"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`

	Utterances   int        `json:"utterances"`
	LastError    string     `json:"last_error,omitempty"`
	ConnectedAt  *time.Time `json:"connected_at,omitempty"`
	DisconnectAt *time.Time `json:"disconnected_at,omitempty"`
}
