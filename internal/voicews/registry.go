package voicews

import (
	"sync"

	ws "nhooyr.io/websocket"
)

// Registry keeps at most one voice connection per conversation.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*session
}

func NewRegistry() *Registry { return &Registry{conns: make(map[string]*session)} }

// Replace sets the connection for a conversation and closes the previous one if present.
func (r *Registry) Replace(conversationID string, s *session) (prevClosed bool) {
	r.mu.Lock()
	old := r.conns[conversationID]
	r.conns[conversationID] = s
	r.mu.Unlock()
	if old != nil {
		_ = old.conn.Close(ws.StatusNormalClosure, "replaced")
		prevClosed = true
	}
	return
}

// Remove drops the conversation's connection if it is still s.
func (r *Registry) Remove(conversationID string, s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[conversationID] == s {
		delete(r.conns, conversationID)
	}
}

// CloseAll closes every connection, e.g. on shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	all := make([]*session, 0, len(r.conns))
	for _, s := range r.conns {
		all = append(all, s)
	}
	r.mu.Unlock()
	for _, s := range all {
		_ = s.conn.Close(ws.StatusGoingAway, reason)
	}
}
