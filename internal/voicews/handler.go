// Package voicews serves the browser voice socket: PCM16LE audio and JSON
// control messages in, utterances, status and microphone levels out.
package voicews

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"murmur/companion/internal/auth"
	"murmur/companion/internal/config"
	"murmur/companion/internal/level"
	"murmur/companion/internal/recognition"
	"murmur/companion/internal/silence"
	"murmur/companion/internal/store"
	"murmur/companion/internal/turn"
	"murmur/companion/internal/types"
)

// Message is one JSON text frame in either direction.
//
// Client to server: start, stop, toggle, flush, agent_processing{on},
// agent_speaking{on}, agent_spoke{text,cooldown_ms}, mode{mode}.
// Server to client: utterance{id,text}, status{status,value}, level{value},
// fatal{error}, error{error}. A status carries the latest microphone level.
type Message struct {
	Type       string       `json:"type"`
	On         bool         `json:"on,omitempty"`
	Text       string       `json:"text,omitempty"`
	CooldownMs *int64       `json:"cooldown_ms,omitempty"`
	Mode       string       `json:"mode,omitempty"`
	ID         string       `json:"id,omitempty"`
	Value      *float64     `json:"value,omitempty"`
	Status     *turn.Status `json:"status,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// Recognizer is a recognition backend that accepts raw audio.
type Recognizer interface {
	recognition.Backend
	Send(pcm []byte) bool
}

type Server struct {
	Cfg   config.Config
	Store *store.Store
	Reg   *Registry
	Turn  turn.Config
	Log   *slog.Logger

	// NewRecognizer builds the recognizer for one connection.
	NewRecognizer func() Recognizer
	// OnAttach and OnDetach bracket the lifetime of a conversation's coordinator.
	OnAttach func(conversationID string, c *turn.Coordinator)
	OnDetach func(conversationID string, c *turn.Coordinator)
	// OnMessage handles a client control message.
	OnMessage func(conversationID string, msg Message) error

	// LevelInterval throttles level messages.
	LevelInterval time.Duration
}

func NewServer(cfg config.Config, st *store.Store, reg *Registry, tc turn.Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{Cfg: cfg, Store: st, Reg: reg, Turn: tc, Log: log.With("component", "voicews"), LevelInterval: 50 * time.Millisecond}
	s.NewRecognizer = func() Recognizer {
		return recognition.NewDeepgramBackend(recognition.DeepgramConfig{
			APIKey:         cfg.Deepgram.APIKey,
			Model:          cfg.Deepgram.Model,
			Language:       cfg.Deepgram.Language,
			EndpointingMs:  cfg.Deepgram.EndpointingMs,
			UtteranceEndMs: cfg.Deepgram.UtteranceEndMs,
			BaseURL:        cfg.Deepgram.BaseURL,
			SampleRate:     cfg.Deepgram.SampleRate,
		}, log)
	}
	return s
}

func (s *Server) HandleVoiceWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	conversationID := q.Get("conversation_id")
	if conversationID == "" {
		http.Error(w, "missing conversation_id", http.StatusBadRequest)
		return
	}
	conv := s.Store.GetConversation(conversationID)
	if conv == nil {
		http.Error(w, "unknown conversation", http.StatusNotFound)
		return
	}
	if _, _, err := auth.ValidateToken(s.Cfg.Auth.TokenSecret, q.Get("token"), conversationID, time.Now(), s.Cfg.Auth.TokenSkewSecs); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		s.Log.Warn("ws accept", "error", err)
		return
	}
	c.SetReadLimit(1 << 20)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := &session{id: conversationID, conn: c, out: make(chan Message, 128), levels: level.NewMonitor(8)}
	rec := s.NewRecognizer()

	tc := s.Turn
	if m, err := silence.ParseMode(conv.Mode); err == nil {
		tc.Mode = m
	}
	coord := turn.New(ctx, tc, rec, turn.Options{
		Log: s.Log.With("conversation_id", conversationID),
		OnUtterance: func(u turn.Utterance) {
			s.Store.Update(conversationID, func(c *types.Conversation) { c.Utterances++ })
			sess.send(Message{Type: "utterance", ID: u.ID, Text: u.Text})
		},
		OnStatus: func(st turn.Status) {
			lv := sess.levels.Current()
			sess.send(Message{Type: "status", Status: &st, Value: &lv})
		},
		OnFatal: func(err error) {
			s.Store.Update(conversationID, func(c *types.Conversation) { c.LastError = err.Error() })
			sess.send(Message{Type: "fatal", Error: err.Error()})
		},
		OnEvent: func(typ string, payload map[string]any) {
			s.Store.AppendEvent(conversationID, typ, payload)
		},
	})

	if s.Reg.Replace(conversationID, sess) {
		s.Store.AppendEvent(conversationID, "client_replaced", nil)
	}
	now := time.Now().UTC()
	s.Store.Update(conversationID, func(c *types.Conversation) {
		c.Status = "connected"
		c.ConnectedAt = &now
	})
	s.Store.AppendEvent(conversationID, "client_connected", nil)
	metricConnections.Inc()
	if s.OnAttach != nil {
		s.OnAttach(conversationID, coord)
	}

	go sess.writeLoop(ctx, s.Log)
	go sess.levelLoop(ctx, s.LevelInterval)

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ == ws.MessageBinary {
			metricAudioFrames.Inc()
			sess.levels.Feed(data)
			rec.Send(data)
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.Store.AppendEvent(conversationID, "client_msg_invalid", map[string]any{"error": err.Error()})
			sess.send(Message{Type: "error", Error: "invalid message"})
			continue
		}
		metricMessagesIn.WithLabelValues(msg.Type).Inc()
		if s.OnMessage == nil {
			continue
		}
		if err := s.OnMessage(conversationID, msg); err != nil {
			sess.send(Message{Type: "error", Error: err.Error()})
		}
	}

	if s.OnDetach != nil {
		s.OnDetach(conversationID, coord)
	}
	coord.Close()
	cancel()
	_ = c.Close(ws.StatusNormalClosure, "done")
	s.Reg.Remove(conversationID, sess)
	metricConnections.Dec()
	end := time.Now().UTC()
	s.Store.Update(conversationID, func(c *types.Conversation) {
		c.Status = "disconnected"
		c.DisconnectAt = &end
	})
	s.Store.AppendEvent(conversationID, "client_disconnected", nil)
}

// session is one live voice connection.
type session struct {
	id     string
	conn   *ws.Conn
	out    chan Message
	levels *level.Monitor
}

// send queues m without blocking.
func (s *session) send(m Message) bool {
	select {
	case s.out <- m:
		return true
	default:
		metricOutboundDropped.WithLabelValues(m.Type).Inc()
		return false
	}
}

func (s *session) writeLoop(ctx context.Context, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-s.out:
			b, err := json.Marshal(m)
			if err != nil {
				log.Error("marshal outbound", "type", m.Type, "error", err)
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = s.conn.Write(wctx, ws.MessageText, b)
			cancel()
			if err != nil {
				log.Debug("write failed", "conversation_id", s.id, "error", err)
				return
			}
		}
	}
}

// levelLoop forwards the latest microphone level at most once per interval.
func (s *session) levelLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	var pending *float64
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-s.levels.Levels():
			pending = &v
		case <-t.C:
			if pending != nil {
				s.send(Message{Type: "level", Value: pending})
				pending = nil
			}
		}
	}
}
