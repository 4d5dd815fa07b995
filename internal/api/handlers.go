package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"murmur/companion/internal/auth"
	"murmur/companion/internal/config"
	"murmur/companion/internal/health"
	"murmur/companion/internal/silence"
	"murmur/companion/internal/store"
	"murmur/companion/internal/types"
)

// Checker reports upstream readiness.
type Checker func(ctx context.Context) health.HealthStatus

type Handlers struct {
	cfg   config.Config
	store *store.Store
	check Checker
	log   *slog.Logger
}

func NewHandlers(cfg config.Config, st *store.Store, check Checker, log *slog.Logger) *Handlers {
	if check == nil {
		check = func(ctx context.Context) health.HealthStatus { return health.CheckAll(ctx, cfg) }
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{cfg: cfg, store: st, check: check, log: log.With("component", "api")}
}

type createRequest struct {
	Mode string `json:"mode"`
}

func (h *Handlers) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Auth.TokenSecret == "" {
		http.Error(w, "missing auth configuration", http.StatusServiceUnavailable)
		return
	}
	var req createRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	modeName := req.Mode
	if modeName == "" {
		modeName = h.cfg.Turn.Mode
	}
	mode, err := silence.ParseMode(modeName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := uuid.New().String()
	conv := &types.Conversation{
		ID:        id,
		Mode:      string(mode),
		CreatedAt: time.Now().UTC(),
		Status:    "created",
	}
	if err := h.store.CreateConversation(conv); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	h.store.AppendEvent(id, "conversation_created", map[string]any{"mode": conv.Mode})

	token, exp, err := h.mint(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.log.Info("conversation created", "conversation_id", id, "mode", conv.Mode)
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"mode":            conv.Mode,
		"token":           token,
		"expires_at":      exp,
		"ws_path":         "/ws/voice?conversation_id=" + id + "&token=" + token,
	})
}

func (h *Handlers) HandleGetConversation(w http.ResponseWriter, r *http.Request, id string) {
	conv := h.store.GetConversation(id)
	if conv == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handlers) HandleMintToken(w http.ResponseWriter, r *http.Request, id string) {
	if h.store.GetConversation(id) == nil {
		http.NotFound(w, r)
		return
	}
	token, exp, err := h.mint(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	h.store.AppendEvent(id, "token_minted", nil)
	writeJSON(w, http.StatusOK, map[string]any{"conversation_id": id, "token": token, "expires_at": exp})
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request, id string) {
	if h.store.GetConversation(id) == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"events":          h.store.ListEvents(id),
	})
}

func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	st := h.check(ctx)
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (h *Handlers) mint(id string) (string, int64, error) {
	ttl := h.cfg.Auth.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	exp := time.Now().Add(ttl).Unix()
	token, err := auth.GenerateToken(h.cfg.Auth.TokenSecret, id, exp)
	return token, exp, err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
