package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"murmur/companion/internal/auth"
	"murmur/companion/internal/config"
	"murmur/companion/internal/health"
	"murmur/companion/internal/store"
)

func newTestServer(t *testing.T, ready bool) (*httptest.Server, *store.Store, config.Config) {
	t.Helper()
	var cfg config.Config
	cfg.Auth.TokenSecret = "secret"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Turn.Mode = "normal"
	st := store.New(0)
	check := func(context.Context) health.HealthStatus {
		return health.HealthStatus{OK: ready, Checks: []health.CheckResult{{Name: "deepgram", OK: ready}}}
	}
	srv := httptest.NewServer(NewRouter(NewHandlers(cfg, st, check, nil)))
	t.Cleanup(srv.Close)
	return srv, st, cfg
}

func TestCreateConversation(t *testing.T) {
	srv, st, cfg := newTestServer(t, true)

	resp, err := http.Post(srv.URL+"/conversations", "application/json", strings.NewReader(`{"mode":"unhurried"}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		ConversationID string `json:"conversation_id"`
		Mode           string `json:"mode"`
		Token          string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Mode != "unhurried" {
		t.Fatalf("expected unhurried, got %q", body.Mode)
	}
	if st.GetConversation(body.ConversationID) == nil {
		t.Fatal("conversation not stored")
	}
	if _, _, err := auth.ValidateToken(cfg.Auth.TokenSecret, body.Token, body.ConversationID, time.Now(), 0); err != nil {
		t.Fatalf("token does not validate: %v", err)
	}

	resp, err = http.Get(srv.URL + "/conversations/" + body.ConversationID + "/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var evs struct {
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&evs)
	if len(evs.Events) != 1 || evs.Events[0].Type != "conversation_created" {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestCreateDefaultsAndRejectsBadMode(t *testing.T) {
	srv, _, _ := newTestServer(t, true)

	resp, err := http.Post(srv.URL+"/conversations", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for empty body, got %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/conversations", "application/json", strings.NewReader(`{"mode":"frantic"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUnknownConversation404(t *testing.T) {
	srv, _, _ := newTestServer(t, true)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/conversations/unknown"},
		{http.MethodGet, "/conversations/unknown/events"},
		{http.MethodPost, "/conversations/unknown/token"},
		{http.MethodGet, "/conversations/unknown/nope"},
	} {
		req, _ := http.NewRequest(tc.method, srv.URL+tc.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, resp.StatusCode)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t, true)
	resp, err := http.Get(srv.URL + "/conversations")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t, false)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz: expected 503, got %d", resp.StatusCode)
	}
}
