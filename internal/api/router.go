package api

import (
	"net/http"
)

// NewRouter registers the conversation and health routes. Unsupported
// methods on a known path get 405 from the mux.
func NewRouter(h *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", h.HandleReady)

	mux.HandleFunc("POST /conversations", h.HandleCreateConversation)
	mux.HandleFunc("GET /conversations/{id}", withID(h.HandleGetConversation))
	mux.HandleFunc("GET /conversations/{id}/events", withID(h.HandleListEvents))
	mux.HandleFunc("POST /conversations/{id}/token", withID(h.HandleMintToken))

	return mux
}

func withID(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, r.PathValue("id"))
	}
}
