package coordinator

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/sessionbroker/broker/internal/adapter"
	"github.com/sessionbroker/broker/pkg/brokererr"
)

// Routes builds the broker's HTTP surface: health/status/metrics endpoints
// and a small session-lifecycle REST API in front of
// CreateSession/CloseSession, plus the consumer WebSocket upgrade endpoint
// at /sessions/{id}/ws.
func (c *Coordinator) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", c.handleHealthz)
	r.Get("/status", c.handleStatus)
	if c.Metrics != nil {
		r.Handle("/metrics", c.Metrics.Handler())
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", c.handleCreateSession)
		r.Get("/", c.handleListSessions)
		r.Delete("/{sessionID}", c.handleCloseSession)
		r.Handle("/{sessionID}/ws", c.Handler)
	})

	return r
}

func (c *Coordinator) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (c *Coordinator) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionCount": c.Registry.Len(),
		"adapters":     c.Resolver.Names(),
	})
}

type createSessionRequest struct {
	SessionID      string            `json:"sessionId"`
	AdapterName    string            `json:"adapterName"`
	Cwd            string            `json:"cwd"`
	Model          string            `json:"model"`
	PermissionMode string            `json:"permissionMode"`
	Env            map[string]string `json:"env"`
}

func (c *Coordinator) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, brokererr.New(brokererr.CodeValidation, "malformed request body"))
		return
	}

	// The session id is caller-generated (spec: externally-assigned UUID);
	// a consumer that omits it gets one minted here so REST clients that
	// don't care about choosing their own id still work.
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sessionID, err := c.CreateSession(r.Context(), sessionID, req.AdapterName, adapter.ConnectOptions{
		Cwd:            req.Cwd,
		Model:          req.Model,
		PermissionMode: req.PermissionMode,
		Env:            req.Env,
	})
	if err != nil {
		writeErr(w, statusForError(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": sessionID})
}

func (c *Coordinator) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.Registry.Snapshots())
}

func (c *Coordinator) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := c.CloseSession(r.Context(), sessionID); err != nil {
		writeErr(w, statusForError(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusForError(err error) int {
	if be, ok := err.(*brokererr.Error); ok {
		switch be.Code {
		case brokererr.CodeValidation:
			return http.StatusBadRequest
		case brokererr.CodeAuthFailed:
			return http.StatusUnauthorized
		case brokererr.CodeRateLimited:
			return http.StatusTooManyRequests
		case brokererr.CodeBackendUnavailable:
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	be, ok := err.(*brokererr.Error)
	if !ok {
		writeJSON(w, status, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, status, be.ToConsumer())
}
