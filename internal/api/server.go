package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/oliveapp/olive-agents/internal/dispatch"
	"github.com/oliveapp/olive-agents/internal/ledger"
	"github.com/oliveapp/olive-agents/internal/notifications"
	"github.com/oliveapp/olive-agents/internal/registry"
)

type Server struct {
	Dispatcher  *dispatch.Dispatcher
	Ledger      *ledger.Ledger
	Registry    *registry.Registry
	Activations *registry.Activations
	Inbox       *notifications.Inbox
	Logger      zerolog.Logger
	StartedAt   time.Time
	Info        DiagnosticsInfo
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/agent-runner", s.handleAgentRunner)
	mux.HandleFunc("/api/agents", s.handleAgents)
	mux.HandleFunc("/api/activations", s.handleActivations)
	mux.HandleFunc("/api/notifications", s.handleNotifications)
	mux.HandleFunc("/api/notifications/stream", s.handleNotificationStream)
	mux.HandleFunc("/api/notifications/ws", s.handleNotificationWS)
	mux.HandleFunc("/api/notifications/", s.handleNotificationItem)
	mux.HandleFunc("/api/diagnostics", s.handleDiagnostics)

	return accessLog(s.Logger, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	items, err := s.Dispatcher.Agents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []registry.Agent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": items})
}

func (s *Server) handleActivations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeError(w, http.StatusBadRequest, errors.New("user_id is required"))
			return
		}
		items, err := s.Activations.ListForUser(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if items == nil {
			items = []registry.Activation{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"activations": items})
	case http.MethodPost:
		var payload struct {
			UserID  string         `json:"user_id"`
			SkillID string         `json:"skill_id"`
			Enabled bool           `json:"enabled"`
			Config  map[string]any `json:"config"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if _, err := s.Registry.Lookup(r.Context(), payload.SkillID); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		act, err := s.Activations.Set(r.Context(), payload.UserID, payload.SkillID, payload.Enabled, payload.Config)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, act)
	default:
		writeMethodNotAllowed(w)
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrAgentNotFound),
		errors.Is(err, ledger.ErrRunNotFound),
		errors.Is(err, notifications.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrRunInProgress),
		errors.Is(err, ledger.ErrStateConflict),
		errors.Is(err, ledger.ErrInvalidStatusTransition):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.Reader, dest any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && parsed
}

type notFoundError struct {
	msg string
}

func (e notFoundError) Error() string { return e.msg }

func errNotFound(target string) error {
	return notFoundError{msg: target + " not found"}
}
