package api

import (
	"net/http"
	"runtime"
	"time"
)

type DiagnosticsInfo struct {
	HTTPAddr       string `json:"http_addr"`
	StorageDriver  string `json:"storage_driver"`
	LLMModel       string `json:"llm_model,omitempty"`
	LLMConfigured  bool   `json:"llm_configured"`
	NotifyGateway  string `json:"notify_gateway"`
	InflightWindow string `json:"inflight_window"`
}

type DiagnosticsResponse struct {
	Time          time.Time       `json:"time"`
	StartedAt     time.Time       `json:"started_at"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	GoVersion     string          `json:"go_version"`
	Info          DiagnosticsInfo `json:"info"`
	Notifications map[string]any  `json:"notifications"`
	Runs          map[string]any  `json:"runs"`
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	now := time.Now().UTC()
	started := s.StartedAt
	if started.IsZero() {
		started = now
	}
	resp := DiagnosticsResponse{
		Time:          now,
		StartedAt:     started,
		UptimeSeconds: int64(now.Sub(started).Seconds()),
		GoVersion:     runtime.Version(),
		Info:          s.Info,
		Notifications: map[string]any{},
		Runs:          map[string]any{},
	}
	if s.Inbox != nil {
		resp.Notifications["subscribers"] = s.Inbox.SubscriberCount()
	}
	if s.Ledger != nil {
		if n, err := s.Ledger.CountRunning(r.Context()); err == nil {
			resp.Runs["running"] = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
