package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/oliveapp/olive-agents/internal/dispatch"
	"github.com/oliveapp/olive-agents/internal/ledger"
)

// runnerRequest is the body of POST /api/agent-runner. Fields not used by
// the chosen action are ignored.
type runnerRequest struct {
	Action         string         `json:"action"`
	AgentID        string         `json:"agent_id"`
	UserID         string         `json:"user_id"`
	CoupleID       string         `json:"couple_id"`
	ConfigOverride map[string]any `json:"config_override"`
	Async          bool           `json:"async"`
	Limit          int            `json:"limit"`
	Schedule       string         `json:"schedule"`
	RunID          string         `json:"run_id"`
	Reason         string         `json:"reason"`
}

type runResult struct {
	Success bool           `json:"success"`
	Status  ledger.Status  `json:"status"`
	Outcome string         `json:"outcome,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func (s *Server) handleAgentRunner(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req runnerRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch req.Action {
	case "run":
		s.runAgent(w, r, req)
	case "get_recent_runs":
		s.recentRuns(w, r, req)
	case "get_last_run":
		s.lastRun(w, r, req)
	case "run_scheduled":
		s.runScheduled(w, r, req)
	case "approve_run":
		s.approveRun(w, r, req)
	case "cancel_run":
		s.cancelRun(w, r, req)
	case "":
		writeError(w, http.StatusBadRequest, errors.New("action is required"))
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown action %q", req.Action))
	}
}

func (s *Server) runAgent(w http.ResponseWriter, r *http.Request, req runnerRequest) {
	dreq := dispatch.Request{
		AgentID:        req.AgentID,
		UserID:         req.UserID,
		CoupleID:       req.CoupleID,
		ConfigOverride: req.ConfigOverride,
	}
	if req.Async {
		runID, err := s.Dispatcher.RunAsync(r.Context(), dreq)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"success": true,
			"run_id":  runID,
			"status":  ledger.StatusRunning,
		})
		return
	}

	res, err := s.Dispatcher.Run(r.Context(), dreq)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeRunResult(w, res)
}

func writeRunResult(w http.ResponseWriter, res dispatch.Result) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": res.Success,
		"run_id":  res.RunID,
		"result": runResult{
			Success: res.Success,
			Status:  res.Status,
			Outcome: string(res.Outcome),
			Message: res.Message,
			Data:    res.Data,
			Error:   res.Error,
		},
	})
}

func (s *Server) approveRun(w http.ResponseWriter, r *http.Request, req runnerRequest) {
	if req.RunID == "" {
		writeError(w, http.StatusBadRequest, errors.New("run_id is required"))
		return
	}
	res, err := s.Dispatcher.Approve(r.Context(), req.RunID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeRunResult(w, res)
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request, req runnerRequest) {
	if req.RunID == "" {
		writeError(w, http.StatusBadRequest, errors.New("run_id is required"))
		return
	}
	if err := s.Dispatcher.Cancel(r.Context(), req.RunID, req.Reason); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"run_id":  req.RunID,
		"status":  ledger.StatusCancelled,
	})
}

func (s *Server) recentRuns(w http.ResponseWriter, r *http.Request, req runnerRequest) {
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, errors.New("user_id is required"))
		return
	}
	runs, err := s.Ledger.Recent(r.Context(), ledger.Filter{UserID: req.UserID, AgentID: req.AgentID, Limit: req.Limit})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []ledger.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) lastRun(w http.ResponseWriter, r *http.Request, req runnerRequest) {
	if req.UserID == "" || req.AgentID == "" {
		writeError(w, http.StatusBadRequest, errors.New("user_id and agent_id are required"))
		return
	}
	run, ok, err := s.Ledger.Last(r.Context(), req.UserID, req.AgentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"run": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) runScheduled(w http.ResponseWriter, r *http.Request, req runnerRequest) {
	report, err := s.Dispatcher.RunScheduled(r.Context(), req.Schedule)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
