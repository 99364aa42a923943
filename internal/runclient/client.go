package runclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oliveapp/olive-agents/internal/dispatch"
	"github.com/oliveapp/olive-agents/internal/ledger"
)

const (
	DefaultAttempts = 3
	DefaultInterval = 3 * time.Second
)

// ErrPollExhausted means the run was accepted but had not reached a terminal
// status by the last poll. Callers fall back to RecentRuns.
var ErrPollExhausted = errors.New("run still in progress after polling")

// APIError is a non-2xx response from the agent runner.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agent runner returned %d: %s", e.Status, e.Message)
}

// Client talks to the agent-runner endpoint of a running server.
type Client struct {
	BaseURL  string
	HTTP     *http.Client
	Attempts int
	Interval time.Duration
}

func (c *Client) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) attempts() int {
	if c.Attempts > 0 {
		return c.Attempts
	}
	return DefaultAttempts
}

func (c *Client) interval() time.Duration {
	if c.Interval > 0 {
		return c.Interval
	}
	return DefaultInterval
}

// Run dispatches synchronously and returns the server's run response.
func (c *Client) Run(ctx context.Context, req dispatch.Request) (RunResponse, error) {
	var resp RunResponse
	err := c.call(ctx, runBody(req, false), &resp)
	return resp, err
}

type RunResponse struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id"`
	Result  struct {
		Success bool           `json:"success"`
		Status  ledger.Status  `json:"status"`
		Outcome string         `json:"outcome,omitempty"`
		Message string         `json:"message,omitempty"`
		Data    map[string]any `json:"data,omitempty"`
		Error   string         `json:"error,omitempty"`
	} `json:"result"`
}

// RunNow fires an async dispatch and polls get_last_run until that run is
// terminal or held for approval. After the configured attempts it returns
// the last run seen together with ErrPollExhausted.
func (c *Client) RunNow(ctx context.Context, req dispatch.Request) (ledger.Run, error) {
	var accepted struct {
		RunID string `json:"run_id"`
	}
	if err := c.call(ctx, runBody(req, true), &accepted); err != nil {
		return ledger.Run{}, err
	}

	last := ledger.Run{ID: accepted.RunID, AgentID: req.AgentID, UserID: req.UserID, Status: ledger.StatusRunning}
	timer := time.NewTimer(c.interval())
	defer timer.Stop()
	for attempt := 1; attempt <= c.attempts(); attempt++ {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-timer.C:
		}
		run, ok, err := c.LastRun(ctx, req.UserID, req.AgentID)
		if err != nil {
			return last, err
		}
		if ok && run.ID == accepted.RunID {
			last = run
			if ledger.IsTerminal(run.Status) || run.Status == ledger.StatusAwaitingApproval {
				return run, nil
			}
		}
		timer.Reset(c.interval())
	}
	return last, ErrPollExhausted
}

func (c *Client) LastRun(ctx context.Context, userID, agentID string) (ledger.Run, bool, error) {
	var resp struct {
		Run *ledger.Run `json:"run"`
	}
	body := map[string]any{"action": "get_last_run", "user_id": userID, "agent_id": agentID}
	if err := c.call(ctx, body, &resp); err != nil {
		return ledger.Run{}, false, err
	}
	if resp.Run == nil {
		return ledger.Run{}, false, nil
	}
	return *resp.Run, true, nil
}

func (c *Client) RecentRuns(ctx context.Context, userID, agentID string, limit int) ([]ledger.Run, error) {
	var resp struct {
		Runs []ledger.Run `json:"runs"`
	}
	body := map[string]any{"action": "get_recent_runs", "user_id": userID}
	if agentID != "" {
		body["agent_id"] = agentID
	}
	if limit > 0 {
		body["limit"] = limit
	}
	if err := c.call(ctx, body, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (c *Client) RunScheduled(ctx context.Context, schedule string) (dispatch.ScheduleReport, error) {
	var report dispatch.ScheduleReport
	err := c.call(ctx, map[string]any{"action": "run_scheduled", "schedule": schedule}, &report)
	return report, err
}

// ApproveRun completes a run held for approval and delivers its notification.
func (c *Client) ApproveRun(ctx context.Context, runID string) (RunResponse, error) {
	var resp RunResponse
	err := c.call(ctx, map[string]any{"action": "approve_run", "run_id": runID}, &resp)
	return resp, err
}

func (c *Client) CancelRun(ctx context.Context, runID, reason string) error {
	body := map[string]any{"action": "cancel_run", "run_id": runID}
	if reason != "" {
		body["reason"] = reason
	}
	return c.call(ctx, body, nil)
}

func runBody(req dispatch.Request, async bool) map[string]any {
	body := map[string]any{
		"action":   "run",
		"agent_id": req.AgentID,
		"user_id":  req.UserID,
	}
	if req.CoupleID != "" {
		body["couple_id"] = req.CoupleID
	}
	if len(req.ConfigOverride) > 0 {
		body["config_override"] = req.ConfigOverride
	}
	if async {
		body["async"] = true
	}
	return body
}

func (c *Client) call(ctx context.Context, payload map[string]any, dest any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/api/agent-runner"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
