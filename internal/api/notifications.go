package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/oliveapp/olive-agents/internal/notifications"
)

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, errors.New("user_id is required"))
		return
	}
	items, err := s.Inbox.List(r.Context(), userID, notifications.ListOptions{
		UnreadOnly:       parseBool(q.Get("unread")),
		IncludeDismissed: parseBool(q.Get("dismissed")),
		Limit:            parseInt(q.Get("limit"), 50),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	unread, err := s.Inbox.UnreadCount(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []notifications.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items, "unread": unread})
}

// handleNotificationItem serves /api/notifications/{id}/read and
// /api/notifications/{id}/dismiss.
func (s *Server) handleNotificationItem(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) != 2 || segments[0] == "" {
		writeError(w, http.StatusNotFound, errNotFound("notification"))
		return
	}
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	id := segments[0]
	var (
		item notifications.Notification
		err  error
	)
	switch segments[1] {
	case "read":
		item, err = s.Inbox.MarkRead(r.Context(), id)
	case "dismiss":
		item, err = s.Inbox.Dismiss(r.Context(), id)
	default:
		writeError(w, http.StatusNotFound, errNotFound("notification action"))
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, errors.New("user_id is required"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errNotFound("streaming support"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	_, _ = w.Write([]byte(":ok\n\n"))
	flusher.Flush()

	ctx := r.Context()
	sub := s.Inbox.Subscribe(ctx, userID)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub:
			if !ok {
				return
			}
			payload, _ := json.Marshal(evt)
			_, _ = w.Write([]byte("event: " + evt.Kind + "\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
