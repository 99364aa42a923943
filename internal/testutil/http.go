package testutil

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// BaseURL is the host used for requests served by an in-process client.
const BaseURL = "http://in-process"

type handlerTransport struct {
	handler http.Handler
}

func (rt *handlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	rt.handler.ServeHTTP(rec, req)
	res := rec.Result()
	res.Request = req
	return res, nil
}

// NewInProcessClient returns a client that serves every request with handler
// without opening a socket.
func NewInProcessClient(handler http.Handler) *http.Client {
	return &http.Client{Transport: &handlerTransport{handler: handler}}
}

func NewRequest(method, path string, body []byte) *http.Request {
	return httptest.NewRequest(method, BaseURL+path, bytes.NewReader(body))
}

// StreamRecorder is a flushable ResponseWriter whose body can be read while
// the handler is still writing, for server-sent event endpoints.
type StreamRecorder struct {
	HeaderMap http.Header
	Code      int
	Body      io.ReadCloser
	writer    io.WriteCloser
}

func NewStreamRecorder() *StreamRecorder {
	r, w := io.Pipe()
	return &StreamRecorder{
		HeaderMap: make(http.Header),
		Code:      http.StatusOK,
		Body:      r,
		writer:    w,
	}
}

func (sr *StreamRecorder) Header() http.Header { return sr.HeaderMap }

func (sr *StreamRecorder) WriteHeader(statusCode int) { sr.Code = statusCode }

func (sr *StreamRecorder) Write(p []byte) (int, error) { return sr.writer.Write(p) }

func (sr *StreamRecorder) Flush() {}

func (sr *StreamRecorder) Close() error { return sr.writer.Close() }

// SSEEvent is one "event:"/"data:" block read from a stream.
type SSEEvent struct {
	Kind string
	Data string
}

// ReadEvents parses server-sent events from r onto the returned channel,
// skipping comment lines. The channel closes when r is exhausted.
func ReadEvents(r io.Reader) <-chan SSEEvent {
	out := make(chan SSEEvent, 8)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		var evt SSEEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if evt.Data != "" {
					out <- evt
				}
				evt = SSEEvent{}
			case strings.HasPrefix(line, ":"):
			case strings.HasPrefix(line, "event:"):
				evt.Kind = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				evt.Data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
	}()
	return out
}

// Eventually polls cond every 10ms until it holds or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out: %s", msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
