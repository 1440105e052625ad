package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/shoutboard/internal/model"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	// captured from the request
	method      string
	path        string
	rawPath     string
	query       string
	body        string
	contentType string

	// canned response
	statusCode   int
	header       map[string]string
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.rawPath = r.URL.RawPath
	h.query = r.URL.RawQuery
	h.contentType = r.Header.Get("Content-Type")
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}

	w.Header().Set("Content-Type", "application/json")
	for k, v := range h.header {
		w.Header().Set(k, v)
	}
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if h.responseBody != "" {
		_, _ = w.Write([]byte(h.responseBody))
	}
}

// newTestClient creates an HTTPClient pointed at a test server with the given handler.
func newTestClient(t *testing.T, h http.Handler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL + "/")
}

const messageJSON = `{
	"id": "V1StGXR8_Z5jdHi6B-myT",
	"author": "Alice",
	"body": "Happy new year!",
	"status": "queued",
	"createdAt": "2025-12-31T23:59:59.123Z",
	"displayedAt": null,
	"expiresAt": null,
	"displayCount": 0
}`

func strPtr(s string) *string { return &s }

// --- PostMessage ---

func TestHTTPClient_PostMessage(t *testing.T) {
	h := &testHandler{statusCode: http.StatusCreated, responseBody: messageJSON}
	c := newTestClient(t, h)

	m, err := c.PostMessage(context.Background(), &PostMessageRequest{Author: strPtr("Alice"), Body: "Happy new year!"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h.method != http.MethodPost || h.path != "/v1/messages" {
		t.Fatalf("request = %s %s, want POST /v1/messages", h.method, h.path)
	}
	if h.contentType != "application/json" {
		t.Fatalf("content type = %q", h.contentType)
	}
	if h.body != `{"author":"Alice","body":"Happy new year!"}` {
		t.Fatalf("body = %s", h.body)
	}

	if m.ID != "V1StGXR8_Z5jdHi6B-myT" || m.Status != model.StatusQueued || m.AuthorName() != "Alice" {
		t.Fatalf("unexpected message: %+v", m)
	}
	want := time.Date(2025, 12, 31, 23, 59, 59, 123000000, time.UTC)
	if !m.CreatedAt.Equal(want) {
		t.Fatalf("createdAt = %v, want %v", m.CreatedAt, want)
	}
	if m.DisplayedAt != nil || m.ExpiresAt != nil {
		t.Fatalf("queued message should have no display window: %+v", m)
	}
}

func TestHTTPClient_PostMessage_Anonymous(t *testing.T) {
	h := &testHandler{statusCode: http.StatusCreated, responseBody: messageJSON}
	c := newTestClient(t, h)

	if _, err := c.PostMessage(context.Background(), &PostMessageRequest{Body: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.body != `{"body":"hi"}` {
		t.Fatalf("body = %s, want author omitted", h.body)
	}
}

func TestHTTPClient_PostMessage_ValidationError(t *testing.T) {
	h := &testHandler{
		statusCode:   http.StatusBadRequest,
		responseBody: `{"error":"body: must not be empty","fields":[{"field":"body","message":"must not be empty"}]}`,
	}
	c := newTestClient(t, h)

	_, err := c.PostMessage(context.Background(), &PostMessageRequest{Body: ""})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
	if len(apiErr.Fields) != 1 || apiErr.Fields[0].Field != "body" {
		t.Fatalf("fields = %+v", apiErr.Fields)
	}
	if !strings.Contains(err.Error(), "body: must not be empty") {
		t.Fatalf("error = %q", err)
	}
}

func TestHTTPClient_PostMessage_RateLimited(t *testing.T) {
	h := &testHandler{
		statusCode:   http.StatusTooManyRequests,
		header:       map[string]string{"Retry-After": "3"},
		responseBody: `{"error":"too many submissions"}`,
	}
	c := newTestClient(t, h)

	_, err := c.PostMessage(context.Background(), &PostMessageRequest{Body: "spam"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.RetryAfter != 3*time.Second {
		t.Fatalf("retry after = %v, want 3s", apiErr.RetryAfter)
	}
}

// --- GetMessage ---

func TestHTTPClient_GetMessage_PathEscape(t *testing.T) {
	h := &testHandler{responseBody: messageJSON}
	c := newTestClient(t, h)

	if _, err := c.GetMessage(context.Background(), "a/b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.rawPath != "/v1/messages/a%2Fb" {
		t.Fatalf("raw path = %q", h.rawPath)
	}
}

func TestHTTPClient_GetMessage_NotFound(t *testing.T) {
	h := &testHandler{statusCode: http.StatusNotFound, responseBody: `{"error":"message not found"}`}
	c := newTestClient(t, h)

	_, err := c.GetMessage(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
	if apiErr.Message != "message not found" {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestHTTPClient_NonJSONError(t *testing.T) {
	h := &testHandler{statusCode: http.StatusBadGateway, responseBody: "upstream down\n"}
	c := newTestClient(t, h)

	_, err := c.GetMessage(context.Background(), "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "upstream down" {
		t.Fatalf("expected raw body as message, got %v", err)
	}
}

// --- ListActive / GetEvents ---

func TestHTTPClient_ListActive(t *testing.T) {
	h := &testHandler{responseBody: `{"messages":[
		{"id":"a","author":null,"body":"one","status":"displaying","createdAt":"2025-12-31T23:00:00Z","displayedAt":"2025-12-31T23:01:00Z","expiresAt":"2025-12-31T23:02:00Z","displayCount":1},
		{"id":"b","author":"Bo","body":"two","status":"displaying","createdAt":"2025-12-31T23:00:01Z","displayedAt":"2025-12-31T23:01:01Z","expiresAt":"2025-12-31T23:02:01Z","displayCount":2}
	]}`}
	c := newTestClient(t, h)

	ms, err := c.ListActive(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.path != "/v1/messages/active" || h.query != "limit=5" {
		t.Fatalf("request = %s?%s", h.path, h.query)
	}
	if len(ms) != 2 || ms[0].ID != "a" || ms[1].DisplayCount != 2 {
		t.Fatalf("unexpected messages: %+v", ms)
	}
	if ms[0].Author != nil {
		t.Fatalf("expected anonymous first message")
	}

	if _, err := c.ListActive(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.query != "" {
		t.Fatalf("query = %q, want none for default limit", h.query)
	}
}

func TestHTTPClient_GetEvents(t *testing.T) {
	h := &testHandler{responseBody: `{"events":[
		{"id":1,"messageId":"a","kind":"activated","occurrence":1,"at":"2025-12-31T23:01:00Z","instance":"node-1"},
		{"id":2,"messageId":"a","kind":"expired","occurrence":1,"at":"2025-12-31T23:02:00Z"}
	]}`}
	c := newTestClient(t, h)

	evs, err := c.GetEvents(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.path != "/v1/messages/a/events" {
		t.Fatalf("path = %q", h.path)
	}
	if len(evs) != 2 || evs[0].Kind != model.EventActivated || evs[0].Instance != "node-1" || evs[1].Kind != model.EventExpired {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

// --- Stats / Viewers / Health ---

func TestHTTPClient_Stats(t *testing.T) {
	h := &testHandler{responseBody: `{"queued":4,"displaying":10,"expired":7,"maxActive":10,"viewers":2}`}
	c := newTestClient(t, h)

	s, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := model.Stats{Queued: 4, Displaying: 10, Expired: 7, MaxActive: 10, Viewers: 2}
	if *s != want {
		t.Fatalf("stats = %+v, want %+v", *s, want)
	}
}

func TestHTTPClient_Viewers(t *testing.T) {
	h := &testHandler{responseBody: `{"viewers":[{"sessionId":"s-1","connectedAt":"2025-12-31T23:00:00Z","eventsSent":3,"activeShown":2,"idleSecs":1.5}]}`}
	c := newTestClient(t, h)

	vs, err := c.Viewers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vs) != 1 || vs[0].SessionID != "s-1" || vs[0].EventsSent != 3 || vs[0].ActiveShown != 2 {
		t.Fatalf("unexpected viewers: %+v", vs)
	}
}

func TestHTTPClient_Health(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		body   string
		ok     bool
	}{
		{"Healthy", http.StatusOK, `{"status":"ok","checks":{"store":"ok"}}`, true},
		{"Degraded", http.StatusServiceUnavailable, `{"status":"degraded","checks":{"store":"connection refused"}}`, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, &testHandler{statusCode: tc.status, responseBody: tc.body})

			h, err := c.Health(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if h.OK() != tc.ok {
				t.Fatalf("OK() = %v, want %v (%+v)", h.OK(), tc.ok, h)
			}
			if h.Checks["store"] == "" {
				t.Fatalf("missing store check: %+v", h)
			}
		})
	}
}

func TestHTTPClient_Health_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := NewHTTPClient(srv.URL)
	srv.Close()

	if _, err := c.Health(context.Background()); err == nil {
		t.Fatal("expected error for closed server")
	}
}
