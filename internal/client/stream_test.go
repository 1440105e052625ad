package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/alfredjeanlab/shoutboard/internal/events"
)

// sseHandler writes a fixed SSE transcript and closes the stream.
func sseHandler(transcript string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/events/stream" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("X-Session-Id", "session-1")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, transcript)
	}
}

func TestStream_ParsesEvents(t *testing.T) {
	transcript := "event:initial-state\n" +
		`data:[{"id":"a","author":null,"body":"hi","status":"displaying","createdAt":"2025-12-31T23:00:00Z","displayedAt":"2025-12-31T23:00:01Z","expiresAt":"2025-12-31T23:01:01Z","displayCount":1}]` + "\n\n" +
		":keepalive\n\n" +
		"id:7\nevent:message-activated\n" +
		`data:{"id":"b","author":"Bo","body":"yo","displayedAt":"2025-12-31T23:00:02Z","expiresAt":"2025-12-31T23:01:02Z"}` + "\n\n" +
		"id:8\nevent:message-expired\n" +
		`data:{"id":"a","displayedAt":"2025-12-31T23:00:01Z"}` + "\n\n"

	c := newTestClient(t, sseHandler(transcript))
	s, err := c.Stream(context.Background())
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer s.Close()

	if s.SessionID != "session-1" {
		t.Fatalf("session id = %q", s.SessionID)
	}

	evt, err := s.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if evt.Name != events.EventInitialState || evt.ID != "" {
		t.Fatalf("first event = %+v", evt)
	}
	initial, err := evt.Initial()
	if err != nil || len(initial) != 1 || initial[0].ID != "a" {
		t.Fatalf("initial = %+v, err = %v", initial, err)
	}

	evt, err = s.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if evt.Name != events.EventMessageActivated || evt.ID != "7" {
		t.Fatalf("second event = %+v", evt)
	}
	act, err := evt.Activated()
	if err != nil || act.ID != "b" || *act.Author != "Bo" {
		t.Fatalf("activated = %+v, err = %v", act, err)
	}

	evt, err = s.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	exp, err := evt.Expired()
	if err != nil || evt.Name != events.EventMessageExpired || exp.ID != "a" || exp.DisplayedAt == nil {
		t.Fatalf("expired = %+v, err = %v", exp, err)
	}

	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestStream_EmptyInitialState(t *testing.T) {
	c := newTestClient(t, sseHandler("event:initial-state\ndata:[]\n\n"))
	s, err := c.Stream(context.Background())
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer s.Close()

	evt, err := s.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	ms, err := evt.Initial()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ms == nil || len(ms) != 0 {
		t.Fatalf("initial = %#v, want empty non-nil slice", ms)
	}
}

func TestStream_Unavailable(t *testing.T) {
	c := newTestClient(t, &testHandler{statusCode: http.StatusServiceUnavailable, responseBody: `{"error":"store unavailable"}`})

	_, err := c.Stream(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 APIError, got %v", err)
	}
}
