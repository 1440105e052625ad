package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/alfredjeanlab/shoutboard/internal/board"
	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/presence"
	"github.com/alfredjeanlab/shoutboard/internal/store/memory"
)

var testBase = time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)

// newTestServer creates a Server backed by an in-memory store, with the
// submit limiter disabled.
func newTestServer(t *testing.T) (*Server, *memory.Store, http.Handler) {
	t.Helper()
	opts := DefaultOptions()
	opts.SubmitRatePerMinute = 0
	return newTestServerWith(t, opts)
}

func newTestServerWith(t *testing.T, opts Options) (*Server, *memory.Store, http.Handler) {
	t.Helper()
	st := memory.New()
	svc := board.New(st, model.DefaultLimits(), 10)
	srv := New(svc, NewHub(zerolog.Nop()), presence.New(zerolog.Nop()), opts, zerolog.Nop())
	return srv, st, srv.NewHTTPHandler()
}

// display inserts a message and moves it to displaying at the given time.
func display(t *testing.T, st *memory.Store, id string, at time.Time) *model.Message {
	t.Helper()
	ctx := context.Background()
	if err := st.CreateMessage(ctx, &model.Message{ID: id, Body: "body of " + id}); err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
	m, err := st.Transition(ctx, model.Activate(id, at, time.Minute))
	if err != nil {
		t.Fatalf("activate %s: %v", id, err)
	}
	return m
}

// sseReader reads events from a live stream.
type sseReader struct {
	t  *testing.T
	br *bufio.Reader
}

type streamEvent struct {
	name string
	data string
}

// next returns the next event, skipping comments.
func (r *sseReader) next() streamEvent {
	r.t.Helper()
	type result struct {
		ev  streamEvent
		err error
	}
	done := make(chan result, 1)
	go func() {
		var ev streamEvent
		for {
			line, err := r.br.ReadString('\n')
			if err != nil {
				done <- result{err: err}
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				if ev.name != "" {
					done <- result{ev: ev}
					return
				}
			case strings.HasPrefix(line, ":"):
			case strings.HasPrefix(line, "event:"):
				ev.name = strings.TrimPrefix(line, "event:")
			case strings.HasPrefix(line, "data:"):
				ev.data = strings.TrimPrefix(line, "data:")
			}
		}
	}()
	select {
	case res := <-done:
		if res.err != nil {
			r.t.Fatalf("reading stream: %v", res.err)
		}
		return res.ev
	case <-time.After(2 * time.Second):
		r.t.Fatal("timed out waiting for stream event")
	}
	return streamEvent{}
}

// openStream connects to the stream endpoint of a live test server.
func openStream(t *testing.T, ts *httptest.Server) (*sseReader, *http.Response) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/events/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("connecting stream: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	return &sseReader{t: t, br: bufio.NewReader(resp.Body)}, resp
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
