package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/alfredjeanlab/shoutboard/internal/events"
	"github.com/alfredjeanlab/shoutboard/internal/model"
)

// StreamEvent is one server-sent event.
type StreamEvent struct {
	ID   string
	Name string
	Data []byte
}

// Initial decodes an initial-state event.
func (e *StreamEvent) Initial() ([]*model.Message, error) {
	var ms []*model.Message
	if err := json.Unmarshal(e.Data, &ms); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", e.Name, err)
	}
	return ms, nil
}

// Activated decodes a message-activated event.
func (e *StreamEvent) Activated() (*events.MessageActivated, error) {
	var a events.MessageActivated
	if err := json.Unmarshal(e.Data, &a); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", e.Name, err)
	}
	return &a, nil
}

// Expired decodes a message-expired event.
func (e *StreamEvent) Expired() (*events.MessageExpired, error) {
	var x events.MessageExpired
	if err := json.Unmarshal(e.Data, &x); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", e.Name, err)
	}
	return &x, nil
}

// Stream reads events from an open viewer stream.
type Stream struct {
	SessionID string

	body    io.ReadCloser
	scanner *bufio.Scanner
}

// Stream opens GET /v1/events/stream. The first event is always
// initial-state.
func (c *HTTPClient) Stream(ctx context.Context) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/events/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, newAPIError(resp, body)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Stream{
		SessionID: resp.Header.Get("X-Session-Id"),
		body:      resp.Body,
		scanner:   scanner,
	}, nil
}

// Next blocks until the next event. Comments (keepalives) are skipped. It
// returns io.EOF when the server closes the stream.
func (s *Stream) Next() (*StreamEvent, error) {
	var (
		evt  StreamEvent
		data []string
	)
	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case line == "":
			if evt.Name == "" && len(data) == 0 {
				continue
			}
			evt.Data = []byte(strings.Join(data, "\n"))
			if evt.Name == "" {
				evt.Name = "message"
			}
			return &evt, nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			evt.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "id:"):
			evt.ID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		}
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close ends the stream.
func (s *Stream) Close() error {
	return s.body.Close()
}
