package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/store"
)

// FormatVersion is written in every header record.
const FormatVersion = "1"

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	MessageCount int       `json:"message_count"`
	EventCount   int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// entry is a message together with its display log.
type entry struct {
	*model.Message
	Events []*model.Event `json:"events"`
}

// ExportJSONL writes every message in the store as JSONL to w, oldest first,
// each with its display log embedded.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	msgs, err := s.FindOldest(ctx, "", 0)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	entries := make([]entry, 0, len(msgs))
	events := 0
	for _, m := range msgs {
		evts, err := s.ListEvents(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("list events for %s: %w", m.ID, err)
		}
		if evts == nil {
			evts = []*model.Event{}
		}
		events += len(evts)
		entries = append(entries, entry{Message: m, Events: evts})
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      FormatVersion,
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		MessageCount: len(entries),
		EventCount:   events,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, e := range entries {
		if err := enc.Encode(record{Type: "message", Data: e}); err != nil {
			return fmt.Errorf("encode message %s: %w", e.ID, err)
		}
	}
	return nil
}
