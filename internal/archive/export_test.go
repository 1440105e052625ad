package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/store/memory"
)

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

func TestExportJSONL_Empty(t *testing.T) {
	st := memory.New()
	defer st.Close()

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), st, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (header only), got %d", len(lines))
	}
	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Version != FormatVersion || h.Type != "header" || h.MessageCount != 0 || h.EventCount != 0 {
		t.Fatalf("unexpected header: %+v", h)
	}
}

// seed creates two messages: "m2" (shown once, then expired) and "m1"
// (still queued), with m1 created later so export order differs from id
// order.
func seed(t *testing.T, st *memory.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)

	author := "Dana"
	for _, m := range []*model.Message{
		{ID: "m2", Author: &author, Body: "<b>cheers</b>", CreatedAt: base},
		{ID: "m1", Body: "happy new year", CreatedAt: base.Add(time.Minute)},
	} {
		if err := st.CreateMessage(ctx, m); err != nil {
			t.Fatalf("create %s: %v", m.ID, err)
		}
	}
	if _, err := st.Transition(ctx, model.Activate("m2", base.Add(2*time.Minute), time.Minute)); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := st.Transition(ctx, model.Expire("m2", base.Add(3*time.Minute))); err != nil {
		t.Fatalf("expire: %v", err)
	}
	for _, e := range []*model.Event{
		{MessageID: "m2", Kind: model.EventActivated, Occurrence: 1, At: base.Add(2 * time.Minute)},
		{MessageID: "m2", Kind: model.EventExpired, Occurrence: 1, At: base.Add(3 * time.Minute)},
	} {
		if err := st.RecordEvent(ctx, e); err != nil {
			t.Fatalf("record event: %v", err)
		}
	}
}

func TestExportJSONL_MessagesWithEvents(t *testing.T) {
	st := memory.New()
	defer st.Close()
	seed(t, st)

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), st, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), buf.String())
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.MessageCount != 2 || h.EventCount != 2 {
		t.Fatalf("unexpected header counts: %+v", h)
	}

	type line struct {
		Type string `json:"type"`
		Data struct {
			ID           string         `json:"id"`
			Status       model.Status   `json:"status"`
			DisplayCount int            `json:"displayCount"`
			Events       []*model.Event `json:"events"`
		} `json:"data"`
	}
	var first, second line
	if err := json.Unmarshal([]byte(lines[1]), &first); err != nil {
		t.Fatalf("unmarshal first: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[2]), &second); err != nil {
		t.Fatalf("unmarshal second: %v", err)
	}

	if first.Type != "message" || first.Data.ID != "m2" {
		t.Fatalf("first record = %+v, want message m2", first)
	}
	if first.Data.Status != model.StatusExpired || first.Data.DisplayCount != 1 {
		t.Fatalf("m2 = %+v, want expired with one display", first.Data)
	}
	if len(first.Data.Events) != 2 || first.Data.Events[0].Kind != model.EventActivated {
		t.Fatalf("m2 events = %+v", first.Data.Events)
	}

	if second.Data.ID != "m1" || second.Data.Status != model.StatusQueued {
		t.Fatalf("second record = %+v, want queued m1", second.Data)
	}
	if second.Data.Events == nil || len(second.Data.Events) != 0 {
		t.Fatalf("m1 events = %v, want empty array", second.Data.Events)
	}
}

func TestExportJSONL_NoHTMLEscaping(t *testing.T) {
	st := memory.New()
	defer st.Close()
	seed(t, st)

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), st, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "<b>cheers</b>") {
		t.Fatalf("expected raw body in output:\n%s", buf.String())
	}
}

func TestExportJSONL_StoreError(t *testing.T) {
	st := memory.New()
	st.Close()

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), st, &buf); err == nil {
		t.Fatal("expected error from closed store")
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written, got %q", buf.String())
	}
}
