package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/presence"
	"github.com/alfredjeanlab/shoutboard/internal/ui"
)

const timeFormat = "2006-01-02 15:04:05"

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(timeFormat)
}

func printMessage(w io.Writer, m *model.Message) {
	fmt.Fprintf(w, "ID:          %s\n", m.ID)
	fmt.Fprintf(w, "Author:      %s\n", m.AuthorName())
	fmt.Fprintf(w, "Body:        %s\n", m.Body)
	fmt.Fprintf(w, "Status:      %s\n", ui.RenderStatus(m.Status))
	fmt.Fprintf(w, "Created At:  %s\n", formatTime(&m.CreatedAt))
	fmt.Fprintf(w, "Displayed:   %s\n", formatTime(m.DisplayedAt))
	fmt.Fprintf(w, "Expires:     %s\n", formatTime(m.ExpiresAt))
	fmt.Fprintf(w, "Shown:       %d time(s)\n", m.DisplayCount)
}

func printEvents(w io.Writer, evs []*model.Event) {
	if len(evs) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("no display history"))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tKIND\tOCCURRENCE\tINSTANCE")
	for _, e := range evs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", e.At.Local().Format(timeFormat), e.Kind, e.Occurrence, e.Instance)
	}
	tw.Flush()
}

func printActiveTable(w io.Writer, msgs []*model.Message, now time.Time) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("nothing on the board"))
		return
	}
	bodyWidth := ui.Width() - 50
	if bodyWidth < 20 {
		bodyWidth = 20
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAUTHOR\tLEFT\tSHOWN\tBODY")
	for _, m := range msgs {
		left := "-"
		if m.ExpiresAt != nil {
			left = m.ExpiresAt.Sub(now).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			m.ID, ui.Truncate(m.AuthorName(), 16), left, m.DisplayCount, ui.Truncate(m.Body, bodyWidth))
	}
	tw.Flush()
}

func printStats(w io.Writer, s *model.Stats) {
	fmt.Fprintf(w, "Queued:      %d\n", s.Queued)
	fmt.Fprintf(w, "Displaying:  %d / %d\n", s.Displaying, s.MaxActive)
	fmt.Fprintf(w, "Expired:     %d\n", s.Expired)
	fmt.Fprintf(w, "Viewers:     %d\n", s.Viewers)
}

func printViewers(w io.Writer, vs []presence.Entry) {
	if len(vs) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("no viewers connected"))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tREMOTE\tCONNECTED\tEVENTS\tSHOWING\tIDLE")
	for _, v := range vs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.0fs\n",
			v.SessionID, v.RemoteAddr, v.ConnectedAt.Local().Format(timeFormat), v.EventsSent, v.ActiveShown, v.IdleSecs)
	}
	tw.Flush()
}
