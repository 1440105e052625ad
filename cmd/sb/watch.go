package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/shoutboard/internal/client"
	"github.com/alfredjeanlab/shoutboard/internal/events"
	"github.com/alfredjeanlab/shoutboard/internal/ui"
)

const maxReconnectDelay = 30 * time.Second

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Follow the board live",
	GroupID: "board",
	Long: `Follow the board live. Prints the messages on screen now, then one line
per message as it appears (+) or leaves (-). Reconnects with backoff when
the stream drops; each reconnect starts from a fresh snapshot.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		view := newBoardView(cmd.OutOrStdout())
		delay := time.Second
		for {
			err := watchOnce(ctx, boardClient, view, once)
			if once || ctx.Err() != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			if err == nil || errors.Is(err, io.EOF) {
				delay = time.Second
			}
			fmt.Fprintln(os.Stderr, ui.RenderMuted(fmt.Sprintf("stream lost (%v), reconnecting in %s", err, delay)))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			delay = min(delay*2, maxReconnectDelay)
		}
	},
}

func init() {
	watchCmd.Flags().Bool("once", false, "print the current board and exit")
}

// watchOnce runs one stream connection until it fails or ctx ends.
func watchOnce(ctx context.Context, c client.BoardClient, view *boardView, once bool) error {
	s, err := c.Stream(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		evt, err := s.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := view.apply(evt); err != nil {
			fmt.Fprintln(os.Stderr, ui.RenderError(err.Error()))
			continue
		}
		if once && evt.Name == events.EventInitialState {
			return nil
		}
	}
}

// boardView mirrors what a viewer sees and prints the changes.
type boardView struct {
	out    io.Writer
	active map[string]string // id -> rendered line
}

func newBoardView(out io.Writer) *boardView {
	return &boardView{out: out, active: make(map[string]string)}
}

func (v *boardView) apply(evt *client.StreamEvent) error {
	switch evt.Name {
	case events.EventInitialState:
		msgs, err := evt.Initial()
		if err != nil {
			return err
		}
		v.active = make(map[string]string, len(msgs))
		fmt.Fprintln(v.out, ui.RenderMuted(fmt.Sprintf("── %d on the board ──", len(msgs))))
		for _, m := range msgs {
			line := renderLine(m.ID, m.AuthorName(), m.Body)
			v.active[m.ID] = line
			fmt.Fprintf(v.out, "  %s\n", line)
		}
	case events.EventMessageActivated:
		a, err := evt.Activated()
		if err != nil {
			return err
		}
		author := "anonymous"
		if a.Author != nil {
			author = *a.Author
		}
		line := renderLine(a.ID, author, a.Body)
		v.active[a.ID] = line
		fmt.Fprintf(v.out, "%s %s\n", ui.RenderAccent("+"), line)
	case events.EventMessageExpired:
		x, err := evt.Expired()
		if err != nil {
			return err
		}
		line, ok := v.active[x.ID]
		if !ok {
			return nil
		}
		delete(v.active, x.ID)
		fmt.Fprintf(v.out, "%s %s\n", ui.RenderMuted("-"), ui.RenderMuted(line))
	}
	return nil
}

func renderLine(id, author, body string) string {
	return fmt.Sprintf("%s: %s %s", ui.RenderCommand(author), body, ui.RenderMuted("("+id+")"))
}
