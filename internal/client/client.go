// Package client provides the interface the sb CLI uses to talk to a board
// server and an HTTP/JSON implementation of it.
package client

import (
	"context"

	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/presence"
)

// BoardClient is the interface that all sb commands use to communicate with
// the board server.
type BoardClient interface {
	// Messages
	PostMessage(ctx context.Context, req *PostMessageRequest) (*model.Message, error)
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	ListActive(ctx context.Context, limit int) ([]*model.Message, error)
	GetEvents(ctx context.Context, id string) ([]*model.Event, error)

	// Board
	Stats(ctx context.Context) (*model.Stats, error)
	Viewers(ctx context.Context) ([]presence.Entry, error)
	Health(ctx context.Context) (*HealthStatus, error)

	// Stream opens the live viewer stream.
	Stream(ctx context.Context) (*Stream, error)

	// Lifecycle
	Close() error
}

// PostMessageRequest holds a submission. A nil Author posts anonymously.
type PostMessageRequest struct {
	Author *string `json:"author,omitempty"`
	Body   string  `json:"body"`
}

// HealthStatus is the server's view of its own dependencies.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// OK reports whether every check passed.
func (h *HealthStatus) OK() bool {
	return h.Status == "ok"
}
