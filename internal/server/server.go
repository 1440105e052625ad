// Package server exposes the board over HTTP and gRPC: the submission and
// read API, the live viewer stream, and health reporting.
package server

import (
	"github.com/rs/zerolog"

	"github.com/alfredjeanlab/shoutboard/internal/board"
	"github.com/alfredjeanlab/shoutboard/internal/presence"
)

// Options tunes the HTTP surface.
type Options struct {
	// CORSOrigins lists allowed origins; empty allows all.
	CORSOrigins []string
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
	// SubmitRatePerMinute and SubmitBurst configure the per-client limiter
	// on message submission. A zero rate disables it.
	SubmitRatePerMinute int
	SubmitBurst         int
}

// DefaultOptions returns the stock HTTP settings.
func DefaultOptions() Options {
	return Options{
		CORSOrigins:         []string{"*"},
		MaxBodyBytes:        8 * 1024,
		SubmitRatePerMinute: 30,
		SubmitBurst:         5,
	}
}

// Nudger is told when a message has been queued. The local scheduler uses
// it to promote without waiting for its next tick.
type Nudger interface {
	Nudge()
}

// Server serves the board API.
type Server struct {
	board   *board.Service
	hub     *Hub
	roster  *presence.Roster
	limiter *submitLimiter
	nudger  Nudger
	opts    Options
	logger  zerolog.Logger
}

// New creates a server. The hub receives board events from the scheduler or
// from a bus relay; the roster tracks the viewers it streams to.
func New(b *board.Service, hub *Hub, roster *presence.Roster, opts Options, logger zerolog.Logger) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultOptions().MaxBodyBytes
	}
	s := &Server{
		board:  b,
		hub:    hub,
		roster: roster,
		opts:   opts,
		logger: logger.With().Str("component", "http").Logger(),
	}
	if opts.SubmitRatePerMinute > 0 {
		s.limiter = newSubmitLimiter(opts.SubmitRatePerMinute, opts.SubmitBurst)
	}
	return s
}

// SetNudger registers n to hear about accepted submissions. Call it before
// serving.
func (s *Server) SetNudger(n Nudger) {
	s.nudger = n
}

// Hub returns the viewer fan-out hub.
func (s *Server) Hub() *Hub {
	return s.hub
}
