package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alfredjeanlab/shoutboard/internal/board"
	"github.com/alfredjeanlab/shoutboard/internal/events"
	"github.com/alfredjeanlab/shoutboard/internal/metrics"
	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/presence"
)

const (
	// sseClientBuffer is how many events a viewer may fall behind before it
	// is disconnected.
	sseClientBuffer = 64

	// sseKeepaliveInterval is how often keepalive comments are sent to
	// prevent connection timeouts.
	sseKeepaliveInterval = 15 * time.Second
)

// Disconnect reasons, as reported to the roster and metrics.
const (
	reasonClient   = "client"
	reasonLagged   = "lagged"
	reasonShutdown = "shutdown"
	reasonError    = "error"
)

// sseEvent is a single board event fanned out to viewers.
type sseEvent struct {
	Seq   uint64
	Topic string
	Data  []byte // JSON-encoded payload

	// Parsed from Data so sessions can deduplicate without decoding again.
	MessageID   string
	DisplayedAt time.Time
}

// Hub fans out board events to connected viewers. It implements
// events.Publisher so that a single-process deployment can have the
// scheduler publish straight into it.
type Hub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
	closed  bool
	nextSeq atomic.Uint64
	logger  zerolog.Logger
}

// Compile-time check that Hub implements events.Publisher.
var _ events.Publisher = (*Hub)(nil)

// sseClient is one connected viewer's mailbox.
type sseClient struct {
	ch     chan *sseEvent
	gone   chan struct{}
	once   sync.Once
	reason string
}

// NewHub creates a hub with no viewers.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*sseClient]struct{}),
		logger:  logger.With().Str("component", "sse").Logger(),
	}
}

// Publish marshals event once and fans it out.
func (h *Hub) Publish(_ context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	h.Broadcast(topic, data)
	return nil
}

// Broadcast fans out an already-encoded payload. A viewer whose mailbox is
// full is disconnected.
func (h *Hub) Broadcast(topic string, data []byte) {
	var key struct {
		ID          string     `json:"id"`
		DisplayedAt *time.Time `json:"displayedAt"`
	}
	if err := json.Unmarshal(data, &key); err != nil || key.ID == "" {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("dropping event without message id")
		return
	}
	evt := &sseEvent{
		Seq:       h.nextSeq.Add(1),
		Topic:     topic,
		Data:      data,
		MessageID: key.ID,
	}
	if key.DisplayedAt != nil {
		evt.DisplayedAt = key.DisplayedAt.UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.ch <- evt:
		default:
			c.drop(reasonLagged)
		}
	}
}

// Close disconnects every viewer. Later subscribers are rejected.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		c.drop(reasonShutdown)
		delete(h.clients, c)
	}
	return nil
}

// Viewers returns the number of subscribed mailboxes.
func (h *Hub) Viewers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) subscribe() (*sseClient, bool) {
	c := &sseClient{
		ch:   make(chan *sseEvent, sseClientBuffer),
		gone: make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *Hub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// drop marks the client for disconnection. Only the first reason sticks.
func (c *sseClient) drop(reason string) {
	c.once.Do(func() {
		c.reason = reason
		close(c.gone)
	})
}

// viewerState is what one session has told its viewer is on screen, keyed
// by message id.
type viewerState map[string]time.Time

// admit reports whether evt changes what the viewer sees, and records it.
// Activations already shown and expirations of messages never shown (or of
// an earlier display occurrence) are filtered out.
func (v viewerState) admit(evt *sseEvent) bool {
	shown, ok := v[evt.MessageID]
	switch evt.Topic {
	case events.TopicMessageActivated:
		if ok && !evt.DisplayedAt.After(shown) {
			return false
		}
		v[evt.MessageID] = evt.DisplayedAt
		return true
	case events.TopicMessageExpired:
		if !ok {
			return false
		}
		if !evt.DisplayedAt.IsZero() && evt.DisplayedAt.Before(shown) {
			return false
		}
		delete(v, evt.MessageID)
		return true
	}
	return false
}

// StreamHandler serves the live viewer stream.
type StreamHandler struct {
	hub    *Hub
	board  *board.Service
	roster *presence.Roster
	logger zerolog.Logger
}

// ServeHTTP handles GET /v1/events/stream.
func (s *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before the snapshot read; admit absorbs the overlap.
	client, ok := s.hub.subscribe()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "server shutting down")
		return
	}
	defer s.hub.unsubscribe(client)

	ctx := r.Context()
	active, err := s.board.ListActive(ctx, board.MaxListLimit)
	if err != nil {
		s.logger.Error().Err(err).Msg("loading initial state")
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	if active == nil {
		active = []*model.Message{}
	}

	state := make(viewerState, len(active))
	for _, m := range active {
		if m.DisplayedAt != nil {
			state[m.ID] = *m.DisplayedAt
		}
	}

	sessionID := uuid.NewString()
	s.roster.Connect(presence.Viewer{
		SessionID:  sessionID,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	reason := reasonClient
	defer func() { s.roster.Disconnect(sessionID, reason) }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.Header().Set("X-Session-Id", sessionID)
	w.WriteHeader(http.StatusOK)

	initial, err := json.Marshal(active)
	if err != nil {
		reason = reasonError
		return
	}
	if err := writeSSE(w, 0, events.EventInitialState, initial); err != nil {
		reason = reasonError
		return
	}
	flusher.Flush()
	s.roster.Delivered(sessionID, len(state))

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.gone:
			reason = client.reason
			s.logger.Warn().Str("session", sessionID).Str("reason", reason).Msg("disconnecting viewer")
			return
		case evt := <-client.ch:
			if !state.admit(evt) {
				continue
			}
			if err := writeSSE(w, evt.Seq, events.EventName(evt.Topic), evt.Data); err != nil {
				reason = reasonError
				return
			}
			flusher.Flush()
			s.roster.Delivered(sessionID, len(state))
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ":keepalive\n\n"); err != nil {
				reason = reasonError
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE writes a single SSE event. seq 0 omits the id field.
func writeSSE(w http.ResponseWriter, seq uint64, name string, data []byte) error {
	if seq > 0 {
		if _, err := fmt.Fprintf(w, "id:%d\n", seq); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "event:%s\ndata:%s\n\n", name, data)
	return err
}

// Relay forwards every board event from a bus subscription into the hub
// until ctx is done or the subscription closes.
func Relay(ctx context.Context, sub events.Subscriber, hub *Hub, logger zerolog.Logger) error {
	ch, cancel, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", events.TopicAll, err)
	}
	defer cancel()

	logger.Info().Str("topic", events.TopicAll).Msg("relaying board events")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			hub.Broadcast(msg.Topic, msg.Data)
			metrics.EventsRelayed.WithLabelValues(msg.Topic).Inc()
		}
	}
}
