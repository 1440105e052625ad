// Package presence keeps the roster of viewers currently connected to the
// live stream.
//
// The server registers a session when a viewer connects, counts the events
// delivered to it, and removes it on disconnect. Nothing here is persisted;
// each server process knows only its own viewers.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alfredjeanlab/shoutboard/internal/metrics"
)

// Entry is one connected viewer.
type Entry struct {
	SessionID   string    `json:"sessionId"`
	RemoteAddr  string    `json:"remoteAddr,omitempty"`
	UserAgent   string    `json:"userAgent,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastEventAt time.Time `json:"lastEventAt,omitempty"`
	EventsSent  int64     `json:"eventsSent"`
	ActiveShown int       `json:"activeShown"`
	IdleSecs    float64   `json:"idleSecs"`
}

// Viewer describes a session as it connects.
type Viewer struct {
	SessionID  string
	RemoteAddr string
	UserAgent  string
}

type viewerState struct {
	remoteAddr  string
	userAgent   string
	connectedAt time.Time
	lastEventAt time.Time
	eventsSent  int64
	activeShown int
}

// Roster is safe for concurrent use.
type Roster struct {
	mu      sync.RWMutex
	viewers map[string]*viewerState
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates an empty roster.
func New(logger zerolog.Logger) *Roster {
	return &Roster{
		viewers: make(map[string]*viewerState),
		logger:  logger.With().Str("component", "presence").Logger(),
		now:     time.Now,
	}
}

// Connect registers a viewer session.
func (r *Roster) Connect(v Viewer) {
	if v.SessionID == "" {
		return
	}
	r.mu.Lock()
	r.viewers[v.SessionID] = &viewerState{
		remoteAddr:  v.RemoteAddr,
		userAgent:   v.UserAgent,
		connectedAt: r.now(),
	}
	n := len(r.viewers)
	r.mu.Unlock()

	metrics.Viewers.Set(float64(n))
	r.logger.Debug().Str("session", v.SessionID).Str("remote", v.RemoteAddr).Int("viewers", n).Msg("viewer connected")
}

// Delivered records that an event reached the session. active is the
// number of messages the viewer currently shows.
func (r *Roster) Delivered(sessionID string, active int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.viewers[sessionID]
	if !ok {
		return
	}
	st.lastEventAt = r.now()
	st.eventsSent++
	st.activeShown = active
}

// Disconnect removes a session. reason labels the disconnect metric.
func (r *Roster) Disconnect(sessionID, reason string) {
	r.mu.Lock()
	st, ok := r.viewers[sessionID]
	delete(r.viewers, sessionID)
	n := len(r.viewers)
	r.mu.Unlock()
	if !ok {
		return
	}

	metrics.Viewers.Set(float64(n))
	metrics.ViewerDisconnects.WithLabelValues(reason).Inc()
	r.logger.Debug().
		Str("session", sessionID).
		Str("reason", reason).
		Int64("events_sent", st.eventsSent).
		Dur("connected_for", r.now().Sub(st.connectedAt)).
		Msg("viewer disconnected")
}

// Count returns the number of connected viewers.
func (r *Roster) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.viewers)
}

// List returns a snapshot of all viewers, longest connected first.
func (r *Roster) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	entries := make([]Entry, 0, len(r.viewers))
	for id, st := range r.viewers {
		last := st.lastEventAt
		if last.IsZero() {
			last = st.connectedAt
		}
		entries = append(entries, Entry{
			SessionID:   id,
			RemoteAddr:  st.remoteAddr,
			UserAgent:   st.userAgent,
			ConnectedAt: st.connectedAt,
			LastEventAt: st.lastEventAt,
			EventsSent:  st.eventsSent,
			ActiveShown: st.activeShown,
			IdleSecs:    now.Sub(last).Seconds(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ConnectedAt.Equal(entries[j].ConnectedAt) {
			return entries[i].ConnectedAt.Before(entries[j].ConnectedAt)
		}
		return entries[i].SessionID < entries[j].SessionID
	})
	return entries
}
