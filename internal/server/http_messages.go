package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/alfredjeanlab/shoutboard/internal/metrics"
	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/store"
)

// createMessageInput is the body of POST /v1/messages.
type createMessageInput struct {
	Author *string `json:"author"`
	Body   string  `json:"body"`
}

// handleCreateMessage handles POST /v1/messages.
func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var in createMessageInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	m, err := s.board.Create(r.Context(), in.Author, in.Body)
	if err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			metrics.SubmissionsRejected.WithLabelValues("validation").Inc()
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  ve.Error(),
				"fields": ve.Errors,
			})
			return
		}
		s.storeUnavailable(w, "create message", err)
		return
	}

	metrics.MessagesSubmitted.Inc()
	s.logger.Info().Str("id", m.ID).Str("author", m.AuthorName()).Msg("message queued")
	if s.nudger != nil {
		s.nudger.Nudge()
	}
	writeJSON(w, http.StatusCreated, m)
}

// handleListActive handles GET /v1/messages/active.
func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	msgs, err := s.board.ListActive(r.Context(), limit)
	if err != nil {
		s.storeUnavailable(w, "list active", err)
		return
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// handleGetMessage handles GET /v1/messages/{id}.
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	m, err := s.board.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		s.storeUnavailable(w, "get message", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleGetEvents handles GET /v1/messages/{id}/events.
func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := s.board.Events(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		s.storeUnavailable(w, "list events", err)
		return
	}
	if evs == nil {
		evs = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

// handleStats handles GET /v1/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.board.Stats(r.Context())
	if err != nil {
		s.storeUnavailable(w, "stats", err)
		return
	}
	stats.Viewers = s.roster.Count()
	writeJSON(w, http.StatusOK, stats)
}

// handleViewers handles GET /v1/viewers.
func (s *Server) handleViewers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"viewers": s.roster.List()})
}

func (s *Server) storeUnavailable(w http.ResponseWriter, op string, err error) {
	s.logger.Error().Err(err).Str("op", op).Msg("store unavailable")
	writeError(w, http.StatusServiceUnavailable, "store unavailable")
}
