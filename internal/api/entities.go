package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/skyeyinkun/homelink-core/internal/hass"
)

// handleListEntities returns the current state cache sorted by entity ID.
func (s *Server) handleListEntities(w http.ResponseWriter, _ *http.Request) {
	if s.stream == nil {
		writeUnavailable(w, "state cache not available")
		return
	}

	snapshot := s.stream.Snapshot()
	states := make([]hass.EntityState, 0, len(snapshot))
	for _, st := range snapshot {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].EntityID < states[j].EntityID
	})

	writeJSON(w, http.StatusOK, states)
}

// handleGetEntity returns one entity's state. Falls back to a direct
// REST fetch when the cache has no record of it.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "id")
	if entityID == "" {
		writeBadRequest(w, "entity ID is required")
		return
	}

	if s.stream != nil {
		if st, ok := s.stream.Get(entityID); ok {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}

	if s.rest != nil {
		st, err := s.rest.FetchEntityState(r.Context(), entityID)
		if err == nil {
			writeJSON(w, http.StatusOK, st)
			return
		}
		if !errors.Is(err, hass.ErrUnreachable) && !errors.Is(err, hass.ErrNotConnected) {
			s.logger.Warn("entity fallback fetch failed", "entity_id", entityID, "error", err)
		}
	}

	writeNotFound(w, "entity not found: "+entityID)
}

// handleListEvents returns the recent event journal, newest last.
func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	if s.stream == nil {
		writeUnavailable(w, "event journal not available")
		return
	}
	writeJSON(w, http.StatusOK, s.stream.Events())
}
