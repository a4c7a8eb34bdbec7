package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skyeyinkun/homelink-core/internal/audit"
	"github.com/skyeyinkun/homelink-core/internal/infrastructure/influxdb"
)

const defaultHistoryWindow = 24 * time.Hour

// handleEntityHistory returns recorded state samples for one entity.
// The window query parameter accepts Go duration syntax ("6h", "30m").
func (s *Server) handleEntityHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "state history not available")
		return
	}

	entityID := chi.URLParam(r, "id")
	if entityID == "" {
		writeBadRequest(w, "entity ID is required")
		return
	}

	window := defaultHistoryWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "invalid window duration")
			return
		}
		window = parsed
	}

	points, err := s.history.EntityHistory(r.Context(), entityID, window)
	if err != nil {
		if errors.Is(err, influxdb.ErrNotConnected) {
			writeUnavailable(w, "state history not available")
			return
		}
		writeInternalError(w, "history query failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, points)
}

// handleListAudit returns the catalog activity log, newest first.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeUnavailable(w, "activity log not available")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action: q.Get("action"),
		Source: q.Get("source"),
	}
	if raw := q.Get("device_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "invalid device_id")
			return
		}
		filter.DeviceID = id
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "invalid offset")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "listing activity log: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// recordActivity writes an audit entry, logging rather than failing the
// request when the write does not succeed.
func (s *Server) recordActivity(r *http.Request, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	entry.Source = audit.SourceAPI
	if err := s.audit.Record(r.Context(), &entry); err != nil {
		s.logger.Warn("recording audit entry", "action", entry.Action, "error", err)
	}
}
