package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/skyeyinkun/homelink-core/internal/hass"
)

// connectionStatus is the JSON shape of the /status endpoint and the
// connection channel on the WebSocket hub.
type connectionStatus struct {
	IsConnected    bool       `json:"is_connected"`
	State          string     `json:"state"`
	ConnectionType string     `json:"connection_type,omitempty"`
	BaseURL        string     `json:"base_url,omitempty"`
	ConnectedAt    *time.Time `json:"connected_at,omitempty"`
	LatencyMS      int64      `json:"latency_ms,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

// statusResponse converts a supervisor status into the API shape.
func statusResponse(st hass.Status) connectionStatus {
	out := connectionStatus{
		IsConnected:    st.State == hass.StateConnected,
		State:          string(st.State),
		ConnectionType: string(st.ConnType),
		BaseURL:        st.BaseURL,
		LatencyMS:      st.Latency.Milliseconds(),
		LastError:      st.LastError,
	}
	if !st.ConnectedAt.IsZero() {
		t := st.ConnectedAt
		out.ConnectedAt = &t
	}
	return out
}

// handleStatus reports controller connectivity.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse(s.supervisor.Status()))
}

// handleRefresh forces an on-demand snapshot fetch. Concurrent calls
// share one flight.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeUnavailable(w, "refresh not available")
		return
	}

	count, err := s.refresher.Refresh(r.Context())
	if err != nil {
		if errors.Is(err, hass.ErrAuthInvalid) {
			writeUnauthorized(w, "controller rejected the access token")
			return
		}
		writeUnavailable(w, "refresh failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entities": count})
}

// handleReconnect drops the current session and prompts an immediate
// new connection attempt.
func (s *Server) handleReconnect(w http.ResponseWriter, _ *http.Request) {
	s.supervisor.Reconnect()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "reconnecting"})
}

// serviceCallRequest is the body of POST /services.
type serviceCallRequest struct {
	Domain   string         `json:"domain"`
	Service  string         `json:"service"`
	EntityID string         `json:"entity_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// handleCallService invokes a controller service over the push channel.
func (s *Server) handleCallService(w http.ResponseWriter, r *http.Request) {
	var req serviceCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Domain == "" || req.Service == "" {
		writeBadRequest(w, "domain and service are required")
		return
	}

	data := req.Data
	if req.EntityID != "" {
		if data == nil {
			data = make(map[string]any, 1)
		}
		data["entity_id"] = req.EntityID
	}

	if err := s.supervisor.CallService(r.Context(), req.Domain, req.Service, data); err != nil {
		if errors.Is(err, hass.ErrNotConnected) {
			writeUnavailable(w, "controller not connected")
			return
		}
		writeInternalError(w, "service call failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
