package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/skyeyinkun/homelink-core/internal/audit"
	"github.com/skyeyinkun/homelink-core/internal/device"
)

func deviceIDParam(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

// writeDeviceError maps catalog errors onto HTTP responses.
func writeDeviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrDeviceExists):
		writeConflict(w, "device already exists")
	case errors.Is(err, device.ErrEntityBound):
		writeConflict(w, "entity already bound to another device")
	case errors.Is(err, device.ErrNotBound):
		writeConflict(w, "device is not bound to an entity")
	case errors.Is(err, device.ErrInvalidDevice):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.List())
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDParam(r)
	if err != nil {
		writeBadRequest(w, "invalid device ID")
		return
	}

	d, err := s.catalog.Get(id)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var d device.Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.catalog.Create(r.Context(), &d); err != nil {
		writeDeviceError(w, err)
		return
	}
	s.recordActivity(r, audit.Entry{
		Action:   audit.ActionDeviceCreate,
		DeviceID: d.ID,
		EntityID: d.EntityID,
		Details:  map[string]any{"name": d.Name, "room": d.Room},
	})
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDParam(r)
	if err != nil {
		writeBadRequest(w, "invalid device ID")
		return
	}

	var patch device.UserPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	d, err := s.catalog.Update(r.Context(), id, patch)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	s.recordActivity(r, audit.Entry{Action: audit.ActionDeviceUpdate, DeviceID: d.ID, EntityID: d.EntityID})
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDParam(r)
	if err != nil {
		writeBadRequest(w, "invalid device ID")
		return
	}

	if err := s.catalog.Delete(r.Context(), id); err != nil {
		writeDeviceError(w, err)
		return
	}
	s.retractDevice(id)
	s.recordActivity(r, audit.Entry{Action: audit.ActionDeviceDelete, DeviceID: id})
	w.WriteHeader(http.StatusNoContent)
}

// retractDevice clears the device's retained external state after its
// binding goes away. Best effort; the catalog change already stuck.
func (s *Server) retractDevice(id int) {
	if s.announcer == nil {
		return
	}
	if err := s.announcer.RetractDevice(id); err != nil {
		s.logger.Warn("retracting device state", "device_id", id, "error", err)
	}
}

// bindRequest is the body of POST /devices/{id}/bind.
type bindRequest struct {
	EntityID string `json:"entity_id"`
}

func (s *Server) handleBindDevice(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDParam(r)
	if err != nil {
		writeBadRequest(w, "invalid device ID")
		return
	}

	var req bindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.EntityID == "" {
		writeBadRequest(w, "entity_id is required")
		return
	}

	d, err := s.catalog.Bind(r.Context(), id, req.EntityID)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	s.recordActivity(r, audit.Entry{Action: audit.ActionDeviceBind, DeviceID: d.ID, EntityID: d.EntityID})
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleUnbindDevice(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDParam(r)
	if err != nil {
		writeBadRequest(w, "invalid device ID")
		return
	}

	d, err := s.catalog.Unbind(r.Context(), id)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	s.retractDevice(d.ID)
	s.recordActivity(r, audit.Entry{Action: audit.ActionDeviceUnbind, DeviceID: d.ID})
	writeJSON(w, http.StatusOK, d)
}

// handleDiscoverDevices imports eligible entities from the live state
// cache into the catalog.
func (s *Server) handleDiscoverDevices(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		writeUnavailable(w, "state cache not available")
		return
	}

	var reg device.RegistryLookup
	if s.registry != nil {
		reg = s.registry
	}

	added, err := s.catalog.Discover(r.Context(), s.stream.Snapshot(), reg)
	if err != nil {
		writeInternalError(w, "discovery failed: "+err.Error())
		return
	}
	if added > 0 {
		s.recordActivity(r, audit.Entry{Action: audit.ActionDiscoveryRun, Details: map[string]any{"added": added}})
	}
	writeJSON(w, http.StatusOK, map[string]any{"added": added})
}
