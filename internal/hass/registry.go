package hass

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// RegistrySet caches the controller's area, device and entity registries.
//
// Registry data is advisory: it improves naming and room placement but
// nothing depends on it being present. A failed fetch leaves the previous
// copy of that registry in place.
type RegistrySet struct {
	logger Logger

	mu       sync.RWMutex
	areas    map[string]Area        // by area id
	devices  map[string]DeviceEntry // by device id
	entities map[string]EntityEntry // by entity id
	syncedAt time.Time
}

// NewRegistrySet returns an empty registry cache.
func NewRegistrySet(logger Logger) *RegistrySet {
	if logger == nil {
		logger = noopLogger{}
	}
	return &RegistrySet{
		logger:   logger,
		areas:    make(map[string]Area),
		devices:  make(map[string]DeviceEntry),
		entities: make(map[string]EntityEntry),
	}
}

// Sync fetches the three registries concurrently. Individual failures
// are absorbed; the returned error joins whatever went wrong so callers
// can log it, but partial data is already applied.
func (r *RegistrySet) Sync(ctx context.Context, sess Session) error {
	var (
		wg       sync.WaitGroup
		areas    []Area
		devices  []DeviceEntry
		entities []EntityEntry
		errAreas, errDevices, errEntities error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		areas, errAreas = sess.FetchAreas(ctx)
	}()
	go func() {
		defer wg.Done()
		devices, errDevices = sess.FetchDeviceRegistry(ctx)
	}()
	go func() {
		defer wg.Done()
		entities, errEntities = sess.FetchEntityRegistry(ctx)
	}()
	wg.Wait()

	r.mu.Lock()
	if errAreas == nil {
		r.areas = make(map[string]Area, len(areas))
		for _, a := range areas {
			r.areas[a.AreaID] = a
		}
	}
	if errDevices == nil {
		r.devices = make(map[string]DeviceEntry, len(devices))
		for _, d := range devices {
			r.devices[d.ID] = d
		}
	}
	if errEntities == nil {
		r.entities = make(map[string]EntityEntry, len(entities))
		for _, e := range entities {
			r.entities[e.EntityID] = e
		}
	}
	r.syncedAt = time.Now()
	r.mu.Unlock()

	if err := errors.Join(errAreas, errDevices, errEntities); err != nil {
		return fmt.Errorf("registry sync: %w", err)
	}

	r.logger.Info("registries synced",
		"areas", len(areas), "devices", len(devices), "entities", len(entities))
	return nil
}

// Entity returns the registry entry for an entity id.
func (r *RegistrySet) Entity(entityID string) (EntityEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[entityID]
	return e, ok
}

// Device returns the registry entry for a device id.
func (r *RegistrySet) Device(deviceID string) (DeviceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[deviceID]
	return d, ok
}

// AreaName resolves an area id to its display name.
func (r *RegistrySet) AreaName(areaID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.areas[areaID]
	if !ok {
		return "", false
	}
	return a.Name, true
}

// AreaNameForEntity resolves an entity to its area name, first through
// the entity's own area assignment, then through its parent device's.
// Returns "" when neither is assigned.
func (r *RegistrySet) AreaNameForEntity(entityID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entities[entityID]
	if !ok {
		return ""
	}
	if entry.AreaID != nil && *entry.AreaID != "" {
		if a, ok := r.areas[*entry.AreaID]; ok {
			return a.Name
		}
	}
	if entry.DeviceID != nil && *entry.DeviceID != "" {
		if d, ok := r.devices[*entry.DeviceID]; ok && d.AreaID != nil && *d.AreaID != "" {
			if a, ok := r.areas[*d.AreaID]; ok {
				return a.Name
			}
		}
	}
	return ""
}

// SyncedAt reports when the registries were last synced.
func (r *RegistrySet) SyncedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.syncedAt
}
