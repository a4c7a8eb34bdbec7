package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/skyeyinkun/homelink-core/internal/hass"
)

// Logger is the minimal logging interface the device package depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Catalog is the cached front door to the device catalog.
//
// All reads are served from memory; every mutation goes through the
// repository first and the cache second, so the cache never gets ahead
// of durable state.
type Catalog struct {
	repo   Repository
	logger Logger

	mu      sync.RWMutex
	devices []Device
	mapping Mapping
	byID    map[int]int // id -> index into devices
}

// NewCatalog creates a catalog over the given repository.
func NewCatalog(repo Repository, logger Logger) *Catalog {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Catalog{
		repo:    repo,
		logger:  logger,
		mapping: make(Mapping),
		byID:    make(map[int]int),
	}
}

// Load populates the cache from the repository.
func (c *Catalog) Load(ctx context.Context) error {
	devices, err := c.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading device catalog: %w", err)
	}
	mapping, err := c.repo.Mappings(ctx)
	if err != nil {
		return fmt.Errorf("loading device mappings: %w", err)
	}

	c.mu.Lock()
	c.devices = devices
	c.mapping = mapping
	c.reindexLocked()
	c.mu.Unlock()

	c.logger.Info("device catalog loaded", "devices", len(devices), "mappings", len(mapping))
	return nil
}

// reindexLocked rebuilds the id index. Caller holds mu.
func (c *Catalog) reindexLocked() {
	c.byID = make(map[int]int, len(c.devices))
	for i, d := range c.devices {
		c.byID[d.ID] = i
	}
}

// List returns a copy of all devices ordered as loaded.
func (c *Catalog) List() []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Device, len(c.devices))
	copy(out, c.devices)
	return out
}

// Get returns one device by id.
func (c *Catalog) Get(id int) (Device, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.byID[id]
	if !ok {
		return Device{}, ErrDeviceNotFound
	}
	return c.devices[idx], nil
}

// Mapping returns a copy of the binding table.
func (c *Catalog) Mapping() Mapping {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mapping.Clone()
}

// Discover reconciles a state snapshot into the catalog, persisting every
// newly found device together with its binding. Returns the number of
// devices added.
func (c *Catalog) Discover(ctx context.Context, states map[string]hass.EntityState, reg RegistryLookup) (int, error) {
	c.mu.RLock()
	existing := make([]Device, len(c.devices))
	copy(existing, c.devices)
	mapping := c.mapping.Clone()
	c.mu.RUnlock()

	result := DiscoverFromStates(states, existing, mapping, reg)
	if result.NewCount == 0 {
		return 0, nil
	}

	added := result.Devices[len(existing):]
	for i := range added {
		if err := c.repo.Create(ctx, &added[i]); err != nil {
			return 0, fmt.Errorf("persisting discovered device %d: %w", added[i].ID, err)
		}
		if err := c.repo.SaveMapping(ctx, added[i].ID, added[i].EntityID); err != nil {
			return 0, fmt.Errorf("persisting mapping for device %d: %w", added[i].ID, err)
		}
	}

	c.mu.Lock()
	c.devices = result.Devices
	c.mapping = result.Mapping
	c.reindexLocked()
	c.mu.Unlock()

	c.logger.Info("discovery added devices", "count", result.NewCount)
	return result.NewCount, nil
}

// Create adds a manually curated device. A zero id is allocated above the
// current maximum (at least the auto-discovery floor).
func (c *Catalog) Create(ctx context.Context, d *Device) error {
	if d.Room == "" {
		d.Room = RoomUnassigned
	}
	if d.Visibility == "" {
		d.Visibility = VisibilityVisible
	}
	if d.Category == "" {
		d.Category = CategoryOther
	}
	if d.Type == "" {
		d.Type = "other"
	}

	c.mu.Lock()
	if d.ID == 0 {
		maxID := autoIDFloor - 1
		for _, existing := range c.devices {
			if existing.ID > maxID {
				maxID = existing.ID
			}
		}
		d.ID = maxID + 1
	}
	c.mu.Unlock()

	if d.CreatedAt.IsZero() {
		d.CreatedAt = nowFunc()
	}

	if err := c.repo.Create(ctx, d); err != nil {
		return err
	}
	if d.EntityID != "" {
		if err := c.repo.SaveMapping(ctx, d.ID, d.EntityID); err != nil {
			return fmt.Errorf("persisting mapping: %w", err)
		}
	}

	c.mu.Lock()
	c.devices = append(c.devices, *d)
	c.byID[d.ID] = len(c.devices) - 1
	if d.EntityID != "" {
		c.mapping[d.ID] = d.EntityID
	}
	c.mu.Unlock()
	return nil
}

// UserPatch carries the user-owned fields a PATCH may change. Nil fields
// are left alone.
type UserPatch struct {
	Name       *string     `json:"name,omitempty"`
	Room       *string     `json:"room,omitempty"`
	Icon       *string     `json:"icon,omitempty"`
	IsCommon   *bool       `json:"is_common,omitempty"`
	Visibility *Visibility `json:"visibility,omitempty"`
	Category   *Category   `json:"category,omitempty"`
	Type       *string     `json:"type,omitempty"`
}

// Update applies a user patch to a device. Reconciliation-owned fields
// cannot be changed this way.
func (c *Catalog) Update(ctx context.Context, id int, patch UserPatch) (Device, error) {
	d, err := c.Get(id)
	if err != nil {
		return Device{}, err
	}

	if patch.Name != nil {
		d.Name = *patch.Name
	}
	if patch.Room != nil {
		d.Room = *patch.Room
	}
	if patch.Icon != nil {
		d.Icon = *patch.Icon
	}
	if patch.IsCommon != nil {
		d.IsCommon = *patch.IsCommon
	}
	if patch.Visibility != nil {
		d.Visibility = *patch.Visibility
	}
	if patch.Category != nil {
		d.Category = *patch.Category
	}
	if patch.Type != nil {
		d.Type = *patch.Type
	}

	if err := c.repo.Update(ctx, &d); err != nil {
		return Device{}, err
	}

	c.storeDevice(d)
	return d, nil
}

// Bind associates a device with an entity.
//
// When another device already carries the same entity, it is replaced
// only if it is a ghost: a record whose room assignment never got past
// the unassigned placeholder. A bound device with a real room wins and
// the bind fails with ErrEntityBound.
func (c *Catalog) Bind(ctx context.Context, id int, entityID string) (Device, error) {
	d, err := c.Get(id)
	if err != nil {
		return Device{}, err
	}

	c.mu.RLock()
	var ghost *Device
	for i := range c.devices {
		if c.devices[i].ID != id && c.devices[i].EntityID == entityID {
			conflicting := c.devices[i]
			if conflicting.Room != RoomUnassigned {
				c.mu.RUnlock()
				return Device{}, fmt.Errorf("%w: %s held by device %d", ErrEntityBound, entityID, conflicting.ID)
			}
			ghost = &conflicting
			break
		}
	}
	c.mu.RUnlock()

	if ghost != nil {
		if err := c.remove(ctx, ghost.ID); err != nil && !errors.Is(err, ErrDeviceNotFound) {
			return Device{}, fmt.Errorf("replacing ghost device %d: %w", ghost.ID, err)
		}
		c.logger.Info("ghost device replaced", "ghost_id", ghost.ID, "entity_id", entityID)
	}

	d.EntityID = entityID
	if err := c.repo.Update(ctx, &d); err != nil {
		return Device{}, err
	}
	if err := c.repo.SaveMapping(ctx, id, entityID); err != nil {
		return Device{}, fmt.Errorf("persisting binding: %w", err)
	}

	c.mu.Lock()
	c.mapping[id] = entityID
	c.mu.Unlock()
	c.storeDevice(d)
	return d, nil
}

// Unbind removes a device's entity association, keeping the record.
func (c *Catalog) Unbind(ctx context.Context, id int) (Device, error) {
	d, err := c.Get(id)
	if err != nil {
		return Device{}, err
	}
	if !d.Bound() {
		return Device{}, ErrNotBound
	}

	d.EntityID = ""
	d.Mirror = Mirror{}
	if err := c.repo.Update(ctx, &d); err != nil {
		return Device{}, err
	}
	if err := c.repo.DeleteMapping(ctx, id); err != nil {
		return Device{}, err
	}

	c.mu.Lock()
	delete(c.mapping, id)
	c.mu.Unlock()
	c.storeDevice(d)
	return d, nil
}

// Delete removes a device and its binding entirely.
func (c *Catalog) Delete(ctx context.Context, id int) error {
	return c.remove(ctx, id)
}

func (c *Catalog) remove(ctx context.Context, id int) error {
	if err := c.repo.Delete(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	if idx, ok := c.byID[id]; ok {
		c.devices = append(c.devices[:idx], c.devices[idx+1:]...)
		c.reindexLocked()
	}
	delete(c.mapping, id)
	c.mu.Unlock()
	return nil
}

// storeDevice writes one record back into the cache.
func (c *Catalog) storeDevice(d Device) {
	c.mu.Lock()
	if idx, ok := c.byID[d.ID]; ok {
		c.devices[idx] = d
	}
	c.mu.Unlock()
}

// ApplyState mirrors one entity state onto its bound device, persisting
// when anything changed. Unbound entities are ignored. Returns the
// updated device and whether a change was applied.
func (c *Catalog) ApplyState(ctx context.Context, st hass.EntityState) (Device, bool, error) {
	c.mu.RLock()
	var target *Device
	for i := range c.devices {
		entityID := c.devices[i].EntityID
		if entityID == "" {
			entityID = c.mapping[c.devices[i].ID]
		}
		if entityID == st.EntityID {
			copied := c.devices[i]
			target = &copied
			break
		}
	}
	c.mu.RUnlock()

	if target == nil {
		return Device{}, false, nil
	}
	if !applyState(target, st) {
		return *target, false, nil
	}

	if err := c.repo.Update(ctx, target); err != nil {
		return Device{}, false, fmt.Errorf("persisting mirror for device %d: %w", target.ID, err)
	}
	c.storeDevice(*target)
	return *target, true, nil
}

// SyncAll runs the mirror pass over the whole snapshot, persisting every
// changed device. Returns the number of devices updated.
func (c *Catalog) SyncAll(ctx context.Context, states map[string]hass.EntityState) (int, error) {
	c.mu.RLock()
	devices := make([]Device, len(c.devices))
	copy(devices, c.devices)
	mapping := c.mapping.Clone()
	c.mu.RUnlock()

	synced, changed := SyncMirror(devices, states, mapping)
	if !changed {
		return 0, nil
	}

	updated := 0
	for i := range synced {
		if mirrorEqual(devices[i], synced[i]) {
			continue
		}
		if err := c.repo.Update(ctx, &synced[i]); err != nil {
			return updated, fmt.Errorf("persisting mirror for device %d: %w", synced[i].ID, err)
		}
		updated++
	}

	c.mu.Lock()
	c.devices = synced
	c.reindexLocked()
	c.mu.Unlock()
	return updated, nil
}
