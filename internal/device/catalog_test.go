package device

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/skyeyinkun/homelink-core/internal/hass"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu      sync.Mutex
	devices map[int]*Device
	mapping Mapping
	// For testing error paths
	createErr error
	updateErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		devices: make(map[int]*Device),
		mapping: make(Mapping),
	}
}

func (m *MockRepository) GetByID(_ context.Context, id int) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		cpy := *d
		return &cpy, nil
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) GetByEntityID(_ context.Context, entityID string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.EntityID == entityID {
			cpy := *d
			return &cpy, nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d)
	}
	return out, nil
}

func (m *MockRepository) Create(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.devices[d.ID]; ok {
		return ErrDeviceExists
	}
	cpy := *d
	m.devices[d.ID] = &cpy
	return nil
}

func (m *MockRepository) Update(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.devices[d.ID]; !ok {
		return ErrDeviceNotFound
	}
	cpy := *d
	m.devices[d.ID] = &cpy
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	delete(m.mapping, id)
	return nil
}

func (m *MockRepository) Mappings(_ context.Context) (Mapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mapping.Clone(), nil
}

func (m *MockRepository) SaveMapping(_ context.Context, id int, entityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mapping[id] = entityID
	return nil
}

func (m *MockRepository) DeleteMapping(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mapping, id)
	return nil
}

func (m *MockRepository) addDevice(d Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := d
	m.devices[d.ID] = &cpy
	if d.EntityID != "" {
		m.mapping[d.ID] = d.EntityID
	}
}

func loadedCatalog(t *testing.T, repo *MockRepository) *Catalog {
	t.Helper()
	catalog := NewCatalog(repo, nil)
	if err := catalog.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return catalog
}

func TestCatalog_Load(t *testing.T) {
	repo := NewMockRepository()
	repo.addDevice(boundLight(1000, "light.kitchen"))
	repo.addDevice(boundLight(1001, "light.bedroom"))

	catalog := loadedCatalog(t, repo)
	if len(catalog.List()) != 2 {
		t.Errorf("List() = %d devices, want 2", len(catalog.List()))
	}
	if catalog.Mapping()[1000] != "light.kitchen" {
		t.Errorf("Mapping() = %v", catalog.Mapping())
	}
}

func TestCatalog_Discover(t *testing.T) {
	repo := NewMockRepository()
	catalog := loadedCatalog(t, repo)

	states := map[string]hass.EntityState{
		"light.kitchen": lightState("light.kitchen", "Kitchen Light"),
	}

	n, err := catalog.Discover(context.Background(), states, nil)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Discover() = %d, want 1", n)
	}

	// Persisted, not just cached.
	persisted, err := repo.GetByID(context.Background(), 1000)
	if err != nil {
		t.Fatalf("device not persisted: %v", err)
	}
	if persisted.EntityID != "light.kitchen" {
		t.Errorf("persisted EntityID = %q", persisted.EntityID)
	}
	if repo.mapping[1000] != "light.kitchen" {
		t.Errorf("mapping not persisted: %v", repo.mapping)
	}

	// Second run adds nothing.
	n, err = catalog.Discover(context.Background(), states, nil)
	if err != nil {
		t.Fatalf("second Discover() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second Discover() = %d, want 0", n)
	}
}

func TestCatalog_Create(t *testing.T) {
	repo := NewMockRepository()
	catalog := loadedCatalog(t, repo)

	d := &Device{Name: "Wall Panel"}
	if err := catalog.Create(context.Background(), d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if d.ID != autoIDFloor {
		t.Errorf("allocated ID = %d, want %d", d.ID, autoIDFloor)
	}
	if d.Room != RoomUnassigned || d.Visibility != VisibilityVisible {
		t.Errorf("defaults not applied: %+v", d)
	}
	if _, err := repo.GetByID(context.Background(), d.ID); err != nil {
		t.Errorf("not persisted: %v", err)
	}
}

func TestCatalog_Update(t *testing.T) {
	repo := NewMockRepository()
	repo.addDevice(boundLight(1000, "light.kitchen"))
	catalog := loadedCatalog(t, repo)

	name := "Reading Lamp"
	room := "书房"
	common := true
	updated, err := catalog.Update(context.Background(), 1000, UserPatch{
		Name: &name, Room: &room, IsCommon: &common,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != name || updated.Room != room || !updated.IsCommon {
		t.Errorf("patch not applied: %+v", updated)
	}

	persisted, _ := repo.GetByID(context.Background(), 1000)
	if persisted.Name != name {
		t.Errorf("persisted name = %q", persisted.Name)
	}

	t.Run("unknown id", func(t *testing.T) {
		_, err := catalog.Update(context.Background(), 9999, UserPatch{Name: &name})
		if !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("error = %v, want ErrDeviceNotFound", err)
		}
	})
}

func TestCatalog_Bind(t *testing.T) {
	t.Run("plain bind", func(t *testing.T) {
		repo := NewMockRepository()
		repo.addDevice(Device{ID: 5, Name: "Lamp", Room: "Bedroom", Type: "light", Visibility: VisibilityVisible})
		catalog := loadedCatalog(t, repo)

		d, err := catalog.Bind(context.Background(), 5, "light.lamp")
		if err != nil {
			t.Fatalf("Bind() error = %v", err)
		}
		if d.EntityID != "light.lamp" {
			t.Errorf("EntityID = %q", d.EntityID)
		}
		if repo.mapping[5] != "light.lamp" {
			t.Errorf("mapping = %v", repo.mapping)
		}
	})

	t.Run("replaces unassigned ghost", func(t *testing.T) {
		repo := NewMockRepository()
		ghost := boundLight(1000, "light.lamp")
		ghost.Room = RoomUnassigned
		repo.addDevice(ghost)
		repo.addDevice(Device{ID: 5, Name: "Lamp", Room: "Bedroom", Type: "light", Visibility: VisibilityVisible})
		catalog := loadedCatalog(t, repo)

		if _, err := catalog.Bind(context.Background(), 5, "light.lamp"); err != nil {
			t.Fatalf("Bind() error = %v", err)
		}

		if _, err := repo.GetByID(context.Background(), 1000); !errors.Is(err, ErrDeviceNotFound) {
			t.Error("ghost device should be removed")
		}
		if len(catalog.List()) != 1 {
			t.Errorf("catalog size = %d, want 1", len(catalog.List()))
		}
	})

	t.Run("refuses to steal a real binding", func(t *testing.T) {
		repo := NewMockRepository()
		owner := boundLight(1000, "light.lamp")
		owner.Room = "Kitchen"
		repo.addDevice(owner)
		repo.addDevice(Device{ID: 5, Name: "Lamp", Room: "Bedroom", Type: "light", Visibility: VisibilityVisible})
		catalog := loadedCatalog(t, repo)

		_, err := catalog.Bind(context.Background(), 5, "light.lamp")
		if !errors.Is(err, ErrEntityBound) {
			t.Errorf("error = %v, want ErrEntityBound", err)
		}
	})
}

func TestCatalog_Unbind(t *testing.T) {
	repo := NewMockRepository()
	d := boundLight(1000, "light.kitchen")
	d.Mirror.IsOn = true
	repo.addDevice(d)
	catalog := loadedCatalog(t, repo)

	unbound, err := catalog.Unbind(context.Background(), 1000)
	if err != nil {
		t.Fatalf("Unbind() error = %v", err)
	}
	if unbound.Bound() {
		t.Error("device still bound")
	}
	if unbound.Mirror.IsOn {
		t.Error("mirror should be cleared on unbind")
	}
	if _, ok := catalog.Mapping()[1000]; ok {
		t.Error("mapping row should be gone")
	}

	t.Run("unbound device", func(t *testing.T) {
		repo := NewMockRepository()
		repo.addDevice(Device{ID: 5, Name: "Lamp", Room: "Bedroom", Type: "light", Visibility: VisibilityVisible})
		catalog := loadedCatalog(t, repo)

		_, err := catalog.Unbind(context.Background(), 5)
		if !errors.Is(err, ErrNotBound) {
			t.Errorf("error = %v, want ErrNotBound", err)
		}
	})
}

func TestCatalog_Delete(t *testing.T) {
	repo := NewMockRepository()
	repo.addDevice(boundLight(1000, "light.kitchen"))
	catalog := loadedCatalog(t, repo)

	if err := catalog.Delete(context.Background(), 1000); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(catalog.List()) != 0 {
		t.Error("device still cached")
	}
	if err := catalog.Delete(context.Background(), 1000); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second delete error = %v, want ErrDeviceNotFound", err)
	}
}

func TestCatalog_ApplyState(t *testing.T) {
	repo := NewMockRepository()
	repo.addDevice(boundLight(1000, "light.kitchen"))
	catalog := loadedCatalog(t, repo)

	st := hass.EntityState{
		EntityID:   "light.kitchen",
		State:      "on",
		Attributes: hass.Attributes{"brightness": float64(128)},
	}

	d, changed, err := catalog.ApplyState(context.Background(), st)
	if err != nil {
		t.Fatalf("ApplyState() error = %v", err)
	}
	if !changed {
		t.Fatal("expected a change")
	}
	if !d.Mirror.IsOn || d.Mirror.Brightness == nil || *d.Mirror.Brightness != 128 {
		t.Errorf("mirror = %+v", d.Mirror)
	}

	persisted, _ := repo.GetByID(context.Background(), 1000)
	if !persisted.Mirror.IsOn {
		t.Error("mirror change not persisted")
	}

	t.Run("unknown entity is ignored", func(t *testing.T) {
		_, changed, err := catalog.ApplyState(context.Background(), hass.EntityState{EntityID: "light.other", State: "on"})
		if err != nil || changed {
			t.Errorf("ApplyState() = changed %v, err %v; want no-op", changed, err)
		}
	})
}

func TestCatalog_SyncAll(t *testing.T) {
	repo := NewMockRepository()
	repo.addDevice(boundLight(1000, "light.kitchen"))
	repo.addDevice(boundLight(1001, "light.bedroom"))
	catalog := loadedCatalog(t, repo)

	states := map[string]hass.EntityState{
		"light.kitchen": {EntityID: "light.kitchen", State: "on", Attributes: hass.Attributes{}},
	}

	n, err := catalog.SyncAll(context.Background(), states)
	if err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if n != 1 {
		t.Errorf("SyncAll() = %d, want 1 updated", n)
	}
}
