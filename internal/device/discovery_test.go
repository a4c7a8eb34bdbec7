package device

import (
	"testing"
	"time"

	"github.com/skyeyinkun/homelink-core/internal/hass"
)

// mockRegistry is a test implementation of RegistryLookup.
type mockRegistry struct {
	entries map[string]hass.EntityEntry
	areas   map[string]string
}

func (m *mockRegistry) Entity(entityID string) (hass.EntityEntry, bool) {
	e, ok := m.entries[entityID]
	return e, ok
}

func (m *mockRegistry) AreaNameForEntity(entityID string) string {
	return m.areas[entityID]
}

func lightState(entityID, name string) hass.EntityState {
	return hass.EntityState{
		EntityID:   entityID,
		State:      "on",
		Attributes: hass.Attributes{"friendly_name": name},
	}
}

func TestDiscoverFromStates_NewLightEntity(t *testing.T) {
	states := map[string]hass.EntityState{
		"light.kitchen": lightState("light.kitchen", "Kitchen Light"),
	}

	result := DiscoverFromStates(states, nil, Mapping{}, nil)

	if result.NewCount != 1 {
		t.Fatalf("NewCount = %d, want 1", result.NewCount)
	}
	d := result.Devices[0]
	if d.ID != 1000 {
		t.Errorf("ID = %d, want 1000", d.ID)
	}
	if d.Room != "Kitchen" {
		// "kitchen" appears in the entity id, so the name heuristic fires.
		t.Errorf("Room = %q, want Kitchen", d.Room)
	}
	if d.Category != CategoryLighting {
		t.Errorf("Category = %q, want lighting", d.Category)
	}
	if d.Type != "light" {
		t.Errorf("Type = %q, want light", d.Type)
	}
	if !d.Mirror.IsOn {
		t.Error("IsOn = false, want true for state on")
	}
	if result.Mapping[1000] != "light.kitchen" {
		t.Errorf("mapping = %v", result.Mapping)
	}
}

func TestDiscoverFromStates_NoHintsGetsUnassignedRoom(t *testing.T) {
	states := map[string]hass.EntityState{
		"light.x1": {EntityID: "light.x1", State: "off", Attributes: hass.Attributes{}},
	}

	result := DiscoverFromStates(states, nil, Mapping{}, nil)
	if result.NewCount != 1 {
		t.Fatalf("NewCount = %d, want 1", result.NewCount)
	}
	d := result.Devices[0]
	if d.Room != RoomUnassigned {
		t.Errorf("Room = %q, want %q", d.Room, RoomUnassigned)
	}
	if d.Name != "light.x1" {
		t.Errorf("Name = %q, want the entity id fallback", d.Name)
	}
}

func TestDiscoverFromStates_SkipsMappedEntities(t *testing.T) {
	states := map[string]hass.EntityState{
		"light.kitchen": lightState("light.kitchen", "Kitchen Light"),
	}
	mapping := Mapping{42: "light.kitchen"}

	result := DiscoverFromStates(states, nil, mapping, nil)
	if result.NewCount != 0 {
		t.Errorf("NewCount = %d, want 0 for already-mapped entity", result.NewCount)
	}
}

func TestDiscoverFromStates_SkipsEntityCarriedOnDevice(t *testing.T) {
	states := map[string]hass.EntityState{
		"light.kitchen": lightState("light.kitchen", "Kitchen Light"),
	}
	existing := []Device{{ID: 7, EntityID: "light.kitchen", Name: "My Light", Room: "Kitchen"}}

	result := DiscoverFromStates(states, existing, Mapping{}, nil)
	if result.NewCount != 0 {
		t.Errorf("NewCount = %d, want 0", result.NewCount)
	}
	if len(result.Devices) != 1 {
		t.Errorf("devices = %d, want 1 (unchanged)", len(result.Devices))
	}
}

func TestDiscoverFromStates_RejectsDisallowedDomains(t *testing.T) {
	states := map[string]hass.EntityState{
		"automation.morning": {EntityID: "automation.morning", State: "on"},
		"script.cleanup":     {EntityID: "script.cleanup", State: "off"},
		"zone.home":          {EntityID: "zone.home", State: "zoning"},
	}

	result := DiscoverFromStates(states, nil, Mapping{}, nil)
	if result.NewCount != 0 {
		t.Errorf("NewCount = %d, want 0 for disallowed domains", result.NewCount)
	}
}

func TestDiscoverFromStates_IdsStrictlyIncreasing(t *testing.T) {
	states := map[string]hass.EntityState{
		"light.a": lightState("light.a", "A"),
		"light.b": lightState("light.b", "B"),
		"light.c": lightState("light.c", "C"),
	}
	existing := []Device{{ID: 1500, Name: "Old", Room: "Kitchen"}}

	result := DiscoverFromStates(states, existing, Mapping{}, nil)
	if result.NewCount != 3 {
		t.Fatalf("NewCount = %d, want 3", result.NewCount)
	}
	ids := []int{result.Devices[1].ID, result.Devices[2].ID, result.Devices[3].ID}
	for i, want := range []int{1501, 1502, 1503} {
		if ids[i] != want {
			t.Errorf("ids = %v, want 1501..1503", ids)
			break
		}
	}
}

func TestDiscoverFromStates_Idempotent(t *testing.T) {
	states := map[string]hass.EntityState{
		"light.kitchen":    lightState("light.kitchen", "Kitchen Light"),
		"sensor.hall_temp": {EntityID: "sensor.hall_temp", State: "21.5", Attributes: hass.Attributes{"unit_of_measurement": "°C"}},
		"climate.living":   {EntityID: "climate.living", State: "cool", Attributes: hass.Attributes{"temperature": 24.0}},
	}

	first := DiscoverFromStates(states, nil, Mapping{}, nil)
	if first.NewCount != 3 {
		t.Fatalf("first run NewCount = %d, want 3", first.NewCount)
	}

	second := DiscoverFromStates(states, first.Devices, first.Mapping, nil)
	if second.NewCount != 0 {
		t.Errorf("second run NewCount = %d, want 0", second.NewCount)
	}
	if len(second.Devices) != len(first.Devices) {
		t.Errorf("device count changed: %d -> %d", len(first.Devices), len(second.Devices))
	}
}

func TestDiscoverFromStates_RegistryRoomWins(t *testing.T) {
	states := map[string]hass.EntityState{
		"light.kitchen": lightState("light.kitchen", "Kitchen Light"),
	}
	reg := &mockRegistry{
		areas: map[string]string{"light.kitchen": "Pantry"},
	}

	result := DiscoverFromStates(states, nil, Mapping{}, reg)
	if result.Devices[0].Room != "Pantry" {
		t.Errorf("Room = %q, want registry area Pantry", result.Devices[0].Room)
	}
}

func TestDiscoverFromStates_SkipsHiddenEntities(t *testing.T) {
	disabledBy := "user"
	states := map[string]hass.EntityState{
		"light.hidden": lightState("light.hidden", "Hidden Light"),
	}
	reg := &mockRegistry{
		entries: map[string]hass.EntityEntry{
			"light.hidden": {EntityID: "light.hidden", DisabledBy: &disabledBy},
		},
	}

	result := DiscoverFromStates(states, nil, Mapping{}, reg)
	if result.NewCount != 0 {
		t.Errorf("NewCount = %d, want 0 for disabled entity", result.NewCount)
	}
}

func TestDiscoverFromStates_SensorDisplayValue(t *testing.T) {
	states := map[string]hass.EntityState{
		"sensor.hall_temp": {
			EntityID:   "sensor.hall_temp",
			State:      "21.5",
			Attributes: hass.Attributes{"unit_of_measurement": "°C", "device_class": "temperature"},
		},
	}

	result := DiscoverFromStates(states, nil, Mapping{}, nil)
	d := result.Devices[0]
	if d.Mirror.Count != "21.5°C" {
		t.Errorf("Count = %q, want 21.5°C", d.Mirror.Count)
	}
	if d.Type != "temp_sensor" {
		t.Errorf("Type = %q, want temp_sensor", d.Type)
	}
	if d.Params.UnitOfMeasurement != "°C" {
		t.Errorf("UnitOfMeasurement = %q", d.Params.UnitOfMeasurement)
	}
}

func TestDiscoverFromStates_ClimateParams(t *testing.T) {
	now := time.Now()
	states := map[string]hass.EntityState{
		"climate.living": {
			EntityID: "climate.living",
			State:    "cool",
			Attributes: hass.Attributes{
				"temperature":         24.0,
				"current_temperature": 26.5,
				"hvac_modes":          []any{"off", "cool", "heat"},
				"fan_mode":            "auto",
				"min_temp":            16.0,
				"max_temp":            30.0,
			},
			LastChanged: now,
		},
	}

	result := DiscoverFromStates(states, nil, Mapping{}, nil)
	d := result.Devices[0]
	if d.Type != "ac" || d.Category != CategoryHVAC {
		t.Errorf("type/category = %q/%q", d.Type, d.Category)
	}
	if d.Mirror.Mode != "cool" || !d.Mirror.IsOn {
		t.Errorf("mirror = %+v, want running in cool mode", d.Mirror)
	}
	if d.Mirror.Temperature == nil || *d.Mirror.Temperature != 24.0 {
		t.Errorf("Temperature = %v", d.Mirror.Temperature)
	}
	if len(d.Params.HvacModes) != 3 {
		t.Errorf("HvacModes = %v", d.Params.HvacModes)
	}
	if d.Params.MinTemp == nil || *d.Params.MinTemp != 16.0 {
		t.Errorf("MinTemp = %v", d.Params.MinTemp)
	}
	if !d.Mirror.LastChanged.Equal(now) {
		t.Errorf("LastChanged = %v", d.Mirror.LastChanged)
	}
}
