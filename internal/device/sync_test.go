package device

import (
	"testing"

	"github.com/skyeyinkun/homelink-core/internal/hass"
)

func boundLight(id int, entityID string) Device {
	return Device{
		ID: id, EntityID: entityID, Name: "My Light", Room: "Kitchen",
		Category: CategoryLighting, Type: "light", Visibility: VisibilityVisible,
	}
}

func TestSyncMirror_Light(t *testing.T) {
	devices := []Device{boundLight(1000, "light.kitchen")}
	states := map[string]hass.EntityState{
		"light.kitchen": {
			EntityID:   "light.kitchen",
			State:      "on",
			Attributes: hass.Attributes{"brightness": float64(200)},
		},
	}

	synced, changed := SyncMirror(devices, states, Mapping{1000: "light.kitchen"})
	if !changed {
		t.Fatal("expected a change")
	}
	d := synced[0]
	if !d.Mirror.IsOn {
		t.Error("IsOn = false")
	}
	if d.Mirror.Brightness == nil || *d.Mirror.Brightness != 200 {
		t.Errorf("Brightness = %v, want 200", d.Mirror.Brightness)
	}
	if d.Mirror.HAState != "on" || !d.Mirror.HAAvailable {
		t.Errorf("ha mirror = %+v", d.Mirror)
	}
}

func TestSyncMirror_LightOffZeroesBrightness(t *testing.T) {
	b := 200
	devices := []Device{boundLight(1000, "light.kitchen")}
	devices[0].Mirror.IsOn = true
	devices[0].Mirror.Brightness = &b

	states := map[string]hass.EntityState{
		"light.kitchen": {EntityID: "light.kitchen", State: "off", Attributes: hass.Attributes{}},
	}

	synced, changed := SyncMirror(devices, states, nil)
	if !changed {
		t.Fatal("expected a change")
	}
	if synced[0].Mirror.IsOn {
		t.Error("IsOn should be false")
	}
	if synced[0].Mirror.Brightness == nil || *synced[0].Mirror.Brightness != 0 {
		t.Errorf("Brightness = %v, want 0 when off", synced[0].Mirror.Brightness)
	}
}

func TestSyncMirror_CurtainPositionFromState(t *testing.T) {
	devices := []Device{{
		ID: 1001, EntityID: "cover.living", Name: "Curtain", Room: "客厅",
		Category: CategoryCurtain, Type: "curtain", Visibility: VisibilityVisible,
	}}

	t.Run("explicit position", func(t *testing.T) {
		states := map[string]hass.EntityState{
			"cover.living": {EntityID: "cover.living", State: "open",
				Attributes: hass.Attributes{"current_position": float64(40)}},
		}
		synced, _ := SyncMirror(devices, states, nil)
		if synced[0].Mirror.Position == nil || *synced[0].Mirror.Position != 40 {
			t.Errorf("Position = %v, want 40", synced[0].Mirror.Position)
		}
	})

	t.Run("open without position means fully open", func(t *testing.T) {
		states := map[string]hass.EntityState{
			"cover.living": {EntityID: "cover.living", State: "open", Attributes: hass.Attributes{}},
		}
		synced, _ := SyncMirror(devices, states, nil)
		if synced[0].Mirror.Position == nil || *synced[0].Mirror.Position != 100 {
			t.Errorf("Position = %v, want 100", synced[0].Mirror.Position)
		}
		if !synced[0].Mirror.IsOn {
			t.Error("IsOn should track open state")
		}
	})

	t.Run("closed without position means shut", func(t *testing.T) {
		states := map[string]hass.EntityState{
			"cover.living": {EntityID: "cover.living", State: "closed", Attributes: hass.Attributes{}},
		}
		synced, _ := SyncMirror(devices, states, nil)
		if synced[0].Mirror.Position == nil || *synced[0].Mirror.Position != 0 {
			t.Errorf("Position = %v, want 0", synced[0].Mirror.Position)
		}
	})
}

func TestSyncMirror_SensorValue(t *testing.T) {
	devices := []Device{{
		ID: 1002, EntityID: "sensor.hall_temp", Name: "Hall Temp", Room: "Hallway",
		Category: CategorySensor, Type: "temp_sensor", Visibility: VisibilityVisible,
	}}
	states := map[string]hass.EntityState{
		"sensor.hall_temp": {EntityID: "sensor.hall_temp", State: "22.1",
			Attributes: hass.Attributes{"unit_of_measurement": "°C"}},
	}

	synced, changed := SyncMirror(devices, states, nil)
	if !changed {
		t.Fatal("expected a change")
	}
	if synced[0].Mirror.Count != "22.1°C" {
		t.Errorf("Count = %q, want 22.1°C", synced[0].Mirror.Count)
	}
	if !synced[0].Mirror.IsOn {
		t.Error("IsOn should mirror availability for sensors")
	}
}

func TestSyncMirror_Climate(t *testing.T) {
	devices := []Device{{
		ID: 1003, EntityID: "climate.living", Name: "AC", Room: "客厅",
		Category: CategoryHVAC, Type: "ac", Visibility: VisibilityVisible,
	}}
	states := map[string]hass.EntityState{
		"climate.living": {
			EntityID: "climate.living",
			State:    "heat",
			Attributes: hass.Attributes{
				"temperature":         22.0,
				"current_temperature": 19.5,
				"fan_mode":            "low",
				"hvac_modes":          []any{"off", "heat", "cool"},
				"max_temp":            30.0,
			},
		},
	}

	synced, changed := SyncMirror(devices, states, nil)
	if !changed {
		t.Fatal("expected a change")
	}
	d := synced[0]
	if !d.Mirror.IsOn || d.Mirror.Mode != "heat" {
		t.Errorf("mirror = %+v, want heating", d.Mirror)
	}
	if d.Mirror.Temperature == nil || *d.Mirror.Temperature != 22.0 {
		t.Errorf("Temperature = %v", d.Mirror.Temperature)
	}
	if d.Mirror.FanMode != "low" {
		t.Errorf("FanMode = %q", d.Mirror.FanMode)
	}
	if len(d.Params.HvacModes) != 3 {
		t.Errorf("HvacModes = %v, capability list should follow the entity", d.Params.HvacModes)
	}
	if d.Params.MaxTemp == nil || *d.Params.MaxTemp != 30.0 {
		t.Errorf("MaxTemp = %v", d.Params.MaxTemp)
	}
}

func TestSyncMirror_UnavailableClimateReadsOff(t *testing.T) {
	devices := []Device{{
		ID: 1003, EntityID: "climate.living", Name: "AC", Room: "客厅",
		Category: CategoryHVAC, Type: "ac", Visibility: VisibilityVisible,
	}}
	devices[0].Mirror.IsOn = true
	states := map[string]hass.EntityState{
		"climate.living": {
			EntityID:   "climate.living",
			State:      "unavailable",
			Attributes: hass.Attributes{},
		},
	}

	synced, changed := SyncMirror(devices, states, nil)
	if !changed {
		t.Fatal("expected a change")
	}
	if synced[0].Mirror.IsOn {
		t.Error("an unavailable climate entity must not read as on")
	}
	if synced[0].Mirror.HAAvailable {
		t.Error("HAAvailable = true for an unavailable entity")
	}
}

func TestSyncMirror_UserFieldsUntouched(t *testing.T) {
	devices := []Device{boundLight(1000, "light.kitchen")}
	devices[0].Name = "Custom Name"
	devices[0].Room = "Custom Room"
	devices[0].IsCommon = true
	devices[0].Visibility = VisibilityHidden

	states := map[string]hass.EntityState{
		"light.kitchen": {EntityID: "light.kitchen", State: "on", Attributes: hass.Attributes{}},
	}

	synced, _ := SyncMirror(devices, states, nil)
	d := synced[0]
	if d.Name != "Custom Name" || d.Room != "Custom Room" || !d.IsCommon || d.Visibility != VisibilityHidden {
		t.Errorf("user-owned fields changed: %+v", d)
	}
}

func TestSyncMirror_NoChange(t *testing.T) {
	devices := []Device{boundLight(1000, "light.kitchen")}
	devices[0].Mirror = Mirror{IsOn: true, HAState: "on", HAAvailable: true}
	zero := 0
	devices[0].Mirror.Brightness = &zero

	states := map[string]hass.EntityState{
		"light.kitchen": {EntityID: "light.kitchen", State: "on", Attributes: hass.Attributes{}},
	}

	_, changed := SyncMirror(devices, states, nil)
	if changed {
		t.Error("identical state should report no change")
	}
}

func TestSyncMirror_UnboundAndMissingEntities(t *testing.T) {
	devices := []Device{
		{ID: 1, Name: "Unbound", Room: "Kitchen", Type: "light", Visibility: VisibilityVisible},
		boundLight(1000, "light.gone"),
	}
	states := map[string]hass.EntityState{}

	_, changed := SyncMirror(devices, states, nil)
	if changed {
		t.Error("nothing to mirror, no change expected")
	}
}

func TestSyncMirror_MappingFallback(t *testing.T) {
	// A device without an inline entity id still syncs via the mapping.
	devices := []Device{{
		ID: 1000, Name: "Lamp", Room: "Bedroom",
		Category: CategoryLighting, Type: "light", Visibility: VisibilityVisible,
	}}
	states := map[string]hass.EntityState{
		"light.lamp": {EntityID: "light.lamp", State: "on", Attributes: hass.Attributes{}},
	}

	synced, changed := SyncMirror(devices, states, Mapping{1000: "light.lamp"})
	if !changed || !synced[0].Mirror.IsOn {
		t.Errorf("mapping fallback failed: changed=%v mirror=%+v", changed, synced[0].Mirror)
	}
}
