package device

import (
	"slices"

	"github.com/skyeyinkun/homelink-core/internal/hass"
)

// sensorTypes are device types whose mirror carries a display value.
var sensorTypes = map[string]bool{
	"sensor": true, "temp_sensor": true, "humidity_sensor": true,
	"light_sensor": true, "pm25_sensor": true, "co2_sensor": true,
	"power_sensor": true, "energy_sensor": true, "battery_sensor": true,
}

// binarySensorTypes are device types mirroring a triggered/clear state.
var binarySensorTypes = map[string]bool{
	"binary_sensor": true, "motion_sensor": true, "door_sensor": true,
	"window_sensor": true, "smoke_sensor": true, "water_leak": true,
}

// climateTypes are device types mirroring thermostat state.
var climateTypes = map[string]bool{
	"ac": true, "climate": true, "heater": true, "fan": true,
}

// SyncMirror updates the live-mirrored fields of every bound device from
// the snapshot. User-owned fields are never touched. The returned slice
// shares unchanged elements with the input; the boolean reports whether
// anything changed.
func SyncMirror(devices []Device, states map[string]hass.EntityState, mapping Mapping) ([]Device, bool) {
	changed := false
	out := make([]Device, len(devices))
	copy(out, devices)

	for i := range out {
		entityID := out[i].EntityID
		if entityID == "" {
			entityID = mapping[out[i].ID]
		}
		if entityID == "" {
			continue
		}
		st, ok := states[entityID]
		if !ok {
			continue
		}
		if applyState(&out[i], st) {
			changed = true
		}
	}
	return out, changed
}

// applyState mirrors one entity state onto a device record. Reports
// whether the record changed.
func applyState(d *Device, st hass.EntityState) bool {
	before := *d
	m := &d.Mirror

	m.HAState = st.State
	m.HAAvailable = st.Available()
	if dc := st.Attributes.DeviceClass(); dc != "" {
		d.Params.DeviceClass = dc
	}
	if !st.LastChanged.IsZero() {
		m.LastChanged = st.LastChanged
	}
	if !st.LastUpdated.IsZero() {
		m.LastUpdated = st.LastUpdated
	}

	switch {
	case d.Type == "light" || d.Type == "dimmer" || d.Type == "switch" || d.Type == "outlet":
		m.IsOn = st.State == "on"
		if d.Type == "light" || d.Type == "dimmer" {
			v := st.Attributes.Light()
			if m.IsOn && v.Brightness != nil {
				m.Brightness = v.Brightness
			} else {
				zero := 0
				m.Brightness = &zero
			}
			if v.ColorTemp != nil {
				m.ColorTemp = v.ColorTemp
			}
		}

	case d.Type == "curtain":
		isOpen := st.State == "open"
		m.IsOn = isOpen
		v := st.Attributes.Cover()
		switch {
		case v.CurrentPosition != nil:
			m.Position = v.CurrentPosition
		case isOpen:
			full := 100
			m.Position = &full
		default:
			zero := 0
			m.Position = &zero
		}

	case sensorTypes[d.Type]:
		m.Count = st.State + st.Attributes.UnitOfMeasurement()
		m.IsOn = st.Available()

	case binarySensorTypes[d.Type]:
		m.IsOn = st.State == "on" || st.State == "open" ||
			st.State == "detected" || st.State == "unsafe"

	case climateTypes[d.Type]:
		m.IsOn = st.State != "off" && st.Available()
		v := st.Attributes.Climate()
		if v.Temperature != nil {
			m.Temperature = v.Temperature
		}
		if v.CurrentTemperature != nil {
			m.CurrentTemperature = v.CurrentTemperature
		}
		if st.State != "off" {
			m.Mode = st.State
		}
		if v.FanMode != "" {
			m.FanMode = v.FanMode
		}
		if v.SwingMode != "" {
			m.SwingMode = v.SwingMode
		}
		// Capability lists drift when the integration updates; follow.
		if len(v.HvacModes) > 0 && !slices.Equal(v.HvacModes, d.Params.HvacModes) {
			d.Params.HvacModes = v.HvacModes
		}
		if len(v.FanModes) > 0 && !slices.Equal(v.FanModes, d.Params.FanModes) {
			d.Params.FanModes = v.FanModes
		}
		if len(v.SwingModes) > 0 && !slices.Equal(v.SwingModes, d.Params.SwingModes) {
			d.Params.SwingModes = v.SwingModes
		}
		if v.MinTemp != nil {
			d.Params.MinTemp = v.MinTemp
		}
		if v.MaxTemp != nil {
			d.Params.MaxTemp = v.MaxTemp
		}

	default:
		m.IsOn = st.State == "on" || st.State == "open" || st.State == "home"
	}

	return !mirrorEqual(before, *d)
}

// mirrorEqual compares the reconciliation-owned parts of two records.
func mirrorEqual(a, b Device) bool {
	return intPtrEq(a.Mirror.Brightness, b.Mirror.Brightness) &&
		intPtrEq(a.Mirror.ColorTemp, b.Mirror.ColorTemp) &&
		intPtrEq(a.Mirror.Position, b.Mirror.Position) &&
		floatPtrEq(a.Mirror.Temperature, b.Mirror.Temperature) &&
		floatPtrEq(a.Mirror.CurrentTemperature, b.Mirror.CurrentTemperature) &&
		a.Mirror.IsOn == b.Mirror.IsOn &&
		a.Mirror.HAState == b.Mirror.HAState &&
		a.Mirror.HAAvailable == b.Mirror.HAAvailable &&
		a.Mirror.Mode == b.Mirror.Mode &&
		a.Mirror.FanMode == b.Mirror.FanMode &&
		a.Mirror.SwingMode == b.Mirror.SwingMode &&
		a.Mirror.Count == b.Mirror.Count &&
		a.Mirror.LastChanged.Equal(b.Mirror.LastChanged) &&
		a.Mirror.LastUpdated.Equal(b.Mirror.LastUpdated) &&
		a.Params.DeviceClass == b.Params.DeviceClass &&
		slices.Equal(a.Params.HvacModes, b.Params.HvacModes) &&
		slices.Equal(a.Params.FanModes, b.Params.FanModes) &&
		slices.Equal(a.Params.SwingModes, b.Params.SwingModes) &&
		floatPtrEq(a.Params.MinTemp, b.Params.MinTemp) &&
		floatPtrEq(a.Params.MaxTemp, b.Params.MaxTemp)
}

func intPtrEq(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func floatPtrEq(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
