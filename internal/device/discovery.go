package device

import (
	"sort"
	"time"

	"github.com/skyeyinkun/homelink-core/internal/hass"
)

// RegistryLookup is the registry metadata discovery consults for room
// placement and hidden-entity filtering. *hass.RegistrySet satisfies it.
type RegistryLookup interface {
	Entity(entityID string) (hass.EntityEntry, bool)
	AreaNameForEntity(entityID string) string
}

// allowedDomains is the allow-list of domains eligible for auto-import.
var allowedDomains = map[string]bool{
	"light": true, "switch": true, "input_boolean": true,
	"sensor": true, "binary_sensor": true, "cover": true,
	"climate": true, "humidifier": true, "media_player": true,
	"fan": true, "lock": true, "vacuum": true,
	"alarm_control_panel": true, "camera": true, "person": true,
}

// DiscoveryResult is the outcome of one reconciliation run.
type DiscoveryResult struct {
	Devices  []Device
	Mapping  Mapping
	NewCount int
}

// DiscoverFromStates reconciles a state snapshot against the current
// catalog and produces candidate devices for every unbound entity.
//
// The run is append-only: pre-existing devices pass through untouched and
// nothing is ever removed. Entities already present in the mapping or
// carried on an existing device are skipped, which makes the function
// idempotent: feeding its own output back in adds nothing.
//
// Ids are allocated strictly increasing from max(existing, 999)+1, so
// auto-discovered devices never collide with curated low ids. reg may be
// nil; room inference then falls back to name heuristics alone.
func DiscoverFromStates(states map[string]hass.EntityState, existing []Device, mapping Mapping, reg RegistryLookup) DiscoveryResult {
	devices := make([]Device, len(existing))
	copy(devices, existing)
	outMapping := mapping.Clone()

	bound := mapping.EntityIDs()
	for _, d := range existing {
		if d.EntityID != "" {
			bound[d.EntityID] = struct{}{}
		}
	}

	nextID := 0
	for _, d := range existing {
		if d.ID > nextID {
			nextID = d.ID
		}
	}
	nextID++
	if nextID < autoIDFloor {
		nextID = autoIDFloor
	}

	// Map iteration order is random; sort so id assignment is stable.
	entityIDs := make([]string, 0, len(states))
	for entityID := range states {
		entityIDs = append(entityIDs, entityID)
	}
	sort.Strings(entityIDs)

	newCount := 0
	for _, entityID := range entityIDs {
		st := states[entityID]
		if _, ok := bound[entityID]; ok {
			continue
		}
		if !allowedDomains[st.Domain()] {
			continue
		}
		if reg != nil {
			if entry, ok := reg.Entity(entityID); ok && entry.Hidden() {
				continue
			}
		}

		d := buildCandidate(nextID, st, reg)
		devices = append(devices, d)
		outMapping[d.ID] = entityID
		bound[entityID] = struct{}{}
		nextID++
		newCount++
	}

	return DiscoveryResult{Devices: devices, Mapping: outMapping, NewCount: newCount}
}

// buildCandidate assembles one catalog record from an entity state.
func buildCandidate(id int, st hass.EntityState, reg RegistryLookup) Device {
	domain := st.Domain()
	friendlyName := st.FriendlyName()
	deviceClass := st.Attributes.DeviceClass()

	room := ""
	if reg != nil {
		room = reg.AreaNameForEntity(st.EntityID)
	}
	if room == "" {
		room = InferRoom(friendlyName, st.EntityID)
	}

	info := InferType(friendlyName, domain, deviceClass, st.Attributes)
	category := info.Category
	if category == "" {
		category = CategorizeDomain(domain, deviceClass)
	}

	d := Device{
		ID:         id,
		EntityID:   st.EntityID,
		Name:       friendlyName,
		Room:       room,
		Category:   category,
		Type:       info.Type,
		Icon:       "mdi:" + info.Icon,
		IsCommon:   false,
		Visibility: VisibilityVisible,
		Params:     extractParams(domain, st.Attributes),
		Mirror:     buildMirror(domain, st),
	}
	return d
}

// extractParams pulls static capability parameters for the domain out of
// the attribute bag. Absent attributes stay nil.
func extractParams(domain string, attrs hass.Attributes) Params {
	var p Params
	switch domain {
	case "climate":
		v := attrs.Climate()
		p.HvacModes = v.HvacModes
		p.FanModes = v.FanModes
		p.SwingModes = v.SwingModes
		p.MinTemp = v.MinTemp
		p.MaxTemp = v.MaxTemp
		p.TargetTempStep = v.TargetTempStep
		p.SupportedFeatures = optFeatures(attrs)
	case "light":
		v := attrs.Light()
		p.SupportedColorModes = v.SupportedColorModes
		p.MinMireds = v.MinMireds
		p.MaxMireds = v.MaxMireds
		p.SupportedFeatures = optFeatures(attrs)
	case "cover":
		p.SupportedFeatures = optFeatures(attrs)
	case "fan":
		v := attrs.Fan()
		p.PresetModes = v.PresetModes
		p.SupportedFeatures = optFeatures(attrs)
	case "sensor", "binary_sensor":
		p.UnitOfMeasurement = attrs.UnitOfMeasurement()
		p.DeviceClass = attrs.DeviceClass()
	}
	return p
}

// optFeatures returns the feature bitmask only when the bag carries one.
func optFeatures(attrs hass.Attributes) *int {
	if v, ok := attrs.Int("supported_features"); ok {
		return &v
	}
	return nil
}

// buildMirror captures the live view of an entity at discovery time.
func buildMirror(domain string, st hass.EntityState) Mirror {
	m := Mirror{
		IsOn:        st.State == "on" || st.State == "open" || st.State == "home",
		HAState:     st.State,
		HAAvailable: st.Available(),
		LastChanged: st.LastChanged,
		LastUpdated: st.LastUpdated,
	}

	switch domain {
	case "light":
		v := st.Attributes.Light()
		m.Brightness = v.Brightness
		m.ColorTemp = v.ColorTemp
	case "cover":
		v := st.Attributes.Cover()
		m.Position = v.CurrentPosition
	case "climate":
		v := st.Attributes.Climate()
		m.Temperature = v.Temperature
		m.CurrentTemperature = v.CurrentTemperature
		m.FanMode = v.FanMode
		m.SwingMode = v.SwingMode
		if st.State != "off" {
			m.Mode = st.State
		}
		m.IsOn = st.State != "off" && st.Available()
	case "sensor":
		m.Count = st.State + st.Attributes.UnitOfMeasurement()
	}
	return m
}

// nowFunc is swapped in tests that pin timestamps.
var nowFunc = time.Now
