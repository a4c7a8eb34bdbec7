package device

import (
	"fmt"
	"time"
)

// Category groups devices for presentation and filtering.
type Category string

const (
	CategoryLighting Category = "lighting"
	CategorySwitch   Category = "switch"
	CategoryHVAC     Category = "hvac"
	CategoryCurtain  Category = "curtain"
	CategorySensor   Category = "sensor"
	CategorySecurity Category = "security"
	CategoryPerson   Category = "person"
	CategoryScene    Category = "scene"
	CategoryOther    Category = "other"
)

// Visibility controls whether a device shows up in default listings.
type Visibility string

const (
	VisibilityVisible Visibility = "visible"
	VisibilityHidden  Visibility = "hidden"
)

// RoomUnassigned is the placeholder room for devices whose location could
// not be determined. A device in this room is treated as a ghost during
// binding and may be replaced.
const RoomUnassigned = "unassigned"

// autoIDFloor is the lowest id handed out by discovery. Smaller ids are
// reserved for manually curated records.
const autoIDFloor = 1000

// Device is one user-facing catalog record, optionally bound to a remote
// entity.
//
// Name, Room, IsCommon and Visibility are user-owned once the device is
// bound: reconciliation never writes them again. Params captures static
// capabilities discovered from the entity; Mirror carries the live state
// the synchronization pass keeps current.
type Device struct {
	ID         int        `json:"id"`
	EntityID   string     `json:"entity_id,omitempty"`
	Name       string     `json:"name"`
	Room       string     `json:"room"`
	Category   Category   `json:"category"`
	Type       string     `json:"type"`
	Icon       string     `json:"icon,omitempty"`
	IsCommon   bool       `json:"is_common"`
	Visibility Visibility `json:"visibility"`

	Params Params `json:"params"`
	Mirror Mirror `json:"mirror"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Params are static capability parameters taken from the entity's
// attribute bag at discovery time. Pointers distinguish "absent" from
// zero values.
type Params struct {
	SupportedFeatures   *int     `json:"supported_features,omitempty"`
	UnitOfMeasurement   string   `json:"unit_of_measurement,omitempty"`
	DeviceClass         string   `json:"device_class,omitempty"`
	SupportedColorModes []string `json:"supported_color_modes,omitempty"`
	MinMireds           *int     `json:"min_mireds,omitempty"`
	MaxMireds           *int     `json:"max_mireds,omitempty"`
	HvacModes           []string `json:"hvac_modes,omitempty"`
	FanModes            []string `json:"fan_modes,omitempty"`
	SwingModes          []string `json:"swing_modes,omitempty"`
	MinTemp             *float64 `json:"min_temp,omitempty"`
	MaxTemp             *float64 `json:"max_temp,omitempty"`
	TargetTempStep      *float64 `json:"target_temp_step,omitempty"`
	PresetModes         []string `json:"preset_modes,omitempty"`
}

// Mirror is the live-mirrored portion of a device record. Every field
// here may be overwritten by the synchronization pass.
type Mirror struct {
	IsOn        bool   `json:"is_on"`
	HAState     string `json:"ha_state,omitempty"`
	HAAvailable bool   `json:"ha_available"`

	Brightness *int `json:"brightness,omitempty"`
	ColorTemp  *int `json:"color_temp,omitempty"`
	Position   *int `json:"position,omitempty"`

	Temperature        *float64 `json:"temperature,omitempty"`
	CurrentTemperature *float64 `json:"current_temperature,omitempty"`
	Mode               string   `json:"mode,omitempty"`
	FanMode            string   `json:"fan_mode,omitempty"`
	SwingMode          string   `json:"swing_mode,omitempty"`

	// Count is the display value for sensors ("21.5°C").
	Count string `json:"count,omitempty"`

	LastChanged time.Time `json:"last_changed,omitzero"`
	LastUpdated time.Time `json:"last_updated,omitzero"`
}

// Mapping is the durable binding table from device id to entity id.
type Mapping map[int]string

// EntityIDs returns the set of bound entity ids.
func (m Mapping) EntityIDs() map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for _, entityID := range m {
		out[entityID] = struct{}{}
	}
	return out
}

// Clone returns an independent copy of the mapping.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for id, entityID := range m {
		out[id] = entityID
	}
	return out
}

// Validate checks the structural invariants of a device record.
func (d *Device) Validate() error {
	if d.ID < 1 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidDevice)
	}
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	if d.Room == "" {
		return fmt.Errorf("%w: room is required", ErrInvalidDevice)
	}
	switch d.Visibility {
	case VisibilityVisible, VisibilityHidden:
	default:
		return fmt.Errorf("%w: visibility %q", ErrInvalidDevice, d.Visibility)
	}
	return nil
}

// Bound reports whether the device carries an entity binding.
func (d *Device) Bound() bool {
	return d.EntityID != ""
}
