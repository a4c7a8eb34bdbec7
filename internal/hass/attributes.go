package hass

import "encoding/json"

// Attributes is the open key-value bag attached to every entity state.
//
// Recognized keys are exposed through typed per-domain views (LightView,
// ClimateView, CoverView, FanView, SensorView); everything else stays in
// the map untouched, so round-tripping an entity never loses fields the
// controller added in a newer version.
type Attributes map[string]any

// String returns a string-valued attribute.
func (a Attributes) String(key string) (string, bool) {
	v, ok := a[key].(string)
	return v, ok
}

// Float returns a numeric attribute. JSON numbers decode as float64.
func (a Attributes) Float(key string) (float64, bool) {
	switch v := a[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Int returns an integer attribute, truncating a float64 JSON number.
func (a Attributes) Int(key string) (int, bool) {
	f, ok := a.Float(key)
	return int(f), ok
}

// Strings returns a []string attribute.
func (a Attributes) Strings(key string) []string {
	raw, ok := a[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// SupportedFeatures returns the capability bitmask, 0 when absent.
func (a Attributes) SupportedFeatures() int {
	v, _ := a.Int("supported_features")
	return v
}

// DeviceClass returns the controller-assigned subclass ("motion",
// "temperature", ...), empty when absent.
func (a Attributes) DeviceClass() string {
	v, _ := a.String("device_class")
	return v
}

// UnitOfMeasurement returns the display unit, empty when absent.
func (a Attributes) UnitOfMeasurement() string {
	v, _ := a.String("unit_of_measurement")
	return v
}

// LightView is the typed view over lighting attributes.
type LightView struct {
	Brightness          *int
	ColorTemp           *int
	MinMireds           *int
	MaxMireds           *int
	SupportedColorModes []string
	SupportedFeatures   int
}

// Light extracts the lighting view from the bag.
func (a Attributes) Light() LightView {
	return LightView{
		Brightness:          a.optInt("brightness"),
		ColorTemp:           a.optInt("color_temp"),
		MinMireds:           a.optInt("min_mireds"),
		MaxMireds:           a.optInt("max_mireds"),
		SupportedColorModes: a.Strings("supported_color_modes"),
		SupportedFeatures:   a.SupportedFeatures(),
	}
}

// ClimateView is the typed view over climate attributes.
type ClimateView struct {
	Temperature        *float64
	CurrentTemperature *float64
	MinTemp            *float64
	MaxTemp            *float64
	TargetTempStep     *float64
	HvacModes          []string
	FanModes           []string
	SwingModes         []string
	FanMode            string
	SwingMode          string
	SupportedFeatures  int
}

// Climate extracts the climate view from the bag.
func (a Attributes) Climate() ClimateView {
	fanMode, _ := a.String("fan_mode")
	swingMode, _ := a.String("swing_mode")
	return ClimateView{
		Temperature:        a.optFloat("temperature"),
		CurrentTemperature: a.optFloat("current_temperature"),
		MinTemp:            a.optFloat("min_temp"),
		MaxTemp:            a.optFloat("max_temp"),
		TargetTempStep:     a.optFloat("target_temp_step"),
		HvacModes:          a.Strings("hvac_modes"),
		FanModes:           a.Strings("fan_modes"),
		SwingModes:         a.Strings("swing_modes"),
		FanMode:            fanMode,
		SwingMode:          swingMode,
		SupportedFeatures:  a.SupportedFeatures(),
	}
}

// CoverView is the typed view over cover (curtain/blind) attributes.
type CoverView struct {
	CurrentPosition   *int
	SupportedFeatures int
}

// Cover extracts the cover view from the bag.
func (a Attributes) Cover() CoverView {
	return CoverView{
		CurrentPosition:   a.optInt("current_position"),
		SupportedFeatures: a.SupportedFeatures(),
	}
}

// FanView is the typed view over fan attributes.
type FanView struct {
	Percentage        *int
	PresetModes       []string
	PresetMode        string
	SupportedFeatures int
}

// Fan extracts the fan view from the bag.
func (a Attributes) Fan() FanView {
	presetMode, _ := a.String("preset_mode")
	return FanView{
		Percentage:        a.optInt("percentage"),
		PresetModes:       a.Strings("preset_modes"),
		PresetMode:        presetMode,
		SupportedFeatures: a.SupportedFeatures(),
	}
}

// SensorView is the typed view over sensor attributes.
type SensorView struct {
	UnitOfMeasurement string
	DeviceClass       string
}

// Sensor extracts the sensor view from the bag.
func (a Attributes) Sensor() SensorView {
	return SensorView{
		UnitOfMeasurement: a.UnitOfMeasurement(),
		DeviceClass:       a.DeviceClass(),
	}
}

func (a Attributes) optInt(key string) *int {
	if v, ok := a.Int(key); ok {
		return &v
	}
	return nil
}

func (a Attributes) optFloat(key string) *float64 {
	if v, ok := a.Float(key); ok {
		return &v
	}
	return nil
}

// Clone returns an independent copy of the bag. Nested maps and slices
// are recursively copied so mutations of the clone never leak back.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	cpy := make(Attributes, len(a))
	for k, v := range a {
		cpy[k] = cloneValue(v)
	}
	return cpy
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cpy := make(map[string]any, len(val))
		for k, nested := range val {
			cpy[k] = cloneValue(nested)
		}
		return cpy
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = cloneValue(elem)
		}
		return cpy
	case json.RawMessage:
		cpy := make(json.RawMessage, len(val))
		copy(cpy, val)
		return cpy
	default:
		return v
	}
}
