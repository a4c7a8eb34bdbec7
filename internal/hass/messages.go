package hass

import (
	"encoding/json"
	"time"
)

// Wire message types exchanged over the controller websocket.
const (
	msgTypeAuthRequired = "auth_required"
	msgTypeAuth         = "auth"
	msgTypeAuthOK       = "auth_ok"
	msgTypeAuthInvalid  = "auth_invalid"
	msgTypeResult       = "result"
	msgTypeEvent        = "event"
	msgTypePing         = "ping"
	msgTypePong         = "pong"

	// eventTypeStateChanged is the controller's entity update event.
	eventTypeStateChanged = "state_changed"

	cmdGetStates          = "get_states"
	cmdSubscribeEvents    = "subscribe_events"
	cmdUnsubscribeEvents  = "unsubscribe_events"
	cmdCallService        = "call_service"
	cmdAreaRegistryList   = "config/area_registry/list"
	cmdDeviceRegistryList = "config/device_registry/list"
	cmdEntityRegistryList = "config/entity_registry/list"
)

// serverMessage is the envelope of every message received from the controller.
type serverMessage struct {
	ID      uint64          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
	Error   *serverError    `json:"error,omitempty"`

	// Auth handshake fields.
	HAVersion string `json:"ha_version,omitempty"`
	Message   string `json:"message,omitempty"`
}

// serverError carries a command failure reported by the controller.
type serverError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EntityState is the latest known state of one remote entity.
//
// The identifier has the form "domain.name"; Attributes is an open bag
// whose recognized keys can be viewed through the typed accessors in
// attributes.go.
type EntityState struct {
	EntityID    string     `json:"entity_id"`
	State       string     `json:"state"`
	Attributes  Attributes `json:"attributes"`
	LastChanged time.Time  `json:"last_changed"`
	LastUpdated time.Time  `json:"last_updated"`
}

// Domain returns the capability-class prefix of the entity identifier
// ("light" for "light.kitchen"). Empty when the identifier is malformed.
func (e EntityState) Domain() string {
	for i := 0; i < len(e.EntityID); i++ {
		if e.EntityID[i] == '.' {
			return e.EntityID[:i]
		}
	}
	return ""
}

// Available reports whether the remote entity is currently usable.
// The controller models missing integrations as "unavailable"/"unknown"
// states rather than absent entities.
func (e EntityState) Available() bool {
	return e.State != "unavailable" && e.State != "unknown"
}

// FriendlyName returns the localized display name, falling back to the
// entity identifier.
func (e EntityState) FriendlyName() string {
	if name, ok := e.Attributes.String("friendly_name"); ok && name != "" {
		return name
	}
	return e.EntityID
}

// Event is a raw change notification delivered by an event subscription.
type Event struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	TimeFired time.Time       `json:"time_fired"`
}

// StateChangedData is the payload of a state_changed event.
type StateChangedData struct {
	EntityID string       `json:"entity_id"`
	NewState *EntityState `json:"new_state"`
	OldState *EntityState `json:"old_state"`
}

// EventRecord is one entry of the bounded event journal.
type EventRecord struct {
	Time      time.Time       `json:"time"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// Area is remote metadata describing a physical area.
type Area struct {
	AreaID  string `json:"area_id"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// DeviceEntry is remote metadata for a physical device grouping entities.
type DeviceEntry struct {
	ID           string  `json:"id"`
	AreaID       *string `json:"area_id"`
	Name         *string `json:"name"`
	NameByUser   *string `json:"name_by_user"`
	Manufacturer string  `json:"manufacturer,omitempty"`
	Model        string  `json:"model,omitempty"`
}

// EntityEntry is remote registry metadata for a single entity.
type EntityEntry struct {
	EntityID     string  `json:"entity_id"`
	DeviceID     *string `json:"device_id"`
	AreaID       *string `json:"area_id"`
	Name         *string `json:"name"`
	OriginalName string  `json:"original_name,omitempty"`
	Platform     string  `json:"platform,omitempty"`
	DisabledBy   *string `json:"disabled_by"`
	HiddenBy     *string `json:"hidden_by"`
}

// Hidden reports whether the registry marks this entity disabled or hidden;
// such entities are excluded from discovery listings.
func (e EntityEntry) Hidden() bool {
	return e.DisabledBy != nil || e.HiddenBy != nil
}
