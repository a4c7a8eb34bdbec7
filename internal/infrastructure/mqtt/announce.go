package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/skyeyinkun/homelink-core/internal/device"
	"github.com/skyeyinkun/homelink-core/internal/hass"
)

// Announcer publishes Homelink state to the broker and relays inbound
// device commands.
//
// Two retained surfaces are maintained: homelink/status carries the
// daemon's connectivity to the remote controller, and each bound device
// gets its mirrored state under homelink/device/{id}/state. Commands
// arriving on homelink/device/{id}/set are fed to the registered handler.
type Announcer struct {
	client *Client
}

// CommandHandler processes a device command received over MQTT.
// The payload is the raw message body, typically JSON.
type CommandHandler func(deviceID int, payload []byte) error

// NewAnnouncer wraps a connected client.
func NewAnnouncer(client *Client) *Announcer {
	return &Announcer{client: client}
}

// statusPayload is the JSON shape published to homelink/status.
//
// The status field reports daemon liveness (matching the LWT schema);
// the ha_* fields report upstream connectivity.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	HAState   string `json:"ha_state"`
	ConnType  string `json:"conn_type,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	LastError string `json:"last_error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// AnnounceStatus publishes a controller connectivity transition, retained.
func (a *Announcer) AnnounceStatus(status hass.Status) error {
	payload, err := json.Marshal(statusPayload{
		Status:    "online",
		ClientID:  a.client.cfg.ClientID,
		HAState:   string(status.State),
		ConnType:  string(status.ConnType),
		BaseURL:   status.BaseURL,
		LatencyMS: status.Latency.Milliseconds(),
		LastError: status.LastError,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshaling status: %w", err)
	}
	return a.client.PublishRetained(Topics{}.Status(), payload)
}

// AnnounceDevice publishes a device's current record, retained.
// Unbound devices have no live state and are skipped.
func (a *Announcer) AnnounceDevice(d device.Device) error {
	if !d.Bound() {
		return nil
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshaling device %d: %w", d.ID, err)
	}
	return a.client.PublishRetained(Topics{}.DeviceState(d.ID), payload)
}

// RetractDevice clears the retained state topic for a device that was
// deleted or unbound.
func (a *Announcer) RetractDevice(deviceID int) error {
	return a.client.PublishRetained(Topics{}.DeviceState(deviceID), nil)
}

// ListenCommands subscribes to the device command topics, routing each
// message to handler with the device id parsed from the topic.
// Malformed topics are dropped with a warning.
func (a *Announcer) ListenCommands(handler CommandHandler) error {
	return a.client.Subscribe(Topics{}.AllDeviceCommands(), byte(a.client.cfg.QoS),
		func(topic string, payload []byte) error {
			id, err := deviceIDFromTopic(topic)
			if err != nil {
				return err
			}
			return handler(id, payload)
		})
}

// deviceIDFromTopic extracts the device id from homelink/device/{id}/set.
func deviceIDFromTopic(topic string) (int, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "device" {
		return 0, fmt.Errorf("%w: unexpected command topic %q", ErrInvalidTopic, topic)
	}
	id, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, fmt.Errorf("%w: bad device id in topic %q", ErrInvalidTopic, topic)
	}
	return id, nil
}
