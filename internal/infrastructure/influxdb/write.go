package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/skyeyinkun/homelink-core/internal/device"
	"github.com/skyeyinkun/homelink-core/internal/hass"
)

// WriteEntityState records one entity state sample.
//
// Numeric states additionally land in a "value" field so sensor history
// can be graphed without string parsing. The point is timestamped with
// the entity's last_updated when present.
//
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteEntityState(st hass.EntityState) {
	if !c.IsConnected() || st.EntityID == "" {
		return
	}

	tags := map[string]string{
		"entity_id": st.EntityID,
		"domain":    st.Domain(),
	}
	if class := st.Attributes.DeviceClass(); class != "" {
		tags["device_class"] = class
	}

	fields := map[string]interface{}{
		"state":     st.State,
		"available": st.Available(),
	}
	if v, err := strconv.ParseFloat(st.State, 64); err == nil {
		fields["value"] = v
	}

	ts := st.LastUpdated
	if ts.IsZero() {
		ts = time.Now()
	}

	c.writeAPI.WritePoint(write.NewPoint("entity_state", tags, fields, ts))
}

// WriteDeviceState records the mirrored state of a bound device after a
// reconciliation pass. Unbound devices have no live state and are skipped.
func (c *Client) WriteDeviceState(d device.Device) {
	if !c.IsConnected() || !d.Bound() {
		return
	}

	tags := map[string]string{
		"device_id": strconv.Itoa(d.ID),
		"entity_id": d.EntityID,
		"room":      d.Room,
		"type":      d.Type,
	}

	fields := map[string]interface{}{
		"is_on":     d.Mirror.IsOn,
		"available": d.Mirror.HAAvailable,
	}
	if d.Mirror.Brightness != nil {
		fields["brightness"] = *d.Mirror.Brightness
	}
	if d.Mirror.Position != nil {
		fields["position"] = *d.Mirror.Position
	}
	if d.Mirror.CurrentTemperature != nil {
		fields["current_temperature"] = *d.Mirror.CurrentTemperature
	}
	if d.Mirror.Temperature != nil {
		fields["target_temperature"] = *d.Mirror.Temperature
	}

	c.writeAPI.WritePoint(write.NewPoint("device_state", tags, fields, time.Now()))
}

// WriteConnectionEvent records a controller connection transition.
//
// Used for uptime analysis and for spotting flapping links between the
// local and public routes.
func (c *Client) WriteConnectionEvent(status hass.Status) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"state": string(status.State),
	}
	if status.ConnType != hass.ConnTypeNone {
		tags["conn_type"] = string(status.ConnType)
	}

	fields := map[string]interface{}{
		"connected": status.State == hass.StateConnected,
	}
	if status.Latency > 0 {
		fields["latency_ms"] = float64(status.Latency.Milliseconds())
	}
	if status.LastError != "" {
		fields["error"] = status.LastError
	}

	c.writeAPI.WritePoint(write.NewPoint("connection", tags, fields, time.Now()))
}
