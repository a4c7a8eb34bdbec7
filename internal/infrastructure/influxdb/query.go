package influxdb

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// HistoryPoint is one recorded sample of an entity's state.
type HistoryPoint struct {
	Time  time.Time `json:"time"`
	State string    `json:"state,omitempty"`
	Value *float64  `json:"value,omitempty"`
}

// maxHistoryWindow caps how far back a single history query may reach.
const maxHistoryWindow = 30 * 24 * time.Hour

// EntityHistory returns recorded state samples for one entity over the
// given window, oldest first.
func (c *Client) EntityHistory(ctx context.Context, entityID string, window time.Duration) ([]HistoryPoint, error) {
	if c == nil || !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if strings.TrimSpace(entityID) == "" {
		return nil, fmt.Errorf("entity id is required")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}
	if window > maxHistoryWindow {
		window = maxHistoryWindow
	}

	// %q quoting keeps the entity id inside the Flux string literal.
	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: -%ds)
  |> filter(fn: (r) => r._measurement == "entity_state")
  |> filter(fn: (r) => r.entity_id == %q)
  |> filter(fn: (r) => r._field == "state" or r._field == "value")
  |> sort(columns: ["_time"])`,
		c.cfg.Bucket, int(window.Seconds()), entityID)

	queryAPI := c.client.QueryAPI(c.cfg.Org)
	result, err := queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("querying entity history: %w", err)
	}
	defer result.Close() //nolint:errcheck

	// The state and value fields come back as separate series; merge
	// them on the sample timestamp.
	merged := make(map[time.Time]*HistoryPoint)
	order := make([]time.Time, 0)

	for result.Next() {
		record := result.Record()
		ts := record.Time()

		point, ok := merged[ts]
		if !ok {
			point = &HistoryPoint{Time: ts}
			merged[ts] = point
			order = append(order, ts)
		}

		switch record.Field() {
		case "state":
			if s, ok := record.Value().(string); ok {
				point.State = s
			}
		case "value":
			if f, ok := record.Value().(float64); ok {
				v := f
				point.Value = &v
			}
		}
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("reading entity history: %w", result.Err())
	}

	points := make([]HistoryPoint, 0, len(order))
	for _, ts := range order {
		points = append(points, *merged[ts])
	}
	return points, nil
}
