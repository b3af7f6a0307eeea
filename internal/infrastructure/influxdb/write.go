package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePosition records a manipulator position sample in metres.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Samples are only recorded on position change, so cardinality stays low
// even with a fast-polling monitor.
//
// Parameters:
//   - deviceID: Manipulator identifier (e.g. "patchstar-01")
//   - x, y, z: Physical position in metres
func (c *Client) WritePosition(deviceID string, x, y, z float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"manipulator_position",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"x": x,
			"y": y,
			"z": z,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteMoveResult records the outcome of a completed move.
//
// Parameters:
//   - deviceID: Manipulator identifier
//   - moveID: Unique identifier for the move handle
//   - outcome: "succeeded" or "failed"
//   - duration: Wall-clock time from issue to resolution
func (c *Client) WriteMoveResult(deviceID, moveID, outcome string, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"manipulator_move",
		map[string]string{
			"device_id": deviceID,
			"outcome":   outcome,
		},
		map[string]interface{}{
			"move_id":     moveID,
			"duration_ms": float64(duration.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
