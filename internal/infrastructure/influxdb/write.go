package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteKeyEvent records a grid key press or release.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - serial: Device serial (e.g. "m0000045")
//   - x, y: Grid coordinates of the key
//   - state: 1 for press, 0 for release
func (c *Client) WriteKeyEvent(serial string, x, y, state int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"grid_key",
		map[string]string{
			"serial": serial,
		},
		map[string]interface{}{
			"x":     x,
			"y":     y,
			"state": state,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteEncoderDelta records an arc encoder rotation.
//
// Parameters:
//   - serial: Device serial
//   - encoder: Encoder index (0-based)
//   - delta: Signed rotation amount since the last event
func (c *Client) WriteEncoderDelta(serial string, encoder, delta int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"arc_delta",
		map[string]string{
			"serial": serial,
		},
		map[string]interface{}{
			"encoder": encoder,
			"delta":   delta,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteTilt records a tilt sensor reading.
//
// Parameters:
//   - serial: Device serial
//   - sensor: Tilt sensor index
//   - x, y, z: Raw accelerometer values
func (c *Client) WriteTilt(serial string, sensor, x, y, z int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"tilt",
		map[string]string{
			"serial": serial,
		},
		map[string]interface{}{
			"sensor": sensor,
			"x":      x,
			"y":      y,
			"z":      z,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteLifecycleEvent records a device lifecycle transition
// (attach, detach, handshake completion, link change).
//
// Parameters:
//   - serial: Device serial
//   - eventType: One of "added", "removed", "initialized", "connect", "disconnect"
func (c *Client) WriteLifecycleEvent(serial, eventType string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_lifecycle",
		map[string]string{
			"serial": serial,
			"event":  eventType,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("daemon_stats",
//	    map[string]string{"host": "studio-01"},
//	    map[string]interface{}{"devices": 3, "messages": 1042})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
