package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 200
)

// DeviceRow is one persisted device observation.
type DeviceRow struct {
	Serial    string    `json:"serial"`
	Port      int       `json:"port"`
	Model     string    `json:"model"`
	Kind      string    `json:"kind"`
	SizeX     int       `json:"size_x"`
	SizeY     int       `json:"size_y"`
	Encoders  int       `json:"encoders"`
	Rotation  int       `json:"rotation"`
	Attached  bool      `json:"attached"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// EventRow is one lifecycle log entry.
type EventRow struct {
	ID        string         `json:"id"`
	Serial    string         `json:"serial"`
	Port      int            `json:"port"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// TrafficRow is one per-address message counter.
type TrafficRow struct {
	Serial   string    `json:"serial"`
	Port     int       `json:"port"`
	Address  string    `json:"address"`
	Count    int64     `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

// Devices returns all persisted device rows, attached first, then by
// serial.
func (r *Recorder) Devices(ctx context.Context) ([]DeviceRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT serial, port, model, kind, size_x, size_y, encoders, rotation,
			attached, first_seen, last_seen
		FROM devices
		ORDER BY attached DESC, serial, port`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := make([]DeviceRow, 0)
	for rows.Next() {
		var d DeviceRow
		var attached int
		var firstSeen, lastSeen string
		if err := rows.Scan(&d.Serial, &d.Port, &d.Model, &d.Kind, &d.SizeX, &d.SizeY,
			&d.Encoders, &d.Rotation, &attached, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		d.Attached = attached != 0
		if d.FirstSeen, err = parseTimestamp(firstSeen); err != nil {
			return nil, err
		}
		if d.LastSeen, err = parseTimestamp(lastSeen); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Events returns recent lifecycle entries for a serial, newest first.
// A non-positive limit selects the default (50, capped at 200).
func (r *Recorder) Events(ctx context.Context, serial string, limit int) ([]EventRow, error) {
	if serial == "" {
		return nil, fmt.Errorf("serial is required")
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, serial, port, event_type, payload, created_at
		FROM device_events
		WHERE serial = ?
		ORDER BY created_at DESC
		LIMIT ?`,
		serial, limit)
	if err != nil {
		return nil, fmt.Errorf("querying device events: %w", err)
	}
	defer rows.Close()

	events := make([]EventRow, 0, limit)
	for rows.Next() {
		var e EventRow
		var payload, createdAt string
		if err := rows.Scan(&e.ID, &e.Serial, &e.Port, &e.EventType, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning device event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshalling event payload: %w", err)
		}
		if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device events: %w", err)
	}
	return events, nil
}

// Traffic returns the message counters for a serial, busiest address
// first. An empty serial returns counters for all devices.
func (r *Recorder) Traffic(ctx context.Context, serial string) ([]TrafficRow, error) {
	query := `
		SELECT serial, port, address, count, last_seen
		FROM device_traffic
		ORDER BY count DESC, address`
	args := []any{}
	if serial != "" {
		query = `
		SELECT serial, port, address, count, last_seen
		FROM device_traffic
		WHERE serial = ?
		ORDER BY count DESC, address`
		args = append(args, serial)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying traffic: %w", err)
	}
	defer rows.Close()

	traffic := make([]TrafficRow, 0)
	for rows.Next() {
		var t TrafficRow
		var lastSeen string
		if err := rows.Scan(&t.Serial, &t.Port, &t.Address, &t.Count, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning traffic: %w", err)
		}
		if t.LastSeen, err = parseTimestamp(lastSeen); err != nil {
			return nil, err
		}
		traffic = append(traffic, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating traffic: %w", err)
	}
	return traffic, nil
}

// parseTimestamp parses the canonical stored timestamp format.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
