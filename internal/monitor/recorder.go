package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wrenfield/monome-core/internal/infrastructure/logging"
	"github.com/wrenfield/monome-core/internal/monome"
	"github.com/wrenfield/monome-core/internal/osc"
)

// Lifecycle event types written to the device_events table.
const (
	EventAttached     = "attached"
	EventDetached     = "detached"
	EventInitialized  = "initialized"
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
)

// TimeSeries is the subset of the InfluxDB client the recorder uses to
// forward input and lifecycle events. Writes are fire-and-forget; the
// underlying client batches and reports errors through its own channel.
type TimeSeries interface {
	WriteKeyEvent(serial string, x, y, state int)
	WriteEncoderDelta(serial string, encoder, delta int)
	WriteTilt(serial string, sensor, x, y, z int)
	WriteLifecycleEvent(serial, eventType string)
}

// Recorder persists device observations to SQLite.
//
// Thread Safety: all methods are safe for concurrent use; writes go
// through the single-connection database pool.
type Recorder struct {
	db     *sql.DB
	logger *logging.Logger

	mu sync.RWMutex
	ts TimeSeries
}

// NewRecorder creates a recorder backed by the given database
// connection. A nil logger falls back to the package default.
func NewRecorder(db *sql.DB, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Recorder{db: db, logger: logger}
}

// SetTimeSeries enables forwarding of input and lifecycle events to a
// time-series backend. Pass nil to disable. Safe to call while the
// recorder is in use.
func (r *Recorder) SetTimeSeries(ts TimeSeries) {
	r.mu.Lock()
	r.ts = ts
	r.mu.Unlock()
}

// timeSeries returns the configured backend, or nil.
func (r *Recorder) timeSeries() TimeSeries {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ts
}

// DeviceAttached upserts the device row on a daemon announcement and
// appends an attach event.
func (r *Recorder) DeviceAttached(ctx context.Context, d *monome.Device) error {
	now := timestamp()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (serial, port, model, kind, encoders, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (serial, port) DO UPDATE SET
			model     = excluded.model,
			kind      = excluded.kind,
			encoders  = excluded.encoders,
			attached  = 1,
			last_seen = excluded.last_seen`,
		d.ID, d.DevicePort, d.Model, d.Kind.String(), d.Encoders, now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}

	return r.appendEvent(ctx, d, EventAttached, map[string]any{
		"model": d.Model,
		"kind":  d.Kind.String(),
	})
}

// DeviceInitialized records handshake completion: the geometry learned
// from /sys replies is written back to the device row and an
// initialized event is appended.
func (r *Recorder) DeviceInitialized(ctx context.Context, d *monome.Device) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET size_x = ?, size_y = ?, encoders = ?, rotation = ?, last_seen = ?
		WHERE serial = ? AND port = ?`,
		d.SizeX, d.SizeY, d.Encoders, d.Rotation, timestamp(), d.ID, d.DevicePort,
	)
	if err != nil {
		return fmt.Errorf("updating device geometry: %w", err)
	}

	return r.appendEvent(ctx, d, EventInitialized, map[string]any{
		"size_x":   d.SizeX,
		"size_y":   d.SizeY,
		"encoders": d.Encoders,
		"rotation": d.Rotation,
	})
}

// DeviceDetached marks the device row detached and appends a detach
// event.
func (r *Recorder) DeviceDetached(ctx context.Context, d *monome.Device) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET attached = 0, last_seen = ?
		WHERE serial = ? AND port = ?`,
		timestamp(), d.ID, d.DevicePort,
	)
	if err != nil {
		return fmt.Errorf("marking device detached: %w", err)
	}

	return r.appendEvent(ctx, d, EventDetached, nil)
}

// DeviceConnected appends a link-up event.
func (r *Recorder) DeviceConnected(ctx context.Context, d *monome.Device) error {
	return r.appendEvent(ctx, d, EventConnected, nil)
}

// DeviceDisconnected appends a link-down event.
func (r *Recorder) DeviceDisconnected(ctx context.Context, d *monome.Device) error {
	return r.appendEvent(ctx, d, EventDisconnected, nil)
}

// RecordMessage increments the traffic counter for the message's
// address and forwards decoded input events to the time-series backend.
// The prefix is the session's current application namespace, needed to
// decode input addresses.
func (r *Recorder) RecordMessage(ctx context.Context, d *monome.Device, prefix string, msg osc.Message) error {
	now := timestamp()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_traffic (serial, port, address, count, last_seen)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (serial, port, address) DO UPDATE SET
			count     = count + 1,
			last_seen = excluded.last_seen`,
		d.ID, d.DevicePort, msg.Address, now,
	)
	if err != nil {
		return fmt.Errorf("recording traffic: %w", err)
	}

	ts := r.timeSeries()
	if ts == nil {
		return nil
	}
	ev, ok := monome.ParseInput(prefix, msg)
	if !ok {
		return nil
	}
	switch ev.Type {
	case monome.InputKey:
		ts.WriteKeyEvent(d.ID, ev.X, ev.Y, ev.State)
	case monome.InputEncoderDelta:
		ts.WriteEncoderDelta(d.ID, ev.Encoder, ev.Delta)
	case monome.InputTilt:
		ts.WriteTilt(d.ID, ev.Sensor, ev.TiltX, ev.TiltY, ev.TiltZ)
	case monome.InputEncoderKey:
		// No dedicated measurement; the lifecycle log covers these.
	}
	return nil
}

// appendEvent inserts one row into the lifecycle log and mirrors it to
// the time-series backend when one is configured.
func (r *Recorder) appendEvent(ctx context.Context, d *monome.Device, eventType string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling event payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO device_events (id, serial, port, event_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), d.ID, d.DevicePort, eventType, string(payloadJSON), timestamp(),
	)
	if err != nil {
		return fmt.Errorf("inserting device event: %w", err)
	}

	if ts := r.timeSeries(); ts != nil {
		ts.WriteLifecycleEvent(d.ID, eventType)
	}
	return nil
}

// timestamp returns the current time in the canonical stored format.
func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
