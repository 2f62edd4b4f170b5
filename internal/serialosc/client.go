package serialosc

import (
	"fmt"
	"net"
	"sync"

	"github.com/wrenfield/monome-core/internal/monome"
	"github.com/wrenfield/monome-core/internal/osc"
	"github.com/wrenfield/monome-core/internal/transport"
)

// DefaultDaemonPort is the UDP port the serialosc daemon listens on.
const DefaultDaemonPort = 12002

// Logger is the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds discovery client options.
type Config struct {
	// ListenHost is the local address announcements are received on.
	// Default: "127.0.0.1".
	ListenHost string

	// ListenPort is the local announcement port. 0 requests an
	// ephemeral port.
	ListenPort int

	// DaemonHost is the serialosc daemon's host. Default: "127.0.0.1".
	DaemonHost string

	// DaemonPort is the serialosc daemon's port. Default: 12002.
	DaemonPort int

	// AutoSession makes the client construct and start a
	// monome.Session for every discovered device and tear it down on
	// removal. When false the caller builds sessions from the
	// device-added callback.
	AutoSession bool

	// Session configures auto-created sessions. Ignored unless
	// AutoSession is set.
	Session monome.SessionConfig
}

// Client discovers devices attached to a serialosc daemon and tracks
// them by their (id, devicePort) identity.
//
// The descriptor set has a single writer, the client's own message
// handlers, which run on the receiver's dispatch goroutine, so
// callers only ever observe it through accessor copies.
type Client struct {
	cfg Config

	mu       sync.Mutex
	sender   *transport.Sender
	recv     *transport.Receiver
	devices  map[monome.Key]*monome.Device
	sessions map[monome.Key]*monome.Session
	started  bool
	stopped  bool

	daemonHost string // numeric literal, resolved at Start

	onDeviceAdded   func(d *monome.Device)
	onDeviceRemoved func(d *monome.Device)

	logger Logger
}

// New creates a discovery client with defaults applied.
func New(cfg Config) *Client {
	if cfg.ListenHost == "" {
		cfg.ListenHost = "127.0.0.1"
	}
	if cfg.DaemonHost == "" {
		cfg.DaemonHost = "127.0.0.1"
	}
	if cfg.DaemonPort == 0 {
		cfg.DaemonPort = DefaultDaemonPort
	}
	return &Client{
		cfg:      cfg,
		devices:  make(map[monome.Key]*monome.Device),
		sessions: make(map[monome.Key]*monome.Session),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the client. Must be called before Start.
func (c *Client) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetOnDeviceAdded sets the callback raised once per newly discovered
// device. Repeated announcements for a known device do not re-fire it.
func (c *Client) SetOnDeviceAdded(f func(d *monome.Device)) {
	c.mu.Lock()
	c.onDeviceAdded = f
	c.mu.Unlock()
}

// SetOnDeviceRemoved sets the callback raised when the daemon reports a
// known device detached.
func (c *Client) SetOnDeviceRemoved(f func(d *monome.Device)) {
	c.mu.Lock()
	c.onDeviceRemoved = f
	c.mu.Unlock()
}

// Start binds the announcement receiver, registers for hot-plug
// notifications and requests a full enumeration from the daemon.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}
	if c.stopped {
		return ErrStopped
	}

	recv, err := transport.NewReceiver(c.cfg.ListenHost, c.cfg.ListenPort)
	if err != nil {
		return fmt.Errorf("creating discovery receiver: %w", err)
	}
	recv.SetLogger(c.logger)

	sender, err := transport.NewSender(c.cfg.DaemonHost, c.cfg.DaemonPort)
	if err != nil {
		recv.Close()
		return fmt.Errorf("creating daemon sender: %w", err)
	}

	host, _, err := net.SplitHostPort(sender.Target())
	if err != nil {
		sender.Close()
		recv.Close()
		return fmt.Errorf("parsing daemon target: %w", err)
	}

	reg := recv.Registry()
	reg.On("/serialosc/device", c.handleDevice)
	reg.On("/serialosc/add", c.handleAdd)
	reg.On("/serialosc/remove", c.handleRemove)

	if err := recv.Listen(); err != nil {
		sender.Close()
		recv.Close()
		return err
	}

	c.recv = recv
	c.sender = sender
	c.daemonHost = host
	c.started = true

	c.logger.Info("discovery started",
		"daemon", sender.Target(),
		"listen", fmt.Sprintf("%s:%d", recv.Host(), recv.Port()),
	)

	// Register for hot-plug events first, then enumerate.
	if err := c.notify(); err != nil {
		return err
	}
	return c.list()
}

// Stop closes the announcement receiver, stops any auto-created
// sessions and clears the descriptor set. Idempotent.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	recv := c.recv
	sender := c.sender
	sessions := c.sessions
	c.devices = make(map[monome.Key]*monome.Device)
	c.sessions = make(map[monome.Key]*monome.Session)
	c.mu.Unlock()

	if recv != nil {
		recv.Close()
	}
	for _, s := range sessions {
		s.Stop()
	}
	if sender != nil {
		sender.Close()
	}

	c.logger.Info("discovery stopped")
}

// Devices returns a snapshot of the known descriptors.
func (c *Client) Devices() []*monome.Device {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*monome.Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	return out
}

// Device looks up a descriptor by identity key.
func (c *Client) Device(key monome.Key) (*monome.Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.devices[key]
	return d, ok
}

// Session returns the auto-created session for a device, if any.
func (c *Client) Session(key monome.Key) (*monome.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[key]
	return s, ok
}

// Count returns the number of known devices.
func (c *Client) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.devices)
}

// notify tells the daemon where to push announcements and hot-plug
// events. The registration is consumed by the daemon on each use and
// must be refreshed after every add/remove cycle.
func (c *Client) notify() error {
	return c.sender.Send("/serialosc/notify",
		osc.String(c.recv.Host()), osc.Int32(int32(c.recv.Port())))
}

// list requests a full device enumeration; the daemon answers with one
// /serialosc/device message per attached device.
func (c *Client) list() error {
	return c.sender.Send("/serialosc/list",
		osc.String(c.recv.Host()), osc.Int32(int32(c.recv.Port())))
}

// handleDevice processes one device announcement (id, model, port).
func (c *Client) handleDevice(msg osc.Message) {
	id, model, port, ok := parseAnnouncement(msg)
	if !ok {
		c.logger.Warn("malformed device announcement", "message", msg.String())
		return
	}

	kind, encoders := monome.ClassifyModel(model)
	key := monome.Key{ID: id, Port: port}

	c.mu.Lock()
	if _, known := c.devices[key]; known {
		// Repeated announcement for a known device: silent dedup.
		c.mu.Unlock()
		return
	}

	d := &monome.Device{
		ID:         id,
		Model:      model,
		Kind:       kind,
		DaemonHost: c.daemonHost,
		DaemonPort: c.cfg.DaemonPort,
		DeviceHost: c.daemonHost,
		DevicePort: port,
		Encoders:   encoders,
	}
	c.devices[key] = d

	var session *monome.Session
	if c.cfg.AutoSession {
		session = monome.NewSession(d, c.cfg.Session)
		session.SetLogger(c.logger)
		c.sessions[key] = session
	}
	fire := c.onDeviceAdded
	c.mu.Unlock()

	c.logger.Info("device discovered",
		"id", id, "model", model, "kind", kind.String(), "port", port)

	if fire != nil {
		fire(d)
	}

	if session != nil {
		if err := session.Start(); err != nil {
			c.logger.Error("starting device session failed", "id", id, "error", err)
		}
	}
}

// handleAdd processes a hot-plug attach notification. The daemon sends
// no arguments; re-enumerate, then refresh the consumed notify
// registration.
func (c *Client) handleAdd(osc.Message) {
	c.logger.Debug("daemon reported device attached")
	if err := c.list(); err != nil {
		c.logger.Warn("re-enumerating after attach failed", "error", err)
	}
	if err := c.notify(); err != nil {
		c.logger.Warn("refreshing notify registration failed", "error", err)
	}
}

// handleRemove processes a detach notification (id, model, port).
func (c *Client) handleRemove(msg osc.Message) {
	id, _, port, ok := parseAnnouncement(msg)
	if !ok {
		c.logger.Warn("malformed remove notification", "message", msg.String())
		return
	}

	key := monome.Key{ID: id, Port: port}

	c.mu.Lock()
	d := c.devices[key]
	delete(c.devices, key)
	session := c.sessions[key]
	delete(c.sessions, key)
	fire := c.onDeviceRemoved
	c.mu.Unlock()

	if session != nil {
		session.Stop()
	}
	if d != nil {
		c.logger.Info("device removed", "id", id, "port", port)
		if fire != nil {
			fire(d)
		}
	}

	// The notify registration was consumed by this event; refresh it
	// whether or not the device was known to us.
	if err := c.notify(); err != nil {
		c.logger.Warn("refreshing notify registration failed", "error", err)
	}
}

// parseAnnouncement extracts (id, model, port) from an announcement or
// removal message.
func parseAnnouncement(msg osc.Message) (id, model string, port int, ok bool) {
	if len(msg.Args) < 3 ||
		msg.Args[0].Kind() != osc.KindString ||
		msg.Args[1].Kind() != osc.KindString ||
		msg.Args[2].Kind() != osc.KindInt32 {
		return "", "", 0, false
	}
	return msg.Args[0].Str(), msg.Args[1].Str(), int(msg.Args[2].Int()), true
}
