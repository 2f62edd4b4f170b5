package monome

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wrenfield/monome-core/internal/osc"
	"github.com/wrenfield/monome-core/internal/transport"
)

// DefaultPrefix is the application address namespace used until the
// device negotiates another one via /sys/prefix.
const DefaultPrefix = "/monome"

// Handshake fields awaiting acknowledgment. Tracked as a set because
// UDP replies arrive in any order.
const (
	fieldPort     = "port"
	fieldHost     = "host"
	fieldSize     = "size"
	fieldRotation = "rotation"
)

// State is the coarse lifecycle state of a Session. The pending field
// set is tracked independently; State is derived from it.
type State int

// Session lifecycle states.
const (
	// StateAwaitingPort means /sys/port has not been acknowledged yet.
	StateAwaitingPort State = iota

	// StateAwaitingHost means the port is acknowledged but the host is not.
	StateAwaitingHost

	// StateAwaitingInfo means addressing is established and the static
	// fields requested by /sys/info are still incomplete.
	StateAwaitingInfo

	// StateConnected means every handshake field has been acknowledged.
	StateConnected

	// StateDisconnected means the session has been stopped.
	StateDisconnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAwaitingPort:
		return "awaiting_port"
	case StateAwaitingHost:
		return "awaiting_host"
	case StateAwaitingInfo:
		return "awaiting_info"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Logger is the logging interface used by the Session.
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

// SessionConfig holds per-session options.
type SessionConfig struct {
	// ListenHost is the local address the session's receiver binds.
	// Default: "127.0.0.1".
	ListenHost string

	// ListenPort is the local port to bind. 0 requests an ephemeral port.
	ListenPort int

	// Prefix is the initial application address namespace.
	// Default: DefaultPrefix.
	Prefix string

	// HandshakeTimeout arms a watchdog that surfaces ErrHandshakeTimeout
	// through the error callback if the handshake has not completed in
	// time. 0 (the default) disables the watchdog: an unresponsive
	// device leaves the session waiting indefinitely.
	HandshakeTimeout time.Duration
}

// Session drives the /sys handshake against one device's UDP endpoint
// and afterwards relays application messages in both directions.
//
// Thread Safety: all methods are safe for concurrent use. Handler
// callbacks are invoked from the receiver's single dispatch goroutine.
type Session struct {
	device *Device
	cfg    SessionConfig

	mu          sync.Mutex
	sender      *transport.Sender
	recv        *transport.Receiver
	started     bool
	stopped     bool
	pending     map[string]struct{}
	infoSent    bool
	initialized bool
	linkUp      bool // /sys/connect // /sys/disconnect flag
	prefix      string
	watchdog    *time.Timer

	// Callbacks (optional). Invoked without the session lock held.
	onInitialized  func()
	onConnected    func()
	onDisconnected func()
	onMessage      func(msg osc.Message)
	onError        func(err error)

	logger Logger
}

// NewSession creates a Session for the given device descriptor. The
// descriptor is shared, not copied: size and rotation learned during
// the handshake are written back into it.
func NewSession(device *Device, cfg SessionConfig) *Session {
	if cfg.ListenHost == "" {
		cfg.ListenHost = "127.0.0.1"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Session{
		device: device,
		cfg:    cfg,
		prefix: normalizePrefix(cfg.Prefix),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the session. Must be called before Start.
func (s *Session) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetOnInitialized sets the callback raised exactly once, when every
// handshake field has been acknowledged.
func (s *Session) SetOnInitialized(f func()) {
	s.mu.Lock()
	s.onInitialized = f
	s.mu.Unlock()
}

// SetOnConnected sets the callback for an unsolicited /sys/connect.
func (s *Session) SetOnConnected(f func()) {
	s.mu.Lock()
	s.onConnected = f
	s.mu.Unlock()
}

// SetOnDisconnected sets the callback for /sys/disconnect.
func (s *Session) SetOnDisconnected(f func()) {
	s.mu.Lock()
	s.onDisconnected = f
	s.mu.Unlock()
}

// SetOnMessage sets the callback for application messages arriving under
// the current prefix (grid key, tilt, encoder key, encoder delta).
func (s *Session) SetOnMessage(f func(msg osc.Message)) {
	s.mu.Lock()
	s.onMessage = f
	s.mu.Unlock()
}

// SetOnError sets the callback for asynchronous session errors (today
// only the handshake watchdog).
func (s *Session) SetOnError(f func(err error)) {
	s.mu.Lock()
	s.onError = f
	s.mu.Unlock()
}

// Start binds a fresh receiver, subscribes the /sys and application
// handlers, and opens the handshake by telling the device our port.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if s.stopped {
		return ErrStopped
	}

	recv, err := transport.NewReceiver(s.cfg.ListenHost, s.cfg.ListenPort)
	if err != nil {
		return fmt.Errorf("creating session receiver: %w", err)
	}
	recv.SetLogger(s.logger)

	sender, err := transport.NewSender(s.device.DeviceHost, s.device.DevicePort)
	if err != nil {
		recv.Close()
		return fmt.Errorf("creating session sender: %w", err)
	}

	reg := recv.Registry()
	reg.On("/sys/port", s.handleSysPort)
	reg.On("/sys/host", s.handleSysHost)
	reg.On("/sys/id", s.handleSysID)
	reg.On("/sys/size", s.handleSysSize)
	reg.On("/sys/rotation", s.handleSysRotation)
	reg.On("/sys/prefix", s.handleSysPrefix)
	reg.On("/sys/connect", s.handleSysConnect)
	reg.On("/sys/disconnect", s.handleSysDisconnect)
	for _, addr := range appAddresses(s.device.Kind, s.prefix) {
		reg.On(addr, s.handleApp)
	}

	if err := recv.Listen(); err != nil {
		sender.Close()
		recv.Close()
		return err
	}

	s.recv = recv
	s.sender = sender
	s.started = true
	s.pending = map[string]struct{}{
		fieldPort:     {},
		fieldHost:     {},
		fieldSize:     {},
		fieldRotation: {},
	}

	if s.cfg.HandshakeTimeout > 0 {
		s.watchdog = time.AfterFunc(s.cfg.HandshakeTimeout, s.handshakeExpired)
	}

	s.logger.Info("session started",
		"device", s.device.ID,
		"target", sender.Target(),
		"listen_port", recv.Port(),
	)

	if err := sender.Send("/sys/port", osc.Int32(int32(recv.Port()))); err != nil {
		return fmt.Errorf("opening handshake: %w", err)
	}
	return nil
}

// Stop marks the session disconnected and closes its receiver.
// Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	s.linkUp = false
	recv := s.recv
	sender := s.sender
	s.mu.Unlock()

	// Close outside the lock: Close waits for the dispatch goroutine,
	// and in-flight handlers take the session lock.
	if recv != nil {
		recv.Close()
	}
	if sender != nil {
		sender.Close()
	}

	s.logger.Info("session stopped", "device", s.device.ID)
}

// Device returns the descriptor this session serves.
func (s *Session) Device() *Device {
	return s.device
}

// State returns the coarse session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Connected reports the /sys/connect link flag. Independent of the
// handshake: a device can report connect/disconnect at any state.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linkUp
}

// Initialized reports whether the handshake has completed.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Prefix returns the currently negotiated application prefix.
func (s *Session) Prefix() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefix
}

// Port returns the session receiver's bound port, or 0 before Start.
func (s *Session) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recv == nil {
		return 0
	}
	return s.recv.Port()
}

// SessionStats aggregates the session's transport counters.
type SessionStats struct {
	Sent       uint64
	SendErrors uint64
	Received   uint64
	Dropped    uint64
}

// Stats returns current transport counters for the session. All
// counters read zero before Start.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	sender, recv := s.sender, s.recv
	s.mu.Unlock()

	var st SessionStats
	if sender != nil {
		ss := sender.Stats()
		st.Sent = ss.Sent
		st.SendErrors = ss.Errors
	}
	if recv != nil {
		rs := recv.Stats()
		st.Received = rs.Received
		st.Dropped = rs.Dropped
	}
	return st
}

// Send transmits an application or /sys message to the device. This is
// the generic outbound primitive; LED and ring command families are
// built on it by callers.
func (s *Session) Send(address string, args ...osc.Value) error {
	s.mu.Lock()
	sender := s.sender
	stopped := s.stopped
	s.mu.Unlock()

	if stopped || sender == nil {
		return ErrStopped
	}
	return sender.Send(address, args...)
}

// Subscribe registers a handler for an exact inbound address on the
// session's receiver. This is the generic inbound primitive.
func (s *Session) Subscribe(address string, h transport.Handler) error {
	s.mu.Lock()
	recv := s.recv
	stopped := s.stopped
	s.mu.Unlock()

	if stopped || recv == nil {
		return ErrStopped
	}
	recv.Registry().On(address, h)
	return nil
}

// stateLocked derives the coarse state from the pending set. Callers
// must hold s.mu.
func (s *Session) stateLocked() State {
	switch {
	case s.stopped:
		return StateDisconnected
	case !s.started:
		return StateAwaitingPort
	case s.initialized:
		return StateConnected
	case has(s.pending, fieldPort):
		return StateAwaitingPort
	case has(s.pending, fieldHost):
		return StateAwaitingHost
	default:
		return StateAwaitingInfo
	}
}

func has(set map[string]struct{}, k string) bool {
	_, ok := set[k]
	return ok
}

// handleSysPort acknowledges the port field. The device needs the port
// before a host makes sense to it, so the host is announced only now.
func (s *Session) handleSysPort(osc.Message) {
	s.mu.Lock()
	var fire func()
	if has(s.pending, fieldPort) {
		delete(s.pending, fieldPort)
		s.logger.Debug("handshake field acknowledged", "device", s.device.ID, "field", fieldPort)
		if has(s.pending, fieldHost) {
			if err := s.sender.Send("/sys/host", osc.String(s.recv.Host())); err != nil {
				s.logger.Warn("sending /sys/host failed", "device", s.device.ID, "error", err)
			}
		}
		fire = s.afterAckLocked()
	}
	s.mu.Unlock()

	if fire != nil {
		fire()
	}
}

func (s *Session) handleSysHost(osc.Message) {
	s.fireAck(fieldHost)
}

func (s *Session) handleSysSize(msg osc.Message) {
	s.mu.Lock()
	if x, okX := argInt(msg, 0); okX {
		if y, okY := argInt(msg, 1); okY {
			s.device.SizeX = int(x)
			s.device.SizeY = int(y)
		}
	}
	s.mu.Unlock()
	s.fireAck(fieldSize)
}

func (s *Session) handleSysRotation(msg osc.Message) {
	s.mu.Lock()
	if r, ok := argInt(msg, 0); ok {
		s.device.Rotation = int(r)
	}
	s.mu.Unlock()
	s.fireAck(fieldRotation)
}

func (s *Session) handleSysID(msg osc.Message) {
	if id, ok := argStr(msg, 0); ok && id != "" {
		s.mu.Lock()
		s.device.ID = id
		s.mu.Unlock()
	}
}

// handleSysPrefix renegotiates the application namespace: unsubscribe
// the kind-specific addresses under the old prefix, swap, resubscribe
// under the new one. Running inside the single dispatch goroutine makes
// the swap atomic with respect to message delivery.
func (s *Session) handleSysPrefix(msg osc.Message) {
	newPrefix, ok := argStr(msg, 0)
	if !ok || newPrefix == "" {
		return
	}
	newPrefix = normalizePrefix(newPrefix)

	s.mu.Lock()
	old := s.prefix
	if old != newPrefix && s.recv != nil {
		reg := s.recv.Registry()
		for _, addr := range appAddresses(s.device.Kind, old) {
			reg.Off(addr)
		}
		s.prefix = newPrefix
		for _, addr := range appAddresses(s.device.Kind, newPrefix) {
			reg.On(addr, s.handleApp)
		}
		s.logger.Info("prefix changed", "device", s.device.ID, "old", old, "new", newPrefix)
	}
	s.mu.Unlock()
}

func (s *Session) handleSysConnect(osc.Message) {
	s.mu.Lock()
	s.linkUp = true
	fire := s.onConnected
	s.mu.Unlock()

	if fire != nil {
		fire()
	}
}

func (s *Session) handleSysDisconnect(osc.Message) {
	s.mu.Lock()
	s.linkUp = false
	fire := s.onDisconnected
	s.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// handleApp relays application traffic to the message callback.
func (s *Session) handleApp(msg osc.Message) {
	s.mu.Lock()
	fire := s.onMessage
	s.mu.Unlock()

	if fire != nil {
		fire(msg)
	}
}

// fireAck acknowledges a field and fires the initialized callback when
// completion happens on this acknowledgment.
func (s *Session) fireAck(field string) {
	s.mu.Lock()
	var fire func()
	if has(s.pending, field) {
		delete(s.pending, field)
		s.logger.Debug("handshake field acknowledged", "device", s.device.ID, "field", field)
		fire = s.afterAckLocked()
	}
	s.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// afterAckLocked runs the post-acknowledgment steps: request the static
// fields once addressing is settled, and detect completion. Returns the
// initialized callback if this acknowledgment completed the handshake.
// Callers must hold s.mu.
func (s *Session) afterAckLocked() func() {
	if !s.infoSent && !has(s.pending, fieldPort) && !has(s.pending, fieldHost) {
		s.infoSent = true
		if err := s.sender.Send("/sys/info"); err != nil {
			s.logger.Warn("sending /sys/info failed", "device", s.device.ID, "error", err)
		}
	}

	if len(s.pending) == 0 && !s.initialized {
		s.initialized = true
		if s.watchdog != nil {
			s.watchdog.Stop()
			s.watchdog = nil
		}
		s.logger.Info("handshake complete", "device", s.device.ID)
		return s.onInitialized
	}
	return nil
}

// handshakeExpired runs when the optional watchdog fires.
func (s *Session) handshakeExpired() {
	s.mu.Lock()
	expired := !s.initialized && !s.stopped
	fire := s.onError
	pending := make([]string, 0, len(s.pending))
	for f := range s.pending {
		pending = append(pending, f)
	}
	s.mu.Unlock()

	if !expired {
		return
	}
	err := fmt.Errorf("%w: still pending %v after %v",
		ErrHandshakeTimeout, pending, s.cfg.HandshakeTimeout)
	s.logger.Warn("handshake watchdog fired", "device", s.device.ID, "error", err)
	if fire != nil {
		fire(err)
	}
}

// appAddresses returns the kind-specific application addresses under a
// prefix. This is the capability set that prefix renegotiation swaps.
func appAddresses(kind Kind, prefix string) []string {
	switch kind {
	case KindArc:
		return []string{prefix + "/enc/key", prefix + "/enc/delta"}
	default:
		return []string{prefix + "/grid/key", prefix + "/tilt"}
	}
}

// normalizePrefix guarantees a leading slash and no trailing slash.
func normalizePrefix(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

// argInt extracts an int32 argument by index.
func argInt(msg osc.Message, i int) (int32, bool) {
	if i >= len(msg.Args) || msg.Args[i].Kind() != osc.KindInt32 {
		return 0, false
	}
	return msg.Args[i].Int(), true
}

// argStr extracts a string argument by index.
func argStr(msg osc.Message, i int) (string, bool) {
	if i >= len(msg.Args) || msg.Args[i].Kind() != osc.KindString {
		return "", false
	}
	return msg.Args[i].Str(), true
}
