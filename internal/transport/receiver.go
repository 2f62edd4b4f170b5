package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/wrenfield/monome-core/internal/osc"
)

// readBufferSize is the receive buffer per datagram. serialosc messages
// are tens of bytes; the largest application messages (LED maps) stay
// well under one kilobyte.
const readBufferSize = 2048

// Logger is the logging interface used by the Receiver. A nil-safe noop
// implementation is installed by default.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Receiver owns one listening UDP socket, its receive-loop goroutine
// and the handler Registry inbound messages are dispatched into.
//
// The receive loop reads a datagram, decodes it with the osc codec and
// dispatches the result. A datagram that fails to decode is logged and
// dropped; one malformed peer message never stops the loop.
//
// Closing the socket is the loop's cancellation mechanism: the blocked
// read unblocks with net.ErrClosed, so Close does not race with an
// in-flight receive.
type Receiver struct {
	host string // numeric literal
	port int    // requested port; 0 means ephemeral

	registry *Registry

	mu        sync.Mutex
	conn      *net.UDPConn
	listening bool

	done *closeOnce
	wg   sync.WaitGroup

	logger Logger

	received atomic.Uint64
	dropped  atomic.Uint64
}

// NewReceiver creates a Receiver that will bind host:port when Listen is
// called. Port 0 requests an ephemeral port; the actual port is available
// from Port after Listen. Symbolic hostnames are resolved to numeric
// literals here, same contract as NewSender.
func NewReceiver(host string, port int) (*Receiver, error) {
	numeric, err := resolveNumericHost(host)
	if err != nil {
		return nil, err
	}
	return &Receiver{
		host:     numeric,
		port:     port,
		registry: NewRegistry(),
		done:     newCloseOnce(),
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger for the receiver. Must be called before
// Listen.
func (r *Receiver) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Registry returns the handler registry inbound messages dispatch into.
func (r *Receiver) Registry() *Registry {
	return r.registry
}

// Listen binds the socket and starts the receive loop. Calling Listen on
// a receiver that is already listening or already closed is an error.
func (r *Receiver) Listen() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listening {
		return fmt.Errorf("%w: already listening", ErrListen)
	}
	select {
	case <-r.done.Done():
		return fmt.Errorf("%w: receiver closed", ErrListen)
	default:
	}

	laddr := &net.UDPAddr{IP: net.ParseIP(r.host), Port: r.port}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("%w: %s:%d: %w", ErrListen, r.host, r.port, err)
	}

	r.conn = conn
	r.listening = true

	r.wg.Add(1)
	go r.receiveLoop(conn)

	return nil
}

// Host returns the numeric listen host.
func (r *Receiver) Host() string {
	return r.host
}

// Port returns the actual bound port. Before Listen it returns the
// requested port (which may be 0).
func (r *Receiver) Port() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		if addr, ok := r.conn.LocalAddr().(*net.UDPAddr); ok {
			return addr.Port
		}
	}
	return r.port
}

// receiveLoop reads datagrams until the socket is closed.
func (r *Receiver) receiveLoop(conn *net.UDPConn) {
	defer r.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if r.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Warn("udp read failed", "error", err)
			continue
		}

		msg, err := osc.Decode(buf[:n])
		if err != nil {
			// Malformed datagram from a peer: drop it, keep the loop alive.
			r.dropped.Add(1)
			r.logger.Warn("dropping undecodable datagram", "bytes", n, "error", err)
			continue
		}

		r.received.Add(1)
		r.registry.Dispatch(msg)
	}
}

// Close stops the receive loop, releases the socket and clears all
// registered subscriptions. Idempotent: closing a receiver that never
// listened, or closing twice, is a no-op. After Close returns no further
// dispatch occurs for datagrams arriving on the socket.
func (r *Receiver) Close() {
	r.done.Close()

	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.listening = false
	r.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	r.wg.Wait()
	r.registry.RemoveAll()
}

// isClosed reports whether Close has been requested.
func (r *Receiver) isClosed() bool {
	select {
	case <-r.done.Done():
		return true
	default:
		return false
	}
}

// ReceiverStats holds receive-side counters.
type ReceiverStats struct {
	Received uint64
	Dropped  uint64
}

// Stats returns current receive counters.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		Received: r.received.Load(),
		Dropped:  r.dropped.Load(),
	}
}
