package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/wrenfield/monome-core/internal/osc"
)

// Sender transmits OSC messages to a single fixed target host:port.
//
// The outbound socket is bound lazily on first Send and is a connected
// UDP socket, so ICMP port-unreachable replies from the OS surface as
// ErrConnectionRefused on a later send.
//
// Thread Safety: all methods are safe for concurrent use.
type Sender struct {
	host string // numeric literal, resolved at construction
	port int

	mu   sync.Mutex
	conn *net.UDPConn

	sent   atomic.Uint64
	errors atomic.Uint64
}

// NewSender creates a Sender targeting host:port.
//
// Symbolic names (including "localhost") are resolved to their numeric
// literal form here; all subsequent traffic uses only the literal. This
// is a contract inherited from the platform serialosc was built against:
// the daemon echoes the host string back to devices verbatim, so it must
// always be a numeric address.
//
// Returns:
//   - *Sender: Ready sender (socket not yet bound)
//   - error: ErrResolve if the host cannot be resolved
func NewSender(host string, port int) (*Sender, error) {
	numeric, err := resolveNumericHost(host)
	if err != nil {
		return nil, err
	}
	return &Sender{host: numeric, port: port}, nil
}

// Target returns the numeric "host:port" this sender transmits to.
func (s *Sender) Target() string {
	return net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
}

// Send encodes and transmits one OSC message to the fixed target.
//
// Fire-and-forget: there is no acknowledgment, retry or timeout. The
// returned error is classified into the transport error taxonomy and
// always names the target for diagnostics.
//
// Returns:
//   - error: osc.ErrInvalidArgument (caller error from encoding),
//     ErrPermissionDenied, ErrConnectionRefused, or ErrSend
func (s *Sender) Send(address string, args ...osc.Value) error {
	data, err := osc.Encode(osc.NewMessage(address, args...))
	if err != nil {
		return err
	}

	conn, err := s.connect()
	if err != nil {
		s.errors.Add(1)
		return classifySendError(err, s.Target())
	}

	if _, err := conn.Write(data); err != nil {
		s.errors.Add(1)
		return classifySendError(err, s.Target())
	}

	s.sent.Add(1)
	return nil
}

// connect lazily binds the outbound socket on first use.
func (s *Sender) connect() (*net.UDPConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.conn, nil
	}

	raddr := &net.UDPAddr{IP: net.ParseIP(s.host), Port: s.port}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}

	s.conn = conn
	return conn, nil
}

// Close releases the outbound socket. Safe to call multiple times and
// before the first Send.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// SenderStats holds send-side counters.
type SenderStats struct {
	Sent   uint64
	Errors uint64
}

// Stats returns current send counters.
func (s *Sender) Stats() SenderStats {
	return SenderStats{
		Sent:   s.sent.Load(),
		Errors: s.errors.Load(),
	}
}

// classifySendError maps an OS-level error into the transport taxonomy,
// attaching the target address.
func classifySendError(err error, target string) error {
	switch {
	case errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM):
		return fmt.Errorf("%w: %s: %w", ErrPermissionDenied, target, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %s: %w", ErrConnectionRefused, target, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrSend, target, err)
	}
}

// resolveNumericHost resolves a host to its numeric literal form. A host
// that already parses as an IP literal is returned unchanged; otherwise
// the name is looked up and the first address (IPv4 preferred) is used.
func resolveNumericHost(host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return "", fmt.Errorf("%w: %q: %w", ErrResolve, host, err)
	}

	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return ips[0].String(), nil
}
