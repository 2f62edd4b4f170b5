package monome

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wrenfield/monome-core/internal/osc"
	"github.com/wrenfield/monome-core/internal/transport"
)

// fakeDevice is a UDP endpoint standing in for a monome device: it
// records everything the session sends it.
type fakeDevice struct {
	recv *transport.Receiver
	msgs chan osc.Message
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()

	recv, err := transport.NewReceiver("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("NewReceiver() error = %v", err)
	}
	f := &fakeDevice{recv: recv, msgs: make(chan osc.Message, 32)}
	recv.Registry().OnAny(func(m osc.Message) { f.msgs <- m })
	if err := recv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	t.Cleanup(recv.Close)
	return f
}

// await returns the next message the fake device received at the given
// address, ignoring others.
func (f *fakeDevice) await(t *testing.T, address string) osc.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-f.msgs:
			if m.Address == address {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", address)
		}
	}
}

func newTestSession(t *testing.T, kind Kind, cfg SessionConfig) (*Session, *fakeDevice) {
	t.Helper()

	dev := newFakeDevice(t)
	desc := &Device{
		ID:         "m0000226",
		Model:      "monome 128",
		Kind:       kind,
		DeviceHost: "127.0.0.1",
		DevicePort: dev.recv.Port(),
	}
	if kind == KindArc {
		desc.Model = "monome arc"
		desc.Encoders = defaultArcEncoders
	}

	s := NewSession(desc, cfg)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(s.Stop)
	return s, dev
}

// ack delivers a handshake acknowledgment straight to the session's
// handler, bypassing the socket so delivery order is deterministic.
func ack(s *Session, field string) {
	switch field {
	case fieldPort:
		s.handleSysPort(osc.NewMessage("/sys/port", osc.Int32(int32(s.Port()))))
	case fieldHost:
		s.handleSysHost(osc.NewMessage("/sys/host", osc.String("127.0.0.1")))
	case fieldSize:
		s.handleSysSize(osc.NewMessage("/sys/size", osc.Int32(16), osc.Int32(8)))
	case fieldRotation:
		s.handleSysRotation(osc.NewMessage("/sys/rotation", osc.Int32(0)))
	}
}

// permutations returns every ordering of the given fields.
func permutations(fields []string) [][]string {
	if len(fields) <= 1 {
		return [][]string{append([]string(nil), fields...)}
	}
	var out [][]string
	for i := range fields {
		rest := make([]string, 0, len(fields)-1)
		rest = append(rest, fields[:i]...)
		rest = append(rest, fields[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]string{fields[i]}, p...))
		}
	}
	return out
}

func TestStartSendsOwnPort(t *testing.T) {
	s, dev := newTestSession(t, KindGrid, SessionConfig{})

	m := dev.await(t, "/sys/port")
	if len(m.Args) != 1 || int(m.Args[0].Int()) != s.Port() {
		t.Errorf("/sys/port args = %v, want [%d]", m.Args, s.Port())
	}
	if got := s.State(); got != StateAwaitingPort {
		t.Errorf("State() = %v, want %v", got, StateAwaitingPort)
	}
}

func TestHandshakeOrderIndependent(t *testing.T) {
	fields := []string{fieldPort, fieldHost, fieldSize, fieldRotation}
	perms := permutations(fields)
	if len(perms) != 24 {
		t.Fatalf("generated %d permutations, want 24", len(perms))
	}

	for _, perm := range perms {
		t.Run(fmt.Sprintf("%v", perm), func(t *testing.T) {
			s, _ := newTestSession(t, KindGrid, SessionConfig{})

			var initialized atomic.Int32
			s.SetOnInitialized(func() { initialized.Add(1) })

			for _, f := range perm {
				ack(s, f)
			}
			// Duplicate acks after completion must not re-fire.
			ack(s, fieldPort)
			ack(s, fieldSize)

			if got := initialized.Load(); got != 1 {
				t.Errorf("initialized fired %d times, want exactly 1", got)
			}
			if got := s.State(); got != StateConnected {
				t.Errorf("State() = %v, want %v", got, StateConnected)
			}
		})
	}
}

func TestHandshakeSendsHostAfterPort(t *testing.T) {
	s, dev := newTestSession(t, KindGrid, SessionConfig{})

	dev.await(t, "/sys/port")
	ack(s, fieldPort)

	m := dev.await(t, "/sys/host")
	if len(m.Args) != 1 || m.Args[0].Str() != "127.0.0.1" {
		t.Errorf("/sys/host args = %v, want [127.0.0.1]", m.Args)
	}
	if got := s.State(); got != StateAwaitingHost {
		t.Errorf("State() = %v, want %v", got, StateAwaitingHost)
	}
}

func TestHandshakeSendsInfoOnce(t *testing.T) {
	s, dev := newTestSession(t, KindGrid, SessionConfig{})

	ack(s, fieldPort)
	ack(s, fieldHost)
	dev.await(t, "/sys/info")

	// Replayed port/host acks must not trigger a second /sys/info.
	ack(s, fieldPort)
	ack(s, fieldHost)

	select {
	case m := <-dev.msgs:
		if m.Address == "/sys/info" {
			t.Error("/sys/info sent more than once")
		}
	case <-time.After(200 * time.Millisecond):
	}

	if got := s.State(); got != StateAwaitingInfo {
		t.Errorf("State() = %v, want %v", got, StateAwaitingInfo)
	}
}

func TestHandshakeRecordsSizeAndRotation(t *testing.T) {
	s, _ := newTestSession(t, KindGrid, SessionConfig{})

	for _, f := range []string{fieldPort, fieldHost, fieldSize, fieldRotation} {
		ack(s, f)
	}

	d := s.Device()
	if d.SizeX != 16 || d.SizeY != 8 {
		t.Errorf("size = %dx%d, want 16x8", d.SizeX, d.SizeY)
	}
}

func TestConnectDisconnectIndependentOfHandshake(t *testing.T) {
	s, _ := newTestSession(t, KindGrid, SessionConfig{})

	var connects, disconnects atomic.Int32
	s.SetOnConnected(func() { connects.Add(1) })
	s.SetOnDisconnected(func() { disconnects.Add(1) })

	// Before any handshake progress.
	s.handleSysConnect(osc.NewMessage("/sys/connect"))
	if !s.Connected() {
		t.Error("Connected() = false after /sys/connect")
	}
	if s.Initialized() {
		t.Error("/sys/connect must not satisfy the pending field set")
	}

	s.handleSysDisconnect(osc.NewMessage("/sys/disconnect"))
	if s.Connected() {
		t.Error("Connected() = true after /sys/disconnect")
	}

	if connects.Load() != 1 || disconnects.Load() != 1 {
		t.Errorf("events = %d connects, %d disconnects, want 1 and 1",
			connects.Load(), disconnects.Load())
	}
}

func TestPrefixChangeResubscribes(t *testing.T) {
	s, _ := newTestSession(t, KindGrid, SessionConfig{})

	var got []string
	s.SetOnMessage(func(m osc.Message) { got = append(got, m.Address) })

	reg := s.recv.Registry()
	s.handleSysPrefix(osc.NewMessage("/sys/prefix", osc.String("/foo")))

	reg.Dispatch(osc.NewMessage("/foo/grid/key", osc.Int32(1), osc.Int32(2), osc.Int32(1)))
	reg.Dispatch(osc.NewMessage("/monome/grid/key", osc.Int32(1), osc.Int32(2), osc.Int32(1)))

	if len(got) != 1 || got[0] != "/foo/grid/key" {
		t.Errorf("dispatched = %v, want [/foo/grid/key]", got)
	}
	if s.Prefix() != "/foo" {
		t.Errorf("Prefix() = %q, want /foo", s.Prefix())
	}
}

func TestArcSubscribesEncoderAddresses(t *testing.T) {
	s, _ := newTestSession(t, KindArc, SessionConfig{})

	var got []string
	s.SetOnMessage(func(m osc.Message) { got = append(got, m.Address) })

	reg := s.recv.Registry()
	reg.Dispatch(osc.NewMessage("/monome/enc/delta", osc.Int32(0), osc.Int32(5)))
	reg.Dispatch(osc.NewMessage("/monome/enc/key", osc.Int32(1), osc.Int32(1)))
	reg.Dispatch(osc.NewMessage("/monome/grid/key", osc.Int32(0), osc.Int32(0), osc.Int32(1)))

	want := []string{"/monome/enc/delta", "/monome/enc/key"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("dispatched = %v, want %v", got, want)
	}
}

func TestHandshakeWatchdog(t *testing.T) {
	s, _ := newTestSession(t, KindGrid, SessionConfig{HandshakeTimeout: 50 * time.Millisecond})

	errs := make(chan error, 1)
	s.SetOnError(func(err error) { errs <- err })

	select {
	case err := <-errs:
		if !errors.Is(err, ErrHandshakeTimeout) {
			t.Errorf("error = %v, want ErrHandshakeTimeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not fire")
	}

	if s.Initialized() {
		t.Error("session must stay uninitialised after watchdog expiry")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s, _ := newTestSession(t, KindGrid, SessionConfig{})

	s.Stop()
	s.Stop()

	if got := s.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want %v", got, StateDisconnected)
	}
	if err := s.Send("/monome/grid/led/set", osc.Int32(0), osc.Int32(0), osc.Int32(1)); !errors.Is(err, ErrStopped) {
		t.Errorf("Send() after Stop error = %v, want ErrStopped", err)
	}
}
