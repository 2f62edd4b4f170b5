package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/wrenfield/monome-core/internal/osc"
)

// newLoopbackReceiver binds a listening receiver on an ephemeral
// loopback port and registers cleanup.
func newLoopbackReceiver(t *testing.T) *Receiver {
	t.Helper()

	recv, err := NewReceiver("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("NewReceiver() error = %v", err)
	}
	if err := recv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	t.Cleanup(recv.Close)
	return recv
}

func TestSendReceive(t *testing.T) {
	recv := newLoopbackReceiver(t)

	got := make(chan osc.Message, 1)
	recv.Registry().On("/sys/port", func(m osc.Message) { got <- m })

	sender, err := NewSender("127.0.0.1", recv.Port())
	if err != nil {
		t.Fatalf("NewSender() error = %v", err)
	}
	defer sender.Close()

	if err := sender.Send("/sys/port", osc.Int32(9000)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case m := <-got:
		if len(m.Args) != 1 || m.Args[0].Int() != 9000 {
			t.Errorf("received %v, want /sys/port 9000", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}
}

func TestSenderResolvesLocalhost(t *testing.T) {
	sender, err := NewSender("localhost", 12002)
	if err != nil {
		t.Fatalf("NewSender() error = %v", err)
	}
	defer sender.Close()

	if got := sender.Target(); got != "127.0.0.1:12002" && got != "[::1]:12002" {
		t.Errorf("Target() = %q, want numeric literal form", got)
	}
}

func TestSenderResolveFailure(t *testing.T) {
	if _, err := NewSender("no-such-host.invalid", 12002); !errors.Is(err, ErrResolve) {
		t.Errorf("NewSender() error = %v, want ErrResolve", err)
	}
}

func TestSenderEncodeErrorSurfaced(t *testing.T) {
	sender, err := NewSender("127.0.0.1", 12002)
	if err != nil {
		t.Fatalf("NewSender() error = %v", err)
	}
	defer sender.Close()

	if err := sender.Send("/bad", osc.String("embedded\x00null")); !errors.Is(err, osc.ErrInvalidArgument) {
		t.Errorf("Send() error = %v, want osc.ErrInvalidArgument", err)
	}
}

func TestReceiverSurvivesMalformedDatagram(t *testing.T) {
	recv := newLoopbackReceiver(t)

	got := make(chan osc.Message, 1)
	recv.Registry().On("/ok", func(m osc.Message) { got <- m })

	sender, err := NewSender("127.0.0.1", recv.Port())
	if err != nil {
		t.Fatalf("NewSender() error = %v", err)
	}
	defer sender.Close()

	// Raw garbage straight onto the socket: an unterminated address.
	conn, err := sender.connect()
	if err != nil {
		t.Fatalf("connect() error = %v", err)
	}
	if _, err := conn.Write([]byte("/truncated-no-null")); err != nil {
		t.Fatalf("raw write error = %v", err)
	}

	// A well-formed message afterwards must still be dispatched.
	if err := sender.Send("/ok"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not survive malformed datagram")
	}

	if recv.Stats().Dropped == 0 {
		t.Error("Stats().Dropped = 0, want at least 1")
	}
}

func TestReceiverCloseIdempotent(t *testing.T) {
	recv := newLoopbackReceiver(t)

	dispatched := make(chan struct{}, 16)
	recv.Registry().On("/x", func(osc.Message) { dispatched <- struct{}{} })

	recv.Close()
	recv.Close() // second close is a no-op

	if recv.Registry().HandlerCount("/x") != 0 {
		t.Error("subscriptions not cleared by Close")
	}

	select {
	case <-dispatched:
		t.Error("dispatch occurred after Close returned")
	default:
	}
}

func TestReceiverCloseWithoutListen(t *testing.T) {
	recv, err := NewReceiver("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("NewReceiver() error = %v", err)
	}
	recv.Close() // never listened: must be a no-op

	if err := recv.Listen(); !errors.Is(err, ErrListen) {
		t.Errorf("Listen() after Close error = %v, want ErrListen", err)
	}
}

func TestReceiverEphemeralPort(t *testing.T) {
	recv := newLoopbackReceiver(t)
	if recv.Port() == 0 {
		t.Error("Port() = 0 after Listen, want bound ephemeral port")
	}
}
