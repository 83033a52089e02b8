package netutil

import (
	"errors"
	"net"
	"testing"
)

// occupy binds an ephemeral port on loopback and keeps it open for the test.
func occupy(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln.Addr().(*net.TCPAddr).Port
}

func TestSelectPort_FreePreferred(t *testing.T) {
	// Grab a port, release it, and expect SelectPort to return it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	got, err := SelectPort("127.0.0.1", port, 10)
	if err != nil {
		t.Fatalf("SelectPort() error = %v", err)
	}
	if got != port {
		t.Errorf("SelectPort() = %d, want %d", got, port)
	}
}

func TestSelectPort_SkipsOccupied(t *testing.T) {
	busy := occupy(t)
	if busy == maxPort {
		t.Skip("ephemeral port at upper bound")
	}

	got, err := SelectPort("127.0.0.1", busy, 50)
	if err != nil {
		t.Fatalf("SelectPort() error = %v", err)
	}
	if got <= busy {
		t.Errorf("SelectPort() = %d, want > %d", got, busy)
	}
}

func TestSelectPort_Exhausted(t *testing.T) {
	busy := occupy(t)

	_, err := SelectPort("127.0.0.1", busy, 1)
	if !errors.Is(err, ErrPortExhausted) {
		t.Fatalf("SelectPort() error = %v, want ErrPortExhausted", err)
	}
}

func TestSelectPort_InvalidPreferred(t *testing.T) {
	for _, port := range []int{0, -1, 65536} {
		if _, err := SelectPort("127.0.0.1", port, 10); !errors.Is(err, ErrInvalidPort) {
			t.Errorf("SelectPort(%d) error = %v, want ErrInvalidPort", port, err)
		}
	}
}

func TestSelectPort_StopsAtMaxPort(t *testing.T) {
	got, err := SelectPort("127.0.0.1", maxPort, 100)
	if err != nil {
		if !errors.Is(err, ErrPortExhausted) {
			t.Fatalf("SelectPort() error = %v, want nil or ErrPortExhausted", err)
		}
		return
	}
	if got != maxPort {
		t.Errorf("SelectPort() = %d, want %d", got, maxPort)
	}
}

func TestListen_BindError(t *testing.T) {
	busy := occupy(t)

	_, err := Listen("127.0.0.1", busy)
	var be *BindError
	if !errors.As(err, &be) {
		t.Fatalf("Listen() error = %v, want *BindError", err)
	}
	if be.Unwrap() == nil {
		t.Error("BindError should wrap the underlying error")
	}
}

func TestListen_OK(t *testing.T) {
	ln, err := Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	_ = ln.Close()
}
