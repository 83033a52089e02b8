// Package netutil selects and binds the local listen port.
package netutil

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

const maxPort = 65535

var (
	// ErrInvalidPort is returned for port numbers outside 1-65535.
	ErrInvalidPort = errors.New("port must be between 1 and 65535")
	// ErrPortExhausted is returned when no free port was found within the search bound.
	ErrPortExhausted = errors.New("no free port found")
)

// BindError reports a failure to acquire the listen address.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// SelectPort returns the first port at or above preferred that can be bound on
// host. At most attempts ports are probed; each probe binds and immediately
// releases a TCP listener.
func SelectPort(host string, preferred, attempts int) (int, error) {
	if preferred < 1 || preferred > maxPort {
		return 0, fmt.Errorf("%w; got %d", ErrInvalidPort, preferred)
	}
	if attempts < 1 {
		attempts = 1
	}

	last := min(preferred+attempts-1, maxPort)
	for port := preferred; port <= last; port++ {
		if portFree(host, port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w in %d-%d on %s", ErrPortExhausted, preferred, last, host)
}

// Listen binds a TCP listener on host:port.
func Listen(host string, port int) (net.Listener, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}
	return ln, nil
}

func portFree(host string, port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
