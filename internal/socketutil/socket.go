// Package socketutil provides the small set of TCP helpers the
// socket-topology adapters (Ruby, Node.js) share: ephemeral port
// allocation and a connect-with-retry loop with an aggressive timeout.
package socketutil

import (
	"fmt"
	"net"
	"time"
)

// retryInterval is how often ConnectWithRetry re-attempts the dial.
const retryInterval = 100 * time.Millisecond

// FindFreePort binds an OS-assigned port on the loopback interface and
// immediately closes the listener, returning the port number for a debug
// adapter to bind to in turn.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("socketutil: find free port: %w", err)
	}
	defer l.Close()

	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("socketutil: unexpected listener address type %T", l.Addr())
	}
	return addr.Port, nil
}

// ConnectTimeoutError is returned by ConnectWithRetry when the deadline
// elapses without a successful connection.
type ConnectTimeoutError struct {
	Port int
}

func (e *ConnectTimeoutError) Error() string {
	return fmt.Sprintf("socketutil: timed out connecting to 127.0.0.1:%d", e.Port)
}

// ConnectWithRetry dials 127.0.0.1:port at retryInterval cadence until it
// succeeds or deadline elapses, returning a *ConnectTimeoutError on
// deadline expiry.
func ConnectWithRetry(port int, deadline time.Duration) (net.Conn, error) {
	address := fmt.Sprintf("127.0.0.1:%d", port)
	expires := time.Now().Add(deadline)

	for {
		conn, err := net.DialTimeout("tcp", address, retryInterval)
		if err == nil {
			return conn, nil
		}

		if time.Now().After(expires) {
			return nil, &ConnectTimeoutError{Port: port}
		}
		time.Sleep(retryInterval)
	}
}
