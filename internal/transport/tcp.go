// Package transport provides the TCP plumbing shared by the server's accept
// loop and the client's dialer.
package transport

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// DialTimeout bounds how long a client waits for the server socket.
const DialTimeout = 5 * time.Second

// Listen opens the server listening socket. Port 0 lets the system pick a
// free port; read it back from the listener's address.
func Listen(host string, port int) (net.Listener, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen on %s: %w", addr, err)
	}
	return ln, nil
}

// Dial connects to the server.
func Dial(host string, port int) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport: connect to %s: %w", addr, err)
	}
	return conn, nil
}
