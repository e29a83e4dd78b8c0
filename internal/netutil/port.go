// Package netutil holds small networking helpers for the gateway.
package netutil

import (
	"fmt"
	"net"

	"github.com/dockgate/dockgate/internal/core/domain"
)

// ReservePort asks the OS for a free ephemeral TCP port on loopback by binding
// to port 0, reading back the assigned number and releasing the socket.
//
// The reservation is advisory only: nothing stops another process from taking
// the port between release and the runtime binding it. Holding the socket open
// would conflict with the runtime's own bind, so the narrow race is accepted.
func ReservePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrPortAllocation, err)
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrPortAllocation, err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		return 0, fmt.Errorf("%w: releasing socket: %v", domain.ErrPortAllocation, err)
	}
	return port, nil
}
