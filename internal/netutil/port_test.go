package netutil

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReservePortReturnsBindablePort(t *testing.T) {
	port, err := ReservePort()
	require.NoError(t, err)
	require.Greater(t, port, 1024, "expected an ephemeral port, got %d", port)
	require.LessOrEqual(t, port, 65535)

	// The socket must have been released: binding the same port again
	// should succeed immediately.
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err, "reserved port %d still held", port)
	_ = l.Close()
}

func TestReservePortNoImmediateDuplicates(t *testing.T) {
	seen := map[int]bool{}
	var listeners []net.Listener
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()

	// Holding each reserved port open forces subsequent reservations to
	// pick something else within a single-threaded sequence.
	for i := 0; i < 10; i++ {
		port, err := ReservePort()
		require.NoError(t, err)
		require.False(t, seen[port], "port %d handed out twice", port)
		seen[port] = true

		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		require.NoError(t, err)
		listeners = append(listeners, l)
	}
}
