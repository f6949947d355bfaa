// Package netutil provides socket helpers shared by both roles:
// first-free port binding, the local interface address set, and errno
// classification for connection handling.
package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// maxProbes bounds how far upward port probing walks.
const maxProbes = 1000

func setReuseAddr(network, address string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return serr
}

func setReusePort(network, address string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	}); err != nil {
		return err
	}
	return serr
}

func setBroadcast(network, address string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return serr
}

// ListenFirstFree binds a TCP listener with SO_REUSEADDR on the first
// free port at or above base, probing upward past ports in use. With
// base 0 the kernel assigns an ephemeral port. The bound port is
// returned alongside the listener.
func ListenFirstFree(host string, base uint16) (net.Listener, uint16, error) {
	lc := net.ListenConfig{Control: setReuseAddr}
	port := int(base)
	for i := 0; i < maxProbes && port <= 65535; i++ {
		ln, err := lc.Listen(context.Background(), "tcp4", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			bound := uint16(ln.Addr().(*net.TCPAddr).Port)
			return ln, bound, nil
		}
		if !IsAddrInUse(err) {
			return nil, 0, fmt.Errorf("listen on port %d: %w", port, err)
		}
		port++
	}
	return nil, 0, fmt.Errorf("no free port at or above %d", base)
}

// ListenPacketFirstFree binds a UDP socket with SO_REUSEPORT the same
// way. REUSEPORT lets several instances on one host share the discovery
// port; broadcast datagrams are delivered to all of them.
func ListenPacketFirstFree(host string, base uint16) (net.PacketConn, uint16, error) {
	lc := net.ListenConfig{Control: setReusePort}
	port := int(base)
	for i := 0; i < maxProbes && port <= 65535; i++ {
		conn, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			bound := uint16(conn.LocalAddr().(*net.UDPAddr).Port)
			return conn, bound, nil
		}
		if !IsAddrInUse(err) {
			return nil, 0, fmt.Errorf("bind udp port %d: %w", port, err)
		}
		port++
	}
	return nil, 0, fmt.Errorf("no free udp port at or above %d", base)
}

// BroadcastConn returns a UDP socket on an ephemeral port with
// SO_BROADCAST enabled.
func BroadcastConn() (net.PacketConn, error) {
	lc := net.ListenConfig{Control: setBroadcast}
	conn, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("open broadcast socket: %w", err)
	}
	return conn, nil
}

// InterfaceAddrs returns the set of IP addresses assigned to local
// interfaces, keyed by their string form.
func InterfaceAddrs() map[string]bool {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	set := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		switch v := a.(type) {
		case *net.IPNet:
			set[v.IP.String()] = true
		case *net.IPAddr:
			set[v.IP.String()] = true
		}
	}
	return set
}

// IsRefused reports whether err is a refused connection.
func IsRefused(err error) bool { return errors.Is(err, unix.ECONNREFUSED) }

// IsReset reports whether err is a reset connection or broken pipe,
// the two ways a peer's disappearance surfaces mid-stream.
func IsReset(err error) bool {
	return errors.Is(err, unix.ECONNRESET) || errors.Is(err, unix.EPIPE)
}

// IsAddrInUse reports whether err is a bind conflict.
func IsAddrInUse(err error) bool { return errors.Is(err, unix.EADDRINUSE) }

// IsClosed reports whether err comes from using a closed descriptor,
// the normal way detached sources observe their own shutdown.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, unix.EBADF)
}
