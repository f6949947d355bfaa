package discovery

import (
	"fmt"
	"net"
	"strconv"

	"github.com/peace-maker/poek/internal/netutil"
)

// BroadcastAddr is the default discovery destination.
const BroadcastAddr = "255.255.255.255"

// Requester broadcasts discovery requests advertising the local catalog
// listener port. The destination may also be a unicast host.
type Requester struct {
	conn net.PacketConn
	dest *net.UDPAddr
	req  []byte
}

// NewRequester opens a broadcast-capable UDP socket aimed at host:port.
func NewRequester(host string, port, catalogPort uint16) (*Requester, error) {
	dest, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, fmt.Errorf("resolve discovery destination %q: %w", host, err)
	}
	conn, err := netutil.BroadcastConn()
	if err != nil {
		return nil, err
	}
	return &Requester{
		conn: conn,
		dest: dest,
		req:  EncodeRequest(catalogPort),
	}, nil
}

// Broadcast sends one discovery request.
func (r *Requester) Broadcast() error {
	if _, err := r.conn.WriteTo(r.req, r.dest); err != nil {
		return fmt.Errorf("send discovery request: %w", err)
	}
	return nil
}

// Close releases the socket.
func (r *Requester) Close() error { return r.conn.Close() }
