package discovery

import (
	"context"
	"fmt"
	"net"

	"github.com/peace-maker/poek/internal/logging"
	"github.com/peace-maker/poek/internal/metrics"
	"github.com/peace-maker/poek/internal/netutil"
)

// PushFunc is invoked on the loop goroutine for each valid discovery
// request, with the requester's address and advertised catalog port.
type PushFunc func(host string, catalogPort uint16)

// Responder answers discovery broadcasts. It owns the UDP socket, drops
// bogus and self-originated datagrams, and hands valid requests to the
// push function. It never pushes anything itself.
type Responder struct {
	conn net.PacketConn
	port uint16
	post func(func())
	push PushFunc

	// localAddrs is swappable so tests can let loopback requests through.
	localAddrs func() map[string]bool
}

// NewResponder binds the discovery socket on the first free UDP port at
// or above base.
func NewResponder(base uint16, post func(func()), push PushFunc) (*Responder, error) {
	conn, port, err := netutil.ListenPacketFirstFree("", base)
	if err != nil {
		return nil, fmt.Errorf("bind discovery socket: %w", err)
	}
	return &Responder{
		conn:       conn,
		port:       port,
		post:       post,
		push:       push,
		localAddrs: netutil.InterfaceAddrs,
	}, nil
}

// Port returns the bound discovery port.
func (r *Responder) Port() uint16 { return r.port }

func (r *Responder) Name() string { return "discovery" }

func (r *Responder) Close() error { return r.conn.Close() }

// Serve reads datagrams until the socket closes.
func (r *Responder) Serve(ctx context.Context) error {
	buf := make([]byte, 4096)
	for {
		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || netutil.IsClosed(err) {
				return nil
			}
			return fmt.Errorf("read discovery socket: %w", err)
		}
		r.handle(buf[:n], addr)
	}
}

func (r *Responder) handle(data []byte, addr net.Addr) {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	catalogPort, err := DecodeRequest(data)
	if err != nil {
		logging.Debug("ignoring bogus request", logging.String("from", host), logging.Err(err))
		metrics.RecordDiscoveryRequest("bogus")
		return
	}
	if r.localAddrs()[host] {
		logging.Debug("ignoring request from self", logging.String("from", host))
		metrics.RecordDiscoveryRequest("self")
		return
	}
	logging.Debug("peer wants file list", logging.String("from", host))
	metrics.RecordDiscoveryRequest("ok")
	r.post(func() { r.push(host, catalogPort) })
}
