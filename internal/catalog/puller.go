package catalog

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/peace-maker/poek/internal/logging"
	"github.com/peace-maker/poek/internal/metrics"
	"github.com/peace-maker/poek/internal/netutil"
)

// pullTimeout bounds how long one pushed catalog may take to arrive.
const pullTimeout = 5 * time.Second

// SinkFunc receives the decoded records of one pushed catalog on the
// loop goroutine, tagged with the pusher's address.
type SinkFunc func(host string, recs []Record)

// Puller accepts catalog pushes on an ephemeral TCP listener.
type Puller struct {
	ln   net.Listener
	port uint16
	post func(func())
	sink SinkFunc
}

// NewPuller binds the catalog listener on an ephemeral port.
func NewPuller(post func(func()), sink SinkFunc) (*Puller, error) {
	ln, err := net.Listen("tcp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("bind catalog listener: %w", err)
	}
	return &Puller{
		ln:   ln,
		port: uint16(ln.Addr().(*net.TCPAddr).Port),
		post: post,
		sink: sink,
	}, nil
}

// Port returns the bound catalog port, advertised in discovery requests.
func (p *Puller) Port() uint16 { return p.port }

func (p *Puller) Name() string { return "catalog" }

func (p *Puller) Close() error { return p.ln.Close() }

// Serve accepts pushes until the listener closes. Each push is decoded
// on its own goroutine under a deadline, then posted to the sink.
func (p *Puller) Serve(ctx context.Context) error {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || netutil.IsClosed(err) {
				return nil
			}
			return fmt.Errorf("accept catalog push: %w", err)
		}
		go p.pull(conn)
	}
}

func (p *Puller) pull(conn net.Conn) {
	defer conn.Close()

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	logging.Debug("receiving file list", logging.String("from", host))

	conn.SetReadDeadline(time.Now().Add(pullTimeout))
	recs, err := ReadCatalog(conn)
	if err != nil {
		logging.Warn("malformed catalog",
			logging.String("from", host),
			logging.Err(err))
		metrics.RecordCatalogPull(false)
		return
	}
	metrics.RecordCatalogPull(true)
	p.post(func() { p.sink(host, recs) })
}
