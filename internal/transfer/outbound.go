package transfer

import (
	"context"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/peace-maker/poek/internal/logging"
	"github.com/peace-maker/poek/internal/metrics"
	"github.com/peace-maker/poek/internal/netutil"
)

const (
	statusCompleted = "completed"
	statusReset     = "reset"
	statusCanceled  = "canceled"
	statusError     = "error"
)

// Outbound streams one served item to one peer. It runs as an event
// source; the pump goroutine moves bytes and posts the final state
// transition back to the loop.
type Outbound struct {
	id     string
	path   string
	remote string
	conn   net.Conn
	src    io.ReadCloser
	lines  Lines
	meter  *meter
	post   func(func())
	onDone func(*Outbound)

	start     time.Time
	closeOnce sync.Once
	finished  bool
}

// NewOutbound opens the item behind path and takes ownership of conn.
// Directories are spooled into a tar archive before the first byte is
// written. On open failure the connection is closed and no transfer
// exists.
func NewOutbound(conn net.Conn, path string, newLines LinesFunc, post func(func()), onDone func(*Outbound)) (*Outbound, error) {
	var src io.ReadCloser
	if strings.HasSuffix(path, "/") {
		sp, err := Pack(strings.TrimSuffix(path, "/"))
		if err != nil {
			conn.Close()
			return nil, err
		}
		src = sp
	} else {
		f, err := os.Open(path)
		if err != nil {
			conn.Close()
			return nil, err
		}
		src = f
	}

	t := &Outbound{
		id:     uuid.New().String()[:8],
		path:   path,
		remote: remoteHost(conn),
		conn:   conn,
		src:    src,
		lines:  newLines(),
		post:   post,
		onDone: onDone,
		start:  time.Now(),
	}
	t.meter = newMeter(t.lines.Progress)
	metrics.TransferStarted(metrics.DirectionOut)
	logging.Debug("transfer started",
		logging.String("id", t.id),
		logging.String("path", t.path),
		logging.String("to", t.remote),
	)
	return t, nil
}

// Name identifies the transfer in loop diagnostics.
func (t *Outbound) Name() string { return "send " + t.id }

// Path is the wire path of the item being served.
func (t *Outbound) Path() string { return t.path }

// Remote is the consuming peer's host.
func (t *Outbound) Remote() string { return t.remote }

// Serve pumps the item into the connection until it is drained or the
// peer goes away. End states are posted to the loop; Serve itself only
// reports pump-level failures.
func (t *Outbound) Serve(ctx context.Context) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := t.src.Read(buf)
		if n > 0 {
			if _, werr := t.conn.Write(buf[:n]); werr != nil {
				if ctx.Err() != nil || netutil.IsClosed(werr) {
					return nil
				}
				if netutil.IsReset(werr) {
					t.post(func() { t.finish(statusReset, nil) })
					return nil
				}
				t.post(func() { t.finish(statusError, werr) })
				return nil
			}
			t.meter.count(n)
		}
		if err != nil {
			if err == io.EOF {
				t.post(func() { t.finish(statusCompleted, nil) })
				return nil
			}
			if ctx.Err() != nil || netutil.IsClosed(err) {
				return nil
			}
			t.post(func() { t.finish(statusError, err) })
			return nil
		}
	}
}

// Close releases the connection. The spool or file handle is released
// by finish; when the loop tears the source down before the transfer
// ends, the source is closed here as well.
func (t *Outbound) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
		if !t.finished {
			t.src.Close()
		}
	})
	return err
}

// finish runs on the loop goroutine exactly once. It releases the
// socket, then the backing store, then hands the transfer back to its
// owner, and finally retires the display lines.
func (t *Outbound) finish(status string, cause error) {
	if t.finished {
		return
	}
	t.finished = true

	t.closeOnce.Do(func() { t.conn.Close() })
	t.src.Close()
	t.onDone(t)
	t.lines.delete()

	elapsed := time.Since(t.start)
	switch status {
	case statusCompleted:
		logging.Info("transfer completed",
			logging.String("path", t.path),
			logging.String("to", t.remote),
			logging.String("size", humanize.Bytes(uint64(t.meter.n))),
			logging.Duration("elapsed", elapsed),
		)
	case statusReset:
		logging.Warn("peer closed connection",
			logging.String("path", t.path),
			logging.String("to", t.remote),
		)
	default:
		logging.Warn("transfer failed",
			logging.String("path", t.path),
			logging.String("to", t.remote),
			logging.Err(cause),
		)
	}
	metrics.TransferFinished(metrics.DirectionOut, status, t.meter.n, elapsed)
}

func remoteHost(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func (t *Outbound) bytes() int64 { return t.meter.n }
