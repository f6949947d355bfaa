package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/peace-maker/poek/internal/catalog"
	"github.com/peace-maker/poek/internal/logging"
	"github.com/peace-maker/poek/internal/metrics"
	"github.com/peace-maker/poek/internal/netutil"
)

const dialTimeout = 5 * time.Second

// DestError reports a failure preparing the local destination. The
// remote end was never contacted.
type DestError struct {
	Err error
}

func (e *DestError) Error() string { return e.Err.Error() }
func (e *DestError) Unwrap() error { return e.Err }

// IsDestError tells destination failures apart from dial failures.
func IsDestError(err error) bool {
	var de *DestError
	return errors.As(err, &de)
}

// Inbound pulls one discovered resource from its peer. Directories are
// received into a spool and unpacked into the working directory once
// the stream ends; files are written straight to their destination.
type Inbound struct {
	id      string
	res     catalog.Resource
	dest    string
	display string
	conn    net.Conn
	store   io.WriteCloser
	spool   *Spool
	lines   Lines
	meter   *meter
	post    func(func())
	onDone  func(*Inbound)

	start     time.Time
	closeOnce sync.Once
	finished  bool
}

// NewInbound opens the destination under dest, dials the resource, and
// returns the running transfer. A *DestError means the destination
// could not be prepared; any other error came from the dial, with a
// refused connection distinguishable through netutil.IsRefused.
func NewInbound(res catalog.Resource, dest string, newLines LinesFunc, post func(func()), onDone func(*Inbound)) (*Inbound, error) {
	var (
		store   io.WriteCloser
		spool   *Spool
		display = dest
	)
	if res.IsDir() {
		sp, err := NewInboundSpool()
		if err != nil {
			return nil, &DestError{fmt.Errorf("spool for %q: %w", dest, err)}
		}
		spool = sp
		store = sp
		display += "/"
	} else {
		f, err := os.Create(dest)
		if err != nil {
			return nil, &DestError{err}
		}
		store = f
	}

	conn, err := net.DialTimeout("tcp4", res.Addr(), dialTimeout)
	if err != nil {
		if spool != nil {
			spool.Close()
		} else {
			store.Close()
		}
		return nil, err
	}

	t := &Inbound{
		id:      uuid.New().String()[:8],
		res:     res,
		dest:    dest,
		display: display,
		conn:    conn,
		store:   store,
		spool:   spool,
		post:    post,
		onDone:  onDone,
		start:   time.Now(),
	}
	t.lines = newLines()
	t.meter = newMeter(t.lines.Progress)
	metrics.TransferStarted(metrics.DirectionIn)
	logging.Debug("transfer started",
		logging.String("id", t.id),
		logging.String("path", res.Path),
		logging.String("from", res.Host),
		logging.String("dest", display),
	)
	return t, nil
}

// Name identifies the transfer in loop diagnostics.
func (t *Inbound) Name() string { return "recv " + t.id }

// Resource is the catalog entry this transfer consumes.
func (t *Inbound) Resource() catalog.Resource { return t.res }

// Serve pumps the stream into the backing store until the peer closes
// it. End states are posted to the loop.
func (t *Inbound) Serve(ctx context.Context) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			if _, werr := t.store.Write(buf[:n]); werr != nil {
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
			if netutil.IsReset(err) {
				t.post(func() { t.finish(statusReset, nil) })
				return nil
			}
			t.post(func() { t.finish(statusError, err) })
			return nil
		}
	}
}

// Close releases the connection, and the backing store when the
// transfer never reached an end state. A spool closed here is removed
// with nothing unpacked.
func (t *Inbound) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
		if !t.finished {
			t.store.Close()
		}
	})
	return err
}

// Cancel aborts a receiving transfer: the socket drops, the spool is
// discarded unopened, and a partially written file stays where it is.
func (t *Inbound) Cancel() {
	if t.finished {
		return
	}
	t.finish(statusCanceled, nil)
}

// finish runs on the loop goroutine exactly once. Order matters: the
// socket goes first, then the store is finalized or discarded, then the
// owner takes the transfer back, and the display lines retire last.
func (t *Inbound) finish(status string, cause error) {
	if t.finished {
		return
	}
	t.finished = true

	t.closeOnce.Do(func() { t.conn.Close() })

	var unpackErr error
	if t.spool != nil {
		if status == statusCompleted {
			unpackErr = t.spool.Unpack(".")
		}
		t.spool.Close()
	} else {
		if err := t.store.Close(); err != nil && status == statusCompleted {
			unpackErr = err
		}
	}
	t.onDone(t)
	t.lines.delete()

	elapsed := time.Since(t.start)
	if status == statusCompleted && unpackErr != nil {
		status = statusError
		cause = unpackErr
	}
	switch status {
	case statusCompleted:
		logging.Info("transfer completed",
			logging.String("name", t.display),
			logging.String("from", t.res.Host),
			logging.String("size", humanize.Bytes(uint64(t.meter.n))),
			logging.Duration("elapsed", elapsed),
		)
	case statusCanceled:
		logging.Warn("transfer canceled",
			logging.String("path", t.res.Path),
			logging.String("from", t.res.Host),
		)
	case statusReset:
		logging.Warn("connection reset",
			logging.String("path", t.res.Path),
			logging.String("from", t.res.Host),
		)
	default:
		logging.Warn("transfer failed",
			logging.String("path", t.res.Path),
			logging.String("from", t.res.Host),
			logging.Err(cause),
		)
	}
	metrics.TransferFinished(metrics.DirectionIn, status, t.meter.n, elapsed)
}

func (t *Inbound) bytes() int64 { return t.meter.n }
