package catalog

import (
	"net"
	"strconv"
	"time"

	"github.com/peace-maker/poek/internal/logging"
	"github.com/peace-maker/poek/internal/metrics"
	"github.com/peace-maker/poek/internal/netutil"
)

// pushTimeout bounds the dial and the write of one catalog push.
const pushTimeout = 5 * time.Second

// Push dials the requester's advertised catalog port and writes the
// catalog. Failures are logged and swallowed; a requester that vanished
// between broadcast and push is routine, not an error to propagate.
func Push(host string, port uint16, recs []Record) {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	conn, err := net.DialTimeout("tcp4", addr, pushTimeout)
	if err != nil {
		if netutil.IsRefused(err) {
			logging.Warn("refused connection",
				logging.String("host", host),
				logging.Uint16("port", port))
			metrics.RecordCatalogPush("refused")
		} else {
			logging.Warn("catalog push failed",
				logging.String("host", host),
				logging.Err(err))
			metrics.RecordCatalogPush("error")
		}
		return
	}
	defer conn.Close()

	logging.Debug("sending file list",
		logging.String("host", host),
		logging.Uint16("port", port),
		logging.Int("items", len(recs)))
	conn.SetWriteDeadline(time.Now().Add(pushTimeout))
	if err := WriteCatalog(conn, recs); err != nil {
		logging.Warn("catalog push failed",
			logging.String("host", host),
			logging.Err(err))
		metrics.RecordCatalogPush("error")
		return
	}
	metrics.RecordCatalogPush("success")
}
