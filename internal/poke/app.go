// Package poke wires the serve role: the item registry with its
// per-item listeners, the discovery responder, the optional drop
// directory watcher, metrics exposition, and outbound transfers.
package poke

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peace-maker/poek/internal/catalog"
	"github.com/peace-maker/poek/internal/config"
	"github.com/peace-maker/poek/internal/discovery"
	"github.com/peace-maker/poek/internal/logging"
	"github.com/peace-maker/poek/internal/metrics"
	"github.com/peace-maker/poek/internal/reactor"
	"github.com/peace-maker/poek/internal/share"
	"github.com/peace-maker/poek/internal/transfer"
	"github.com/peace-maker/poek/internal/ui"
)

// App is one serve-role process.
type App struct {
	cfg      config.Poke
	loop     *reactor.Loop
	display  *ui.Display
	registry *share.Registry

	transfers []*transfer.Outbound
}

// New returns an unstarted app.
func New(cfg config.Poke) *App { return &App{cfg: cfg} }

// Run wires everything together and drives the loop until a signal
// stops it.
func (a *App) Run() error {
	a.loop = reactor.New()
	a.display = ui.NewDisplay(os.Stdout)
	if err := logging.Init(logging.Config{
		Level:    a.cfg.Level(),
		Sink:     a.display,
		Colors:   a.display.IsTTY(),
		FilePath: a.cfg.LogFile,
	}); err != nil {
		return err
	}
	defer logging.Sync()

	a.registry = share.NewRegistry(a.cfg.Port, a.loop.Post, a.acceptPeer)
	for _, path := range a.cfg.Paths {
		it, err := a.registry.Add(path)
		if err != nil {
			logging.Error("cannot serve path",
				logging.String("path", path),
				logging.Err(err))
			continue
		}
		a.loop.Attach(it)
	}

	watching := false
	if a.cfg.WatchDir != "" {
		w, err := share.NewWatcher(a.cfg.WatchDir, a.loop.Post, a.watchCreated, a.watchRemoved)
		if err != nil {
			logging.Error("cannot watch directory",
				logging.String("dir", a.cfg.WatchDir),
				logging.Err(err))
		} else {
			a.loop.Attach(w)
			watching = true
		}
	}
	if len(a.registry.Items()) == 0 && !watching {
		return errors.New("nothing to serve")
	}

	resp, err := discovery.NewResponder(a.cfg.Port, a.loop.Post, a.pushCatalog)
	if err != nil {
		return err
	}
	logging.Info("listening", logging.Uint16("port", resp.Port()))
	a.loop.Attach(resp)

	var msrv *http.Server
	if a.cfg.MetricsAddr != "" {
		msrv = serveMetrics(a.cfg.MetricsAddr)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		<-sig
		a.loop.Post(func() {
			logging.Info("interrupted")
			a.loop.Stop()
		})
	}()

	err = a.loop.Run()
	if msrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		msrv.Shutdown(ctx)
		cancel()
	}
	return err
}

// pushCatalog answers one discovery request. The push dials out with
// its own timeouts, so it runs off the loop.
func (a *App) pushCatalog(host string, port uint16) {
	recs := a.registry.Catalog()
	go catalog.Push(host, port, recs)
}

// acceptPeer starts an outbound transfer for a connection accepted on
// an item's listener.
func (a *App) acceptPeer(conn net.Conn, it *share.Item) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	logging.Info("peer wants item",
		logging.String("path", it.Path),
		logging.String("from", host))

	newLines := func() transfer.Lines {
		return transfer.Lines{
			Prefix:   a.display.CreateCell(ui.FormatTransferPrefix(it.Path, host, false), ui.PriorityTransfer),
			Progress: a.display.CreateCell("", ui.PriorityTransfer),
			Suffix:   a.display.CreateCell(ui.TransferSuffix, ui.PriorityTransfer),
		}
	}
	t, err := transfer.NewOutbound(conn, it.Path, newLines, a.loop.Post, a.transferDone)
	if err != nil {
		logging.Warn("could not open item for reading",
			logging.String("path", it.Path),
			logging.Err(err))
		return
	}
	a.transfers = append(a.transfers, t)
	a.loop.Attach(t)
}

func (a *App) transferDone(t *transfer.Outbound) {
	for i, cur := range a.transfers {
		if cur == t {
			a.transfers = append(a.transfers[:i], a.transfers[i+1:]...)
			break
		}
	}
	a.loop.Detach(t)
}

// watchCreated serves a path that appeared in the watched directory.
func (a *App) watchCreated(path string) {
	if a.registry.Lookup(path) != nil {
		return
	}
	it, err := a.registry.Add(path)
	if err != nil {
		logging.Warn("cannot serve new path",
			logging.String("path", path),
			logging.Err(err))
		return
	}
	a.loop.Attach(it)
}

// watchRemoved withdraws a served path that vanished from the watched
// directory.
func (a *App) watchRemoved(path string) {
	it := a.registry.Lookup(path)
	if it == nil {
		return
	}
	logging.Warn("served path disappeared", logging.String("path", it.Path))
	a.loop.Detach(it)
	a.registry.Remove(it)
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warn("metrics server failed", logging.Err(err))
		}
	}()
	logging.Info("metrics exposed", logging.String("addr", addr))
	return srv
}
