// Package share maintains the serve role's registry of served items:
// their normalized wire paths and per-item TCP listeners.
package share

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/peace-maker/poek/internal/catalog"
	"github.com/peace-maker/poek/internal/logging"
	"github.com/peace-maker/poek/internal/netutil"
)

// AcceptFunc runs on the loop goroutine for each connection accepted on
// an item's listener.
type AcceptFunc func(conn net.Conn, item *Item)

// An Item is one served path bound to its own TCP listener. Directory
// items carry a trailing slash in Path, the wire and display marker the
// consume role keys on.
type Item struct {
	Path string
	Port uint16

	ln     net.Listener
	post   func(func())
	accept AcceptFunc
}

// IsDir reports whether the item serves a directory archive.
func (it *Item) IsDir() bool { return strings.HasSuffix(it.Path, "/") }

// FilePath returns the filesystem path backing the item.
func (it *Item) FilePath() string { return strings.TrimSuffix(it.Path, "/") }

func (it *Item) Name() string { return fmt.Sprintf("item %q", it.Path) }

func (it *Item) Close() error { return it.ln.Close() }

// Serve accepts connections until the listener closes, posting each to
// the accept handler.
func (it *Item) Serve(ctx context.Context) error {
	for {
		conn, err := it.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || netutil.IsClosed(err) {
				return nil
			}
			return fmt.Errorf("accept on item %q: %w", it.Path, err)
		}
		it.post(func() { it.accept(conn, it) })
	}
}

// Registry owns all served items. It is confined to the loop goroutine;
// nothing in it is safe for concurrent use.
type Registry struct {
	base   uint16
	post   func(func())
	accept AcceptFunc
	items  []*Item
}

// NewRegistry returns an empty registry assigning ports from base.
func NewRegistry(base uint16, post func(func()), accept AcceptFunc) *Registry {
	return &Registry{base: base, post: post, accept: accept}
}

// Add validates and registers a path. A path that cannot be statted is
// a reported error and no item is created. The item's listener binds on
// the first free TCP port at or above the base; ports freed by removed
// items are reused.
func (r *Registry) Add(path string) (*Item, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}
	wire := strings.TrimRight(path, "/")
	if info.IsDir() {
		wire += "/"
	}

	ln, port, err := netutil.ListenFirstFree("", r.base)
	if err != nil {
		return nil, fmt.Errorf("bind listener for %q: %w", path, err)
	}
	it := &Item{Path: wire, Port: port, ln: ln, post: r.post, accept: r.accept}
	r.items = append(r.items, it)
	logging.Info("serving item", logging.Uint16("port", port), logging.String("path", wire))
	return it, nil
}

// Remove closes an item's listener and withdraws it from the catalog.
func (r *Registry) Remove(it *Item) {
	for i, cur := range r.items {
		if cur == it {
			r.items = append(r.items[:i], r.items[i+1:]...)
			it.ln.Close()
			return
		}
	}
}

// Lookup finds the item backing a filesystem path, nil when none does.
func (r *Registry) Lookup(path string) *Item {
	clean := filepath.Clean(path)
	for _, it := range r.items {
		if filepath.Clean(it.FilePath()) == clean {
			return it
		}
	}
	return nil
}

// Items returns the registered items in registration order.
func (r *Registry) Items() []*Item { return r.items }

// Catalog returns the records announced to requesters, in registration
// order.
func (r *Registry) Catalog() []catalog.Record {
	recs := make([]catalog.Record, 0, len(r.items))
	for _, it := range r.items {
		recs = append(recs, catalog.Record{Port: it.Port, Path: it.Path})
	}
	return recs
}
