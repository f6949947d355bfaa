package share

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/peace-maker/poek/internal/logging"
)

// Watcher watches one directory and reports paths created in or removed
// from it, so the serve role can announce everything dropped there.
type Watcher struct {
	fs       *fsnotify.Watcher
	post     func(func())
	onCreate func(path string)
	onRemove func(path string)
}

// NewWatcher starts watching dir. The callbacks run on the loop
// goroutine.
func NewWatcher(dir string, post func(func()), onCreate, onRemove func(string)) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat watch dir %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %q is not a directory", dir)
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch %q: %w", dir, err)
	}
	logging.Info("watching directory", logging.String("path", dir))
	return &Watcher{fs: fs, post: post, onCreate: onCreate, onRemove: onRemove}, nil
}

func (w *Watcher) Name() string { return "watcher" }

func (w *Watcher) Close() error { return w.fs.Close() }

// Serve delivers watch events until the watcher closes.
func (w *Watcher) Serve(ctx context.Context) error {
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logging.Warn("watcher error", logging.Err(err))
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create):
		path := ev.Name
		w.post(func() { w.onCreate(path) })
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		path := ev.Name
		w.post(func() { w.onRemove(path) })
	default:
		logging.Debug("watch event",
			logging.String("path", ev.Name),
			logging.String("op", ev.Op.String()))
	}
}
