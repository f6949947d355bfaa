// Package reactor provides the event loop both roles are built around.
//
// One goroutine (the loop goroutine) executes posted events strictly one
// at a time; all state shared between sources is mutated only there.
// Descriptors are owned by Sources: each attached source gets a pump
// goroutine that blocks on its descriptor and posts events back. All
// callback execution stays single-threaded while the runtime handles
// readiness.
package reactor

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/peace-maker/poek/internal/logging"
)

// idleWakeup bounds how long the loop sleeps when no events arrive.
const idleWakeup = time.Second

// Source is the capability every loop-managed object implements:
// listeners, active transfers, the terminal reader. Serve blocks on the
// underlying descriptor and posts events until its context is canceled
// or the descriptor is exhausted. Close releases the descriptor,
// unblocking Serve; it must tolerate being called more than once.
type Source interface {
	Name() string
	Serve(ctx context.Context) error
	Close() error
}

type attachment struct {
	cancel context.CancelFunc
}

// Loop owns the event queue and the attached sources.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	sources map[Source]*attachment
	closing bool

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New returns an idle loop. Attach sources and timers, then call Run.
func New() *Loop {
	return &Loop{
		sources: make(map[Source]*attachment),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

// Post enqueues fn for execution on the loop goroutine. It never
// blocks and is safe from any goroutine, including loop callbacks.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue = l.queue[1:]
	return fn
}

// exec runs one event. A panicking callback is logged and the loop
// continues; no event may take the process down.
func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("event callback panicked", logging.Any("panic", r))
			for _, line := range splitLines(debug.Stack()) {
				logging.Debug(line)
			}
		}
	}()
	fn()
}

func splitLines(b []byte) []string {
	var lines []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			lines = append(lines, string(b[start:i]))
			start = i + 1
		}
	}
	if start < len(b) {
		lines = append(lines, string(b[start:]))
	}
	return lines
}

// Attach starts the source's pump. The pump's events queue behind
// whatever callback is currently executing, so attachment never takes
// effect inside the attaching callback.
func (l *Loop) Attach(s Source) {
	ctx, cancel := context.WithCancel(context.Background())
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		cancel()
		return
	}
	if _, ok := l.sources[s]; ok {
		l.mu.Unlock()
		cancel()
		return
	}
	l.sources[s] = &attachment{cancel: cancel}
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		err := s.Serve(ctx)
		if err != nil && ctx.Err() == nil {
			logging.Warn("source stopped", logging.String("source", s.Name()), logging.Err(err))
		}
	}()
}

// Detach cancels the source's pump and closes its descriptor,
// withdrawing both read and write interest at once. Detaching a source
// that is not attached is a no-op.
func (l *Loop) Detach(s Source) {
	l.mu.Lock()
	at, ok := l.sources[s]
	if ok {
		delete(l.sources, s)
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	at.cancel()
	if err := s.Close(); err != nil {
		logging.Debug("source close", logging.String("source", s.Name()), logging.Err(err))
	}
}

// Every posts fn on the loop goroutine at the given interval until the
// returned cancel func is called or the loop stops.
func (l *Loop) Every(d time.Duration, fn func()) (cancel func()) {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	var once sync.Once

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Post(fn)
			case <-done:
				return
			case <-l.stop:
				return
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// Run executes events until Stop. Waits between events are bounded so
// the loop wakes at least once per idleWakeup even with nothing queued.
func (l *Loop) Run() error {
	ticker := time.NewTicker(idleWakeup)
	defer ticker.Stop()
	for {
		for fn := l.next(); fn != nil; fn = l.next() {
			l.exec(fn)
		}
		select {
		case <-l.wake:
		case <-ticker.C:
		case <-l.stop:
			for fn := l.next(); fn != nil; fn = l.next() {
				l.exec(fn)
			}
			l.teardown()
			return nil
		}
	}
}

// Stop requests termination. Safe to call from a callback or any other
// goroutine; idempotent.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// teardown detaches every source and waits for all pumps and timers.
func (l *Loop) teardown() {
	l.mu.Lock()
	l.closing = true
	type pair struct {
		src Source
		at  *attachment
	}
	pairs := make([]pair, 0, len(l.sources))
	for s, at := range l.sources {
		pairs = append(pairs, pair{s, at})
	}
	l.sources = make(map[Source]*attachment)
	l.mu.Unlock()

	for _, p := range pairs {
		p.at.cancel()
		if err := p.src.Close(); err != nil {
			logging.Debug("source close", logging.String("source", p.src.Name()), logging.Err(err))
		}
	}
	l.wg.Wait()
}
