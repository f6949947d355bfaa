package transfer

import (
	"sync"
	"testing"
)

// serialQueue stands in for the event loop: posted callbacks run one at
// a time on a single goroutine.
type serialQueue struct {
	ch   chan func()
	done chan struct{}
	once sync.Once
}

func startQueue(t *testing.T) *serialQueue {
	t.Helper()
	q := &serialQueue{ch: make(chan func(), 64), done: make(chan struct{})}
	go func() {
		defer close(q.done)
		for fn := range q.ch {
			fn()
		}
	}()
	t.Cleanup(q.stop)
	return q
}

func (q *serialQueue) post(fn func()) { q.ch <- fn }

func (q *serialQueue) stop() {
	q.once.Do(func() {
		close(q.ch)
		<-q.done
	})
}

type recordingLine struct {
	mu      sync.Mutex
	updates []string
	deleted bool
}

func (l *recordingLine) Update(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, text)
}

func (l *recordingLine) Delete() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deleted = true
}

func (l *recordingLine) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.updates...)
}

func (l *recordingLine) wasDeleted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deleted
}

func recordedLines() (Lines, [3]*recordingLine) {
	p, g, s := &recordingLine{}, &recordingLine{}, &recordingLine{}
	return Lines{Prefix: p, Progress: g, Suffix: s}, [3]*recordingLine{p, g, s}
}
