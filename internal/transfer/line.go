package transfer

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Line is a handle to one floating display line. Transfers drive their
// lines from the pump goroutine; implementations must be safe for that.
type Line interface {
	Update(text string)
	Delete()
}

// Lines are the three display lines of one active transfer: a fixed
// prefix, the live progress cell, and the closing suffix.
type Lines struct {
	Prefix   Line
	Progress Line
	Suffix   Line
}

// LinesFunc materializes the display lines for a transfer. It is called
// once, only after the transfer's endpoints are established.
type LinesFunc func() Lines

func (l Lines) delete() {
	l.Prefix.Delete()
	l.Progress.Delete()
	l.Suffix.Delete()
}

const (
	chunkSize   = 4096
	reportEvery = 100 * time.Millisecond
)

// meter counts transferred bytes and refreshes the progress line at the
// reporting cadence. It belongs to a single pump goroutine.
type meter struct {
	n     int64
	start time.Time
	last  time.Time
	line  Line
}

func newMeter(line Line) *meter {
	return &meter{start: time.Now(), line: line}
}

func (m *meter) count(n int) {
	m.n += int64(n)
	now := time.Now()
	if now.Sub(m.last) < reportEvery {
		return
	}
	m.last = now
	m.line.Update(fmt.Sprintf("%s, %s/s", humanize.Bytes(uint64(m.n)), humanize.Bytes(uint64(m.rate(now)))))
}

func (m *meter) rate(now time.Time) float64 {
	elapsed := now.Sub(m.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.n) / elapsed
}
