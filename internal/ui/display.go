// Package ui owns the terminal: the floating cell display pinned below
// the log scrollback, lipgloss styling for both roles, and the raw-mode
// key reader that turns keystrokes into commands.
package ui

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Display priorities. Cells render in ascending priority order, top to
// bottom, creation order breaking ties.
const (
	PriorityTransfer = 5
	PriorityList     = 10
	PriorityStatus   = 15
)

// A Cell is a handle to one piece of floating text. Cells are
// concatenated in priority order; a cell ending in a newline closes a
// display row. Updating or deleting a cell repaints the region.
type Cell struct {
	d        *Display
	priority int
	seq      int
	text     string
}

// Update replaces the cell's text.
func (c *Cell) Update(text string) {
	if c.d == nil {
		return
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.text = text
	c.d.repaintLocked()
}

// Delete removes the cell from the display.
func (c *Cell) Delete() {
	if c.d == nil {
		return
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	for i, other := range c.d.cells {
		if other == c {
			c.d.cells = append(c.d.cells[:i], c.d.cells[i+1:]...)
			break
		}
	}
	c.d.repaintLocked()
}

// Display keeps a block of floating cells pinned to the bottom of the
// terminal and routes log output into the scrollback above it. It also
// serves as the logging sink, so log lines and repaints interleave
// without tearing. Without a terminal the cells are suppressed and log
// output passes straight through.
type Display struct {
	mu       sync.Mutex
	out      io.Writer
	fd       int // terminal fd for size queries, -1 when unknown
	tty      bool
	cells    []*Cell
	seq      int
	rendered int // rows currently drawn
}

// NewDisplay builds a display over out, detecting whether it is a
// terminal.
func NewDisplay(out *os.File) *Display {
	fd := int(out.Fd())
	return &Display{out: out, fd: fd, tty: term.IsTerminal(fd)}
}

// IsTTY reports whether the display drives a real terminal.
func (d *Display) IsTTY() bool { return d.tty }

// CreateCell adds a floating cell with the given initial text.
func (d *Display) CreateCell(text string, priority int) *Cell {
	if !d.tty {
		return &Cell{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c := &Cell{d: d, priority: priority, seq: d.seq, text: text}
	d.seq++
	i := 0
	for i < len(d.cells) && !less(c, d.cells[i]) {
		i++
	}
	d.cells = append(d.cells, nil)
	copy(d.cells[i+1:], d.cells[i:])
	d.cells[i] = c
	d.repaintLocked()
	return c
}

func less(a, b *Cell) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}

// Write emits one chunk of log output above the floating block. The
// terminal runs in raw mode while keys are read, so newlines are
// written as CRLF.
func (d *Display) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.tty {
		return d.out.Write(p)
	}
	var b strings.Builder
	d.clearSeq(&b)
	b.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n")))
	d.drawSeq(&b)
	io.WriteString(d.out, b.String())
	return len(p), nil
}

func (d *Display) repaintLocked() {
	var b strings.Builder
	d.clearSeq(&b)
	d.drawSeq(&b)
	io.WriteString(d.out, b.String())
}

func (d *Display) clearSeq(b *strings.Builder) {
	if d.rendered == 0 {
		return
	}
	fmt.Fprintf(b, "\r\x1b[%dA\x1b[J", d.rendered)
	d.rendered = 0
}

func (d *Display) drawSeq(b *strings.Builder) {
	rows := d.rows()
	if len(rows) == 0 {
		return
	}
	width := d.width()
	for _, row := range rows {
		if width > 1 {
			row = lipgloss.NewStyle().MaxWidth(width - 1).Render(row)
		}
		b.WriteString(row)
		b.WriteString("\x1b[K\r\n")
	}
	d.rendered = len(rows)
}

// rows concatenates all cell text and splits it into display rows. A
// trailing newline closes the final row rather than opening an empty
// one.
func (d *Display) rows() []string {
	var b strings.Builder
	for _, c := range d.cells {
		b.WriteString(c.text)
	}
	text := b.String()
	if text == "" {
		return nil
	}
	rows := strings.Split(text, "\n")
	if rows[len(rows)-1] == "" {
		rows = rows[:len(rows)-1]
	}
	return rows
}

func (d *Display) width() int {
	if d.fd < 0 {
		return 0
	}
	w, _, err := term.GetSize(d.fd)
	if err != nil {
		return 0
	}
	return w
}
