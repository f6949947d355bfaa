package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/term"
)

// Command is one decoded keyboard action.
type Command int

const (
	CmdNone Command = iota
	CmdRefresh
	CmdUp
	CmdDown
	CmdDownload
	CmdDownloadAll
	CmdQuit
	CmdHelp
	CmdInterrupt
	CmdOther
)

// keyParser decodes raw terminal bytes into commands, swallowing the
// escape sequences for arrows and F1 byte by byte.
type keyParser struct {
	esc []byte
}

// feed consumes one byte. It returns CmdNone while a sequence is still
// incomplete, and the raw byte alongside the command so prompt handling
// can see the actual key.
func (p *keyParser) feed(b byte) (Command, byte) {
	if len(p.esc) > 0 {
		return p.feedEscape(b)
	}
	switch b {
	case 0x03:
		return CmdInterrupt, b
	case 0x1b:
		p.esc = append(p.esc, b)
		return CmdNone, b
	case '\r', '\n', ' ':
		return CmdDownload, b
	case 'r':
		return CmdRefresh, b
	case 'a':
		return CmdDownloadAll, b
	case 'q':
		return CmdQuit, b
	case 'h', '?':
		return CmdHelp, b
	default:
		return CmdOther, b
	}
}

func (p *keyParser) feedEscape(b byte) (Command, byte) {
	if len(p.esc) == 1 {
		if b == '[' || b == 'O' {
			p.esc = append(p.esc, b)
			return CmdNone, b
		}
		p.esc = nil
		return CmdOther, b
	}
	kind := p.esc[1]
	p.esc = nil
	if kind == '[' {
		switch b {
		case 'A':
			return CmdUp, b
		case 'B':
			return CmdDown, b
		}
		return CmdOther, b
	}
	// ESC O introduces the function keys; only F1 is bound.
	if b == 'P' {
		return CmdHelp, b
	}
	return CmdOther, b
}

// KeyReader is the event source for the keyboard. It owns the
// terminal's raw mode for its lifetime.
type KeyReader struct {
	in      *os.File
	post    func(func())
	handle  func(Command, byte)
	restore func()
}

// NewKeyReader switches the terminal to raw mode. Every decoded command
// is posted to the loop together with the raw byte that finished it.
func NewKeyReader(in *os.File, post func(func()), handle func(Command, byte)) (*KeyReader, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("enter raw mode: %w", err)
	}
	return &KeyReader{
		in:      in,
		post:    post,
		handle:  handle,
		restore: func() { term.Restore(fd, state) },
	}, nil
}

// Name identifies the source in loop diagnostics.
func (k *KeyReader) Name() string { return "keys" }

// Serve reads the terminal a byte at a time until the reader is closed.
func (k *KeyReader) Serve(ctx context.Context) error {
	var parser keyParser
	buf := make([]byte, 1)
	for {
		n, err := k.in.Read(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return fmt.Errorf("read keys: %w", err)
		}
		if n == 0 {
			continue
		}
		cmd, key := parser.feed(buf[0])
		if cmd == CmdNone {
			continue
		}
		k.post(func() { k.handle(cmd, key) })
	}
}

// Close restores the terminal and unblocks the pending read.
func (k *KeyReader) Close() error {
	k.restore()
	if err := k.in.SetReadDeadline(time.Now()); err != nil {
		return k.in.Close()
	}
	return nil
}
