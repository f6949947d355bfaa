// Package peek wires the consume role: discovery broadcasting, the
// catalog listener, the resource list with its cursor, keyboard
// dispatch, and inbound transfers.
package peek

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peace-maker/poek/internal/catalog"
	"github.com/peace-maker/poek/internal/config"
	"github.com/peace-maker/poek/internal/discovery"
	"github.com/peace-maker/poek/internal/logging"
	"github.com/peace-maker/poek/internal/netutil"
	"github.com/peace-maker/poek/internal/reactor"
	"github.com/peace-maker/poek/internal/transfer"
	"github.com/peace-maker/poek/internal/ui"
)

// refreshEvery is the rebroadcast interval while browsing.
const refreshEvery = 5 * time.Second

// prompt is one queued yes/no question. Questions are answered in
// arrival order, one on screen at a time.
type prompt struct {
	question string
	answer   func(yes bool)
}

// App is one consume-role process.
type App struct {
	cfg     config.Peek
	loop    *reactor.Loop
	display *ui.Display
	req     *discovery.Requester
	list    *catalog.List
	rows    []*ui.Cell

	transfers  []*transfer.Inbound
	quitCell   *ui.Cell
	promptCell *ui.Cell
	prompts    []prompt
	quitArmed  bool
	runErr     error
}

// New returns an unstarted app.
func New(cfg config.Peek) *App { return &App{cfg: cfg} }

// Run wires everything together and drives the loop until the user
// quits or a connection failure takes the session down.
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

	a.list = catalog.NewList()
	puller, err := catalog.NewPuller(a.loop.Post, a.merge)
	if err != nil {
		return err
	}

	host := a.cfg.Host
	if host == "" {
		host = discovery.BroadcastAddr
	}
	req, err := discovery.NewRequester(host, a.cfg.Port, puller.Port())
	if err != nil {
		puller.Close()
		return err
	}
	a.req = req
	defer req.Close()

	a.quitCell = a.display.CreateCell("", ui.PriorityStatus)
	a.promptCell = a.display.CreateCell("", ui.PriorityStatus)

	a.loop.Attach(puller)

	if reader, err := ui.NewKeyReader(os.Stdin, a.loop.Post, a.handleKey); err != nil {
		logging.Warn("keyboard disabled", logging.Err(err))
	} else {
		a.loop.Attach(reader)
	}

	a.loop.Every(refreshEvery, a.broadcast)
	a.loop.Post(a.broadcast)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		for range sig {
			a.loop.Post(a.interrupt)
		}
	}()

	if err := a.loop.Run(); err != nil {
		return err
	}
	return a.runErr
}

// broadcast sends one discovery request, silently; only an explicit
// refresh is worth a log line.
func (a *App) broadcast() {
	if err := a.req.Broadcast(); err != nil {
		logging.Warn("discovery broadcast failed", logging.Err(err))
	}
}

// merge folds one pushed catalog into the list, creating a display row
// for every resource not seen before. The first resource ever to arrive
// comes in selected.
func (a *App) merge(host string, recs []catalog.Record) {
	for _, rec := range recs {
		res := catalog.Resource{Host: host, Port: rec.Port, Path: rec.Path}
		wasEmpty := a.list.Len() == 0
		if !a.list.Add(res) {
			continue
		}
		cell := a.display.CreateCell(ui.FormatResource(res.Host, res.Port, res.Path, wasEmpty), ui.PriorityList)
		a.rows = append(a.rows, cell)
	}
}

func (a *App) handleKey(cmd ui.Command, key byte) {
	if len(a.prompts) > 0 {
		a.answerPrompt(key)
		return
	}
	if cmd != ui.CmdQuit && cmd != ui.CmdInterrupt && a.quitArmed {
		a.quitArmed = false
		a.quitCell.Update("")
	}
	switch cmd {
	case ui.CmdRefresh:
		logging.Info("requesting files")
		a.broadcast()
	case ui.CmdUp:
		a.moveCursor(-1)
	case ui.CmdDown:
		a.moveCursor(1)
	case ui.CmdDownload:
		if res, ok := a.list.Selected(); ok {
			a.download(res)
		}
	case ui.CmdDownloadAll:
		for _, res := range a.list.All() {
			a.download(res)
		}
	case ui.CmdQuit:
		a.quit()
	case ui.CmdHelp:
		logging.Info(ui.FormatHelp())
	case ui.CmdInterrupt:
		a.interrupt()
	}
}

func (a *App) moveCursor(delta int) {
	old := a.list.SelectedIndex()
	var moved bool
	if delta < 0 {
		moved = a.list.Up()
	} else {
		moved = a.list.Down()
	}
	if !moved {
		return
	}
	a.redrawRow(old)
	a.redrawRow(a.list.SelectedIndex())
}

func (a *App) redrawRow(i int) {
	if i < 0 || i >= len(a.rows) {
		return
	}
	res := a.list.At(i)
	a.rows[i].Update(ui.FormatResource(res.Host, res.Port, res.Path, i == a.list.SelectedIndex()))
}

// download resolves the destination name, asking before overwriting,
// and starts the transfer.
func (a *App) download(res catalog.Resource) {
	name := res.Base()
	if _, err := os.Stat(name); err != nil {
		a.start(res, name)
		return
	}
	a.ask(fmt.Sprintf("File %q already exists, overwrite?", name), func(yes bool) {
		if !yes {
			name = transfer.NextFreeName(name, func(n string) bool {
				_, err := os.Stat(n)
				return err == nil
			})
		}
		a.start(res, name)
	})
}

func (a *App) start(res catalog.Resource, dest string) {
	display := dest
	if res.IsDir() {
		display += "/"
	}
	newLines := func() transfer.Lines {
		return transfer.Lines{
			Prefix:   a.display.CreateCell(ui.FormatTransferPrefix(display, res.Host, true), ui.PriorityTransfer),
			Progress: a.display.CreateCell("", ui.PriorityTransfer),
			Suffix:   a.display.CreateCell(ui.TransferSuffix, ui.PriorityTransfer),
		}
	}
	t, err := transfer.NewInbound(res, dest, newLines, a.loop.Post, a.transferDone)
	if err != nil {
		switch {
		case transfer.IsDestError(err):
			logging.Error("could not open for writing",
				logging.String("dest", dest),
				logging.Err(err))
		case netutil.IsRefused(err):
			logging.Warn("refused connection",
				logging.String("host", res.Host),
				logging.Uint16("port", res.Port))
		default:
			logging.Error("cannot connect",
				logging.String("host", res.Host),
				logging.Uint16("port", res.Port),
				logging.Err(err))
			a.fail(err)
		}
		return
	}
	a.transfers = append(a.transfers, t)
	a.loop.Attach(t)
}

func (a *App) transferDone(t *transfer.Inbound) {
	for i, cur := range a.transfers {
		if cur == t {
			a.transfers = append(a.transfers[:i], a.transfers[i+1:]...)
			break
		}
	}
	a.loop.Detach(t)
}

// quit arms the confirmation when transfers are active; a second q in a
// row forces the exit.
func (a *App) quit() {
	if len(a.transfers) > 0 && !a.quitArmed {
		a.quitCell.Update(ui.FormatQuitWarning())
		a.quitArmed = true
		return
	}
	a.shutdown()
}

// interrupt cancels the newest transfer; with none running it ends the
// session.
func (a *App) interrupt() {
	if len(a.transfers) > 0 {
		a.transfers[len(a.transfers)-1].Cancel()
		return
	}
	a.shutdown()
	logging.Info("interrupted")
}

// shutdown leaves the final resource list in the scrollback with no
// selection marked, then stops the loop. Teardown closes whatever is
// still attached, active transfers included.
func (a *App) shutdown() {
	a.quitCell.Delete()
	a.promptCell.Delete()
	for i := range a.rows {
		res := a.list.At(i)
		a.rows[i].Update(ui.FormatResource(res.Host, res.Port, res.Path, false))
	}
	a.loop.Stop()
}

func (a *App) fail(err error) {
	a.runErr = err
	a.quitCell.Delete()
	a.promptCell.Delete()
	a.loop.Stop()
}

// ask queues a yes/no question. Only the head of the queue is on
// screen; answering it reveals the next.
func (a *App) ask(question string, answer func(yes bool)) {
	a.prompts = append(a.prompts, prompt{question: question, answer: answer})
	if len(a.prompts) == 1 {
		a.promptCell.Update(ui.FormatPrompt(question))
	}
}

func (a *App) answerPrompt(key byte) {
	var yes bool
	switch key {
	case 'y', 'Y':
		yes = true
	case 'n', 'N', '\r', '\n', 0x03:
		yes = false
	default:
		return
	}
	p := a.prompts[0]
	a.prompts = a.prompts[1:]
	if len(a.prompts) > 0 {
		a.promptCell.Update(ui.FormatPrompt(a.prompts[0].question))
	} else {
		a.promptCell.Update("")
	}
	p.answer(yes)
}
