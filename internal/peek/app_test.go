package peek

import (
	"bytes"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/peace-maker/poek/internal/catalog"
	"github.com/peace-maker/poek/internal/config"
	"github.com/peace-maker/poek/internal/logging"
	"github.com/peace-maker/poek/internal/reactor"
	"github.com/peace-maker/poek/internal/ui"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Level: "error", Sink: io.Discard})
	os.Exit(m.Run())
}

func nullDisplay(t *testing.T) *ui.Display {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	t.Cleanup(func() { w.Close(); r.Close() })
	go io.Copy(io.Discard, r)
	return ui.NewDisplay(w)
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a := &App{
		cfg:     config.Peek{Port: config.DefaultPort},
		loop:    reactor.New(),
		display: nullDisplay(t),
		list:    catalog.NewList(),
	}
	a.quitCell = a.display.CreateCell("", ui.PriorityStatus)
	a.promptCell = a.display.CreateCell("", ui.PriorityStatus)
	return a
}

// startTestApp runs the loop and returns a channel that yields Run's
// result once the loop stops.
func startTestApp(t *testing.T) (*App, <-chan error) {
	t.Helper()
	a := newTestApp(t)
	done := make(chan error, 1)
	go func() { done <- a.loop.Run() }()
	t.Cleanup(a.loop.Stop)
	return a, done
}

// holdingPeer serves some bytes and then keeps the connection open
// until the test ends.
func holdingPeer(t *testing.T, payload []byte) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	hold := make(chan struct{})
	t.Cleanup(func() { close(hold); ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write(payload)
		<-hold
		conn.Close()
	}()
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

// oneShotPeer serves the payload and closes.
func oneShotPeer(t *testing.T, payload []byte) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write(payload)
		conn.Close()
	}()
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

func transferCount(a *App) int {
	ch := make(chan int, 1)
	a.loop.Post(func() { ch <- len(a.transfers) })
	return <-ch
}

func waitTransferCount(t *testing.T, a *App, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if transferCount(a) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("transfer count never reached %d", want)
}

func TestMergeDedupsAndSelectsFirst(t *testing.T) {
	a := newTestApp(t)

	recs := []catalog.Record{
		{Port: 1337, Path: "/srv/a.txt"},
		{Port: 1338, Path: "/srv/b/"},
	}
	a.merge("10.0.0.5", recs)
	a.merge("10.0.0.5", recs)
	a.merge("10.0.0.6", recs[:1])

	if got := a.list.Len(); got != 3 {
		t.Errorf("list length = %d, want 3 distinct resources", got)
	}
	if got := len(a.rows); got != 3 {
		t.Errorf("rows = %d, want 3", got)
	}
	if got := a.list.SelectedIndex(); got != 0 {
		t.Errorf("selected index = %d, want 0", got)
	}
}

func TestCursorMovesClampAtEnds(t *testing.T) {
	a := newTestApp(t)
	a.merge("10.0.0.5", []catalog.Record{
		{Port: 1, Path: "/a"},
		{Port: 2, Path: "/b"},
	})

	a.moveCursor(-1)
	if got := a.list.SelectedIndex(); got != 0 {
		t.Errorf("selected after up at top = %d, want 0", got)
	}
	a.moveCursor(1)
	if got := a.list.SelectedIndex(); got != 1 {
		t.Errorf("selected after down = %d, want 1", got)
	}
	a.moveCursor(1)
	if got := a.list.SelectedIndex(); got != 1 {
		t.Errorf("selected after down at bottom = %d, want 1", got)
	}
}

func TestPromptQueueAnswersInOrder(t *testing.T) {
	a := newTestApp(t)

	var answers []bool
	a.ask("first?", func(yes bool) { answers = append(answers, yes) })
	a.ask("second?", func(yes bool) { answers = append(answers, yes) })

	// Commands do not dispatch while a prompt is pending; 'q' is just a
	// rejected answer key.
	a.handleKey(ui.CmdQuit, 'q')
	if len(answers) != 0 {
		t.Fatalf("prompt answered by an unrelated key")
	}

	a.handleKey(ui.CmdOther, 'y')
	a.handleKey(ui.CmdDownload, '\r')
	if len(answers) != 2 || answers[0] != true || answers[1] != false {
		t.Errorf("answers = %v, want [true false]", answers)
	}
	if len(a.prompts) != 0 {
		t.Errorf("prompts left = %d, want 0", len(a.prompts))
	}
}

func TestQuitArmsAndOtherKeysDisarm(t *testing.T) {
	a := newTestApp(t)
	a.transfers = append(a.transfers, nil)

	a.handleKey(ui.CmdQuit, 'q')
	if !a.quitArmed {
		t.Fatal("quit not armed with a transfer active")
	}
	a.handleKey(ui.CmdOther, 'x')
	if a.quitArmed {
		t.Error("unrelated key did not disarm quit")
	}
}

func TestSecondQuitForcesExit(t *testing.T) {
	a, done := startTestApp(t)
	a.loop.Post(func() {
		a.transfers = append(a.transfers, nil)
		a.handleKey(ui.CmdQuit, 'q')
		a.handleKey(ui.CmdQuit, 'q')
	})
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("second q did not stop the loop")
	}
}

func TestDownloadOverwritePrompt(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.WriteFile("report.txt", []byte("old"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	payload := []byte("new data")
	a, _ := startTestApp(t)

	t.Run("declined numbers the name", func(t *testing.T) {
		port := oneShotPeer(t, payload)
		res := catalog.Resource{Host: "127.0.0.1", Port: port, Path: "/srv/report.txt"}
		a.loop.Post(func() { a.download(res) })
		waitPromptCount(t, a, 1)

		a.loop.Post(func() { a.handleKey(ui.CmdOther, 'n') })
		waitFileContent(t, "report.1.txt", payload)
		if got, _ := os.ReadFile("report.txt"); string(got) != "old" {
			t.Errorf("report.txt = %q, want the existing content untouched", got)
		}
	})

	t.Run("accepted overwrites in place", func(t *testing.T) {
		port := oneShotPeer(t, payload)
		res := catalog.Resource{Host: "127.0.0.1", Port: port, Path: "/also/report.txt"}
		a.loop.Post(func() { a.download(res) })
		waitPromptCount(t, a, 1)

		a.loop.Post(func() { a.handleKey(ui.CmdOther, 'y') })
		waitFileContent(t, "report.txt", payload)
	})
}

func waitPromptCount(t *testing.T, a *App, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		ch := make(chan int, 1)
		a.loop.Post(func() { ch <- len(a.prompts) })
		if <-ch == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("prompt count never reached %d", want)
}

func waitFileContent(t *testing.T, path string, want []byte) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got, err := os.ReadFile(path); err == nil && bytes.Equal(got, want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	got, err := os.ReadFile(path)
	t.Fatalf("%s = %q (err %v), want %q", path, got, err, want)
}

func TestDownloadWithoutCollisionSkipsPrompt(t *testing.T) {
	t.Chdir(t.TempDir())
	payload := []byte("fresh")
	a, _ := startTestApp(t)

	port := oneShotPeer(t, payload)
	res := catalog.Resource{Host: "127.0.0.1", Port: port, Path: "/srv/fresh.bin"}
	a.loop.Post(func() { a.download(res) })

	waitFileContent(t, "fresh.bin", payload)
	ch := make(chan int, 1)
	a.loop.Post(func() { ch <- len(a.prompts) })
	if n := <-ch; n != 0 {
		t.Errorf("prompts = %d, want 0 without a collision", n)
	}
}

func TestInterruptCancelsNewestFirst(t *testing.T) {
	t.Chdir(t.TempDir())
	a, done := startTestApp(t)

	portOne := holdingPeer(t, []byte("one"))
	portTwo := holdingPeer(t, []byte("two"))
	resOne := catalog.Resource{Host: "127.0.0.1", Port: portOne, Path: "/srv/one.bin"}
	resTwo := catalog.Resource{Host: "127.0.0.1", Port: portTwo, Path: "/srv/two.bin"}

	a.loop.Post(func() { a.download(resOne) })
	waitTransferCount(t, a, 1)
	a.loop.Post(func() { a.download(resTwo) })
	waitTransferCount(t, a, 2)

	a.loop.Post(a.interrupt)
	waitTransferCount(t, a, 1)

	ch := make(chan string, 1)
	a.loop.Post(func() { ch <- a.transfers[0].Resource().Path })
	if got := <-ch; got != "/srv/one.bin" {
		t.Errorf("surviving transfer = %q, want the oldest one", got)
	}

	a.loop.Post(a.interrupt)
	waitTransferCount(t, a, 0)

	a.loop.Post(a.interrupt)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("interrupt with no transfers did not stop the loop")
	}
}

func TestDownloadRefusedPeerKeepsRunning(t *testing.T) {
	t.Chdir(t.TempDir())
	a, done := startTestApp(t)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	ln.Close()

	res := catalog.Resource{Host: "127.0.0.1", Port: port, Path: "/srv/gone.txt"}
	a.loop.Post(func() { a.download(res) })
	waitTransferCount(t, a, 0)

	select {
	case <-done:
		t.Fatal("refused connection stopped the session")
	case <-time.After(200 * time.Millisecond):
	}
	ch := make(chan error, 1)
	a.loop.Post(func() { ch <- a.runErr })
	if err := <-ch; err != nil {
		t.Errorf("runErr = %v, want nil after a refused peer", err)
	}
}
