package ui

import "testing"

func TestKeyParser(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []Command
	}{
		{"refresh", []byte("r"), []Command{CmdRefresh}},
		{"arrow up", []byte{0x1b, '[', 'A'}, []Command{CmdUp}},
		{"arrow down", []byte{0x1b, '[', 'B'}, []Command{CmdDown}},
		{"space downloads", []byte(" "), []Command{CmdDownload}},
		{"enter downloads", []byte("\r"), []Command{CmdDownload}},
		{"get all", []byte("a"), []Command{CmdDownloadAll}},
		{"quit", []byte("q"), []Command{CmdQuit}},
		{"help letter", []byte("h"), []Command{CmdHelp}},
		{"help question mark", []byte("?"), []Command{CmdHelp}},
		{"f1", []byte{0x1b, 'O', 'P'}, []Command{CmdHelp}},
		{"interrupt", []byte{0x03}, []Command{CmdInterrupt}},
		{"unknown rune", []byte("x"), []Command{CmdOther}},
		{"stray escape then key", []byte{0x1b, 'x'}, []Command{CmdOther}},
		{"unknown csi final", []byte{0x1b, '[', 'C'}, []Command{CmdOther}},
		{"unknown function key", []byte{0x1b, 'O', 'Q'}, []Command{CmdOther}},
		{"mixed stream", []byte("r\x1b[Aq"), []Command{CmdRefresh, CmdUp, CmdQuit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p keyParser
			var got []Command
			for _, b := range tt.input {
				if cmd, _ := p.feed(b); cmd != CmdNone {
					got = append(got, cmd)
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("commands = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("command %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestKeyParserReportsRawByte(t *testing.T) {
	var p keyParser
	cmd, key := p.feed('y')
	if cmd != CmdOther || key != 'y' {
		t.Errorf("feed('y') = (%v, %q), want (CmdOther, 'y')", cmd, key)
	}
	cmd, key = p.feed('\r')
	if cmd != CmdDownload || key != '\r' {
		t.Errorf("feed(CR) = (%v, %q), want (CmdDownload, CR)", cmd, key)
	}
}
