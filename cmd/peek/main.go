// Peek - browse and fetch what the network is serving
//
// Broadcasts discovery probes, collects the catalogs peers push back
// and presents them as a selectable list:
// - arrow keys move, space downloads, `a` fetches everything
// - files land in the current directory, directories are unpacked
// - name collisions ask once, declining picks a numbered name
// - `q` quits; with transfers running a second `q` forces it
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/peace-maker/poek/internal/config"
	"github.com/peace-maker/poek/internal/peek"
)

func main() {
	cfg, err := config.LoadPeek(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "peek: %v\n", err)
		os.Exit(2)
	}
	if err := peek.New(cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "peek: %v\n", err)
		os.Exit(1)
	}
}
