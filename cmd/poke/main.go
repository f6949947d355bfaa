// Poke - serve files on the local network
//
// Announces the given paths to every peer that broadcasts a discovery
// probe and streams them on demand:
// - answers UDP probes with the catalog port
// - pushes the served catalog to peers that ask for it
// - streams files raw and directories as tar archives
// - optionally watches a directory and serves whatever appears in it
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/peace-maker/poek/internal/config"
	"github.com/peace-maker/poek/internal/poke"
)

func main() {
	cfg, err := config.LoadPoke(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "poke: %v\n", err)
		os.Exit(2)
	}
	if err := poke.New(cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "poke: %v\n", err)
		os.Exit(1)
	}
}
