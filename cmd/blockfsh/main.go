// Command blockfsh is an interactive shell over one in-memory volume,
// exercising the inode engine end to end the way a real disk-image tool in
// this space would offer a shell over its on-disk format.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/inodefs/inodefs/config"
	"github.com/inodefs/inodefs/handle"
	"github.com/inodefs/inodefs/tree"
	"github.com/inodefs/inodefs/volume"
)

func main() {
	fs := pflag.NewFlagSet("blockfsh", pflag.ContinueOnError)
	config.BindFlags(fs)
	verbose := fs.Bool("verbose", false, "emit debug-level allocation tracing")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "blockfsh: %v\n", err)
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	log := logrus.NewEntry(logger)

	vol, err := volume.New(cfg.TotalBlocks, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "blockfsh: %v\n", err)
		os.Exit(1)
	}
	tr, err := tree.New(vol, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "blockfsh: %v\n", err)
		os.Exit(1)
	}
	handles := handle.NewTable(vol, tr, log)

	sh := &Shell{
		vol:     vol,
		tr:      tr,
		handles: handles,
		session: tree.NewSession(),
		out:     os.Stdout,
	}

	if err := sh.Run(os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "blockfsh: %v\n", err)
		os.Exit(1)
	}
}
