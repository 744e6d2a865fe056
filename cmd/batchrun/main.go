// Command batchrun seeds a Pebble document store and runs the indexing job
// over it with the batch engine.
//
//	batchrun seed --db ./data --count 100000
//	batchrun run --db ./data --workers 8 --conns 4 --error-if 'size == 0'
package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		_, _ = red.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "batchrun",
		Short:         "Parallel batch processing over a document store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("db", "./batchrun-data", "Pebble data directory")
	root.PersistentFlags().String("prefix", "docs", "key prefix of the document collection")

	root.AddCommand(newSeedCommand())
	root.AddCommand(newRunCommand())
	return root
}
