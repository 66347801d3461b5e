package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:     "dlorganize-dedupe",
		Short:   "Detect and resolve duplicate files across an input and output tree",
		Version: version + " (" + commit + ")",
	}

	root.AddCommand(newDedupeCmd())

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
