package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "navtool",
		Short:        "pedestrian navigation set toolbox",
		SilenceUsage: true,
	}
	root.AddCommand(newGenCmd(), newInfoCmd(), newPathCmd(), newWanderCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
