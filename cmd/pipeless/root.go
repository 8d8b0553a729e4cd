// Package pipeless assembles the engine's cobra CLI: input, worker,
// output, and all subcommands, each wiring config, transport, and the
// matching pkg/input, pkg/worker, or pkg/output state machine together.
package pipeless

import (
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the cobra command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pipeless",
		Short: "Pipeless",
		Long:  "Distributed, real-time video frame processing engine",
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInputCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newOutputCmd())
	root.AddCommand(newAllCmd())

	return root
}

// Execute runs the CLI, exiting the process on error.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
