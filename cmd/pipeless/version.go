package pipeless

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version reports the module's build revision, or "<unknown>" outside
// a VCS checkout.
func Version() string {
	version := "<unknown>"
	info, ok := debug.ReadBuildInfo()
	if ok {
		for _, kv := range info.Settings {
			if kv.Value == "" {
				continue
			}
			if kv.Key == "vcs.revision" {
				version = kv.Value
			}
		}
	}
	return version
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version())
		},
	}
}
