package cli

import (
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

type rootOptions struct {
	configPath string
}

// Execute runs the collab command line.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the collab command tree.
func NewRootCmd() *cobra.Command {
	v := newViper()
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "collab",
		Short:        "Agent console for real-time ticket collaboration",
		Long:         "collab opens a ticket on the gateway and keeps its conversation, viewers, worklog timer and SLA risk live in the terminal.",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ./collab.yaml or ~/.config/ticket-collab/collab.yaml)")
	flags.String("gateway", "", "gateway base URL")
	flags.String("token", "", "bearer token")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-file", "", "write logs to this file instead of stderr")
	for _, name := range []string{"gateway", "token", "log-level", "log-file"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newConsoleCmd(v, opts),
		newConfigCmd(v, opts),
		newTokenCmd(v),
		newVersionCmd(),
	)
	return root
}
