package cli

import (
	"time"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	// ConfigFile is an optional YAML/JSON/TOML file layered under the environment
	ConfigFile string

	// Now overrides the clock used for the default cutoff (for testing)
	Now func() time.Time
}

func (o *RootOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// NewRootCommand creates the root command for the double-checker CLI
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "double-checker",
		Short: "Reconcile Knackly records into MongoDB",
		Long: `Copies every Knackly record modified since a cutoff date into MongoDB.

New records are inserted, known records are updated when Knackly holds a newer
version, and each document keeps a timeline of snapshots and the apps billed
against it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "optional config file, overridden by environment variables")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewScheduleCommand(opts))
	cmd.AddCommand(NewNotifyCommand(opts))

	return cmd
}
