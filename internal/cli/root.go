package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by every subcommand.
type RootOptions struct {
	Output      string // "json" | "jsonl" | "table"
	ConfigPath  string
	WALDir      string
	RecordsDir  string
}

// NewRootCommand builds the execrt CLI: route, executions, retrieve,
// recovery, wal, records, estimate.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "execrt",
		Short: "execrt - deterministic intent routing and execution runtime",
		Long: `execrt routes intents to capable agents under a declared strategy
(DIRECT, FALLBACK, BROADCAST, PARALLEL), records every step to a
hash-chained write-ahead log, and exposes the resulting executions for
retrieval, recovery, and drift inspection without ever re-running an
agent.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !IsValidFormat(opts.Output) {
				return fmt.Errorf("invalid --output %q: must be one of %v", opts.Output, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Output, "output", "table", "output format (json|jsonl|table)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config overlay")
	cmd.PersistentFlags().StringVar(&opts.WALDir, "wal-dir", "", "override the configured WAL directory")
	cmd.PersistentFlags().StringVar(&opts.RecordsDir, "records-dir", "", "override the configured records directory")

	cmd.AddCommand(newRouteCommand(opts))
	cmd.AddCommand(newExecutionsCommand(opts))
	cmd.AddCommand(newRetrieveCommand(opts))
	cmd.AddCommand(newRecoveryCommand(opts))
	cmd.AddCommand(newWALCommand(opts))
	cmd.AddCommand(newRecordsCommand(opts))
	cmd.AddCommand(newEstimateCommand(opts))

	return cmd
}

func formatterFor(opts *RootOptions, cmd *cobra.Command) *Formatter {
	return &Formatter{Format: opts.Output, Writer: cmd.OutOrStdout()}
}
