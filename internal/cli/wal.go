package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gomind-labs/execrt/wal"
)

func newWALCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wal",
		Short: "Inspect and verify write-ahead log files",
	}
	cmd.AddCommand(newWALInspectCommand(opts))
	cmd.AddCommand(newWALVerifyCommand(opts))
	return cmd
}

func newWALInspectCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <executionId>",
		Short: "Print every entry in an execution's WAL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			result, err := wal.ReadFile(rt.Config.WALDir, args[0], rt.Keys)
			if err != nil {
				return WrapExitError(ExitFailure, "read WAL", err)
			}
			rows := make([]Row, 0, len(result.Entries))
			for _, e := range result.Entries {
				rows = append(rows, Row{
					{Key: "seq", Value: strconv.FormatInt(e.Seq, 10)},
					{Key: "entryType", Value: string(e.EntryType)},
					{Key: "timestamp", Value: e.TimestampISO},
					{Key: "entryHash", Value: e.EntryHash},
				})
			}
			return formatterFor(opts, cmd).Many(result.Entries, rows)
		},
	}
	return cmd
}

func newWALVerifyCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <executionId>",
		Short: "Verify hash-chain integrity (and signatures, if signed) for an execution's WAL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			result, err := wal.ReadFile(rt.Config.WALDir, args[0], rt.Keys)
			if err != nil {
				return WrapExitError(ExitFailure, "verify WAL", err)
			}
			rows := Row{
				{Key: "executionId", Value: args[0]},
				{Key: "entries", Value: strconv.Itoa(len(result.Entries))},
				{Key: "torn", Value: strconv.FormatBool(result.Torn)},
				{Key: "terminal", Value: strconv.FormatBool(result.IsTerminal())},
				{Key: "valid", Value: "true"},
			}
			return formatterFor(opts, cmd).One(result, rows)
		},
	}
	return cmd
}
