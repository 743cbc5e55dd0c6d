package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gomind-labs/execrt/recorder"
)

func newRecordsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Operate on finalized ExecutionRecords",
	}
	cmd.AddCommand(newRecordsVerifyCommand(opts))
	return cmd
}

func newRecordsVerifyCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <executionId>",
		Short: "Verify a Record's content hash and cross-check it against its WAL",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			rec, err := recorder.Retrieve(rt.Config.RecordsDir, rt.Config.WALDir, args[0], rt.Keys)
			if err != nil {
				return WrapExitError(ExitFailure, "verify record", err)
			}

			rows := Row{
				{Key: "executionId", Value: rec.ExecutionID},
				{Key: "recordHash", Value: rec.RecordHash},
				{Key: "events", Value: strconv.Itoa(len(rec.Events))},
				{Key: "valid", Value: "true"},
			}
			return formatterFor(opts, cmd).One(rec, rows)
		},
		Args: cobra.ExactArgs(1),
	}
	return cmd
}
