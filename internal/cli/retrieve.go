package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gomind-labs/execrt/recorder"
)

func newRetrieveCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve <executionId>",
		Short: "Retrieve a finalized ExecutionRecord, cross-checked against its WAL",
		Long: `Retrieve is a pure lookup: it never re-invokes an agent. It loads
the persisted Record, recomputes its content hash, and cross-checks
the event count and envelope hash against the execution's WAL file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			rec, err := recorder.Retrieve(rt.Config.RecordsDir, rt.Config.WALDir, args[0], rt.Keys)
			if err != nil {
				return WrapExitError(ExitFailure, "retrieve record", err)
			}

			rows := Row{
				{Key: "executionId", Value: rec.ExecutionID},
				{Key: "intent", Value: rec.Intent.String()},
				{Key: "recordHash", Value: rec.RecordHash},
				{Key: "finalized", Value: strconv.FormatBool(rec.Finalized)},
				{Key: "replayable", Value: strconv.FormatBool(rec.Replayable)},
				{Key: "events", Value: strconv.Itoa(len(rec.Events))},
			}
			return formatterFor(opts, cmd).One(rec, rows)
		},
	}
	return cmd
}
