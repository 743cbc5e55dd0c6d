package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gomind-labs/execrt/cliindex"
)

func newExecutionsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "executions",
		Short: "Query the rebuildable introspection index",
	}
	cmd.AddCommand(newExecutionsListCommand(opts))
	cmd.AddCommand(newExecutionsShowCommand(opts))
	cmd.AddCommand(newExecutionsTraceCommand(opts))
	cmd.AddCommand(newExecutionsDiffCommand(opts))
	return cmd
}

func newExecutionsListCommand(opts *RootOptions) *cobra.Command {
	var intentName, status string
	var limit int
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if rebuild {
				if err := rt.RebuildIndex(ctx); err != nil {
					return WrapExitError(ExitFailure, "rebuild index", err)
				}
			}

			summaries, err := rt.Index.ListExecutions(ctx, cliindex.ListFilter{
				IntentName: intentName, Status: status, Limit: limit,
			})
			if err != nil {
				return WrapExitError(ExitFailure, "list executions", err)
			}

			rows := make([]Row, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, Row{
					{Key: "executionId", Value: s.ExecutionID},
					{Key: "intent", Value: s.IntentName + "/" + s.IntentVersion},
					{Key: "strategy", Value: s.Strategy},
					{Key: "status", Value: s.Status},
					{Key: "startedAt", Value: s.StartedAt},
				})
			}
			return formatterFor(opts, cmd).Many(summaries, rows)
		},
	}
	cmd.Flags().StringVar(&intentName, "intent", "", "filter by intent name")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (completed|failed|aborted|in_flight|CORRUPTED)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows returned")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "rebuild the index from WALDir/RecordsDir before listing")
	return cmd
}

func newExecutionsShowCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <executionId>",
		Short: "Show the indexed summary for one execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			s, err := rt.Index.GetExecution(ctx, args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "get execution", err)
			}
			if s == nil {
				return NewExitError(ExitFailure, fmt.Sprintf("execution %q not indexed", args[0]))
			}
			rows := Row{
				{Key: "executionId", Value: s.ExecutionID},
				{Key: "intent", Value: s.IntentName + "/" + s.IntentVersion},
				{Key: "strategy", Value: s.Strategy},
				{Key: "status", Value: s.Status},
				{Key: "startedAt", Value: s.StartedAt},
				{Key: "finishedAt", Value: s.FinishedAt},
				{Key: "decisionPath", Value: joinStrings(s.DecisionPath)},
				{Key: "replayable", Value: strconv.FormatBool(s.Replayable)},
			}
			return formatterFor(opts, cmd).One(s, rows)
		},
	}
	return cmd
}

func newExecutionsTraceCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace <executionId>",
		Short: "Print the full event transcript for one execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			events, err := rt.Index.Trace(ctx, args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "trace execution", err)
			}
			rows := make([]Row, 0, len(events))
			for _, e := range events {
				rows = append(rows, Row{
					{Key: "seq", Value: strconv.FormatInt(e.Seq, 10)},
					{Key: "entryType", Value: e.EntryType},
					{Key: "timestamp", Value: e.TimestampISO},
				})
			}
			return formatterFor(opts, cmd).Many(events, rows)
		},
	}
	return cmd
}

func newExecutionsDiffCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <executionIdA> <executionIdB>",
		Short: "Compare the tool sequence and decision path of two executions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			d, err := rt.Index.Diff(ctx, args[0], args[1])
			if err != nil {
				return WrapExitError(ExitFailure, "diff executions", err)
			}
			rows := Row{
				{Key: "toolSequenceEqual", Value: strconv.FormatBool(d.ToolSequenceEqual)},
				{Key: "decisionPathEqual", Value: strconv.FormatBool(d.DecisionPathEqual)},
				{Key: "statusA", Value: d.StatusA},
				{Key: "statusB", Value: d.StatusB},
			}
			if err := formatterFor(opts, cmd).One(d, rows); err != nil {
				return err
			}
			if !d.ToolSequenceEqual || !d.DecisionPathEqual {
				return &ExitError{Code: ExitFailure, Message: "executions diverge"}
			}
			return nil
		},
	}
	return cmd
}
