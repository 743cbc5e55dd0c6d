package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gomind-labs/execrt/core"
	"github.com/gomind-labs/execrt/recovery"
)

func newRecoveryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recovery",
		Short: "Scan for and classify crashed in-flight executions",
	}
	cmd.AddCommand(newRecoveryScanCommand(opts))
	cmd.AddCommand(newRecoveryResumeCommand(opts))
	cmd.AddCommand(newRecoveryAbortCommand(opts))
	return cmd
}

func newRecoveryScanCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan WALDir for incomplete executions and classify each RESUME or BLOCK",
		Long: `An incomplete execution whose in-flight step was IRREVERSIBLE is
always classified BLOCK: recovery never re-executes a step that may
already have taken an effect with no recorded outcome. Operators
resolve a BLOCK finding out of band (confirm the real-world outcome,
then mark the execution aborted) rather than have this command guess.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			findings, err := rt.Recovery.Scan()
			if err != nil {
				return WrapExitError(ExitFailure, "scan for incomplete executions", err)
			}

			rows := make([]Row, 0, len(findings))
			blocked := 0
			for _, f := range findings {
				if f.Decision == recovery.DecisionBlock {
					blocked++
				}
				rows = append(rows, Row{
					{Key: "executionId", Value: f.ExecutionID},
					{Key: "decision", Value: string(f.Decision)},
					{Key: "blockReason", Value: string(f.BlockReason)},
					{Key: "inFlightStep", Value: f.InFlightStep},
					{Key: "lastEntry", Value: string(f.LastEntry)},
				})
			}
			if err := formatterFor(opts, cmd).Many(findings, rows); err != nil {
				return err
			}
			if blocked > 0 {
				return &ExitError{Code: ExitUsage, Message: "one or more executions require operator attention"}
			}
			return nil
		},
	}
	return cmd
}

func newRecoveryResumeCommand(opts *RootOptions) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "resume <executionId>",
		Short: "Record that a RESUME-classified execution may safely be retried",
		Long: `resume never re-invokes an agent itself: it appends
recovery.started/recovery.completed to the existing WAL, confirming
the in-flight step was READ_ONLY or REVERSIBLE, and leaves the actual
retry to a subsequent route call. Gated by INTENTUSNET_MODE and
INTENTUSNET_AUTH_TOKEN; prompts for confirmation unless
INTENTUSNET_AUTO_CONFIRM=1.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDestructiveOpsAllowed(token); err != nil {
				return err
			}
			executionID := args[0]
			ok, err := confirmDestructive(fmt.Sprintf("resume execution %s?", executionID))
			if err != nil {
				return err
			}
			if !ok {
				return NewExitError(ExitUsage, "resume not confirmed")
			}

			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			finding, err := rt.Recovery.Resume(executionID)
			if err != nil {
				if core.IsConfigurationError(err) {
					return WrapExitError(ExitUsage, "resume", err)
				}
				return WrapExitError(ExitFailure, "resume", err)
			}
			return formatterFor(opts, cmd).One(finding, Row{
				{Key: "executionId", Value: finding.ExecutionID},
				{Key: "decision", Value: string(finding.Decision)},
				{Key: "inFlightStep", Value: finding.InFlightStep},
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token matching INTENTUSNET_AUTH_TOKEN")
	return cmd
}

func newRecoveryAbortCommand(opts *RootOptions) *cobra.Command {
	var token, reason string
	cmd := &cobra.Command{
		Use:   "abort <executionId>",
		Short: "Record an operator's decision to give up on a BLOCK-classified execution",
		Long: `abort appends execution.aborted to the existing WAL, making it
terminal so future recovery scans skip it. Use this once the real-world
outcome of the in-flight IRREVERSIBLE step has been confirmed out of
band and no retry will be attempted. Gated by INTENTUSNET_MODE and
INTENTUSNET_AUTH_TOKEN; prompts for confirmation unless
INTENTUSNET_AUTO_CONFIRM=1.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDestructiveOpsAllowed(token); err != nil {
				return err
			}
			executionID := args[0]
			ok, err := confirmDestructive(fmt.Sprintf("abort execution %s? this cannot be undone", executionID))
			if err != nil {
				return err
			}
			if !ok {
				return NewExitError(ExitUsage, "abort not confirmed")
			}

			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			finding, err := rt.Recovery.Abort(executionID, reason)
			if err != nil {
				if core.IsConfigurationError(err) {
					return WrapExitError(ExitUsage, "abort", err)
				}
				return WrapExitError(ExitFailure, "abort", err)
			}
			return formatterFor(opts, cmd).One(finding, Row{
				{Key: "executionId", Value: finding.ExecutionID},
				{Key: "decision", Value: string(finding.Decision)},
				{Key: "blockReason", Value: string(finding.BlockReason)},
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token matching INTENTUSNET_AUTH_TOKEN")
	cmd.Flags().StringVar(&reason, "reason", "", "operator's recorded rationale for the abort")
	return cmd
}
