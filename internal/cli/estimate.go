package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gomind-labs/execrt/cost"
)

func newEstimateCommand(opts *RootOptions) *cobra.Command {
	var budget float64

	cmd := &cobra.Command{
		Use:   "estimate <envelope.json>",
		Short: "Pre-execution cost check: exits 0 within budget, 1 over",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			envelope, err := readEnvelope(args[0])
			if err != nil {
				return WrapExitError(ExitUsage, "read envelope", err)
			}

			estimated := cost.Estimate(envelope)
			withinBudget := budget <= 0 || estimated <= budget

			rows := Row{
				{Key: "estimatedCost", Value: strconv.FormatFloat(estimated, 'g', -1, 64)},
				{Key: "budget", Value: strconv.FormatFloat(budget, 'g', -1, 64)},
				{Key: "withinBudget", Value: strconv.FormatBool(withinBudget)},
			}
			result := map[string]interface{}{
				"estimatedCost": estimated,
				"budget":        budget,
				"withinBudget":  withinBudget,
			}
			if err := formatterFor(opts, cmd).One(result, rows); err != nil {
				return err
			}
			if !withinBudget {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("estimated cost %g exceeds budget %g", estimated, budget)}
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&budget, "budget", 0, "cost budget; 0 means no budget check")
	return cmd
}
