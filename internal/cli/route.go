package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gomind-labs/execrt/core"
	"github.com/gomind-labs/execrt/transport"
)

func newRouteCommand(opts *RootOptions) *cobra.Command {
	var envelopePath string
	var agentsPath string
	var httpTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Route a single intent envelope to a capable agent",
		Long: `Reads an IntentEnvelope as JSON (from --file, or stdin if omitted),
registers the agents declared by --agents, and routes the envelope
under its declared strategy. Every step is appended to the
write-ahead log before this command returns.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			envelope, err := readEnvelope(envelopePath)
			if err != nil {
				return WrapExitError(ExitUsage, "read envelope", err)
			}

			rt, err := buildRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if agentsPath != "" {
				if err := registerAgents(ctx, rt.Registry.Register, agentsPath); err != nil {
					return WrapExitError(ExitUsage, "register agents", err)
				}
			}

			invoker := transport.NewHTTPInvoker(httpTimeout)
			router, err := rt.NewRouter(invoker)
			if err != nil {
				return WrapExitError(ExitFailure, "build router", err)
			}

			resp, err := router.Route(ctx, envelope)
			if err != nil {
				return WrapExitError(ExitFailure, "route intent", err)
			}

			f := formatterFor(opts, cmd)
			rows := Row{
				{Key: "status", Value: string(resp.Status)},
				{Key: "decisionPath", Value: joinStrings(envelope.RoutingMetadata.DecisionPath)},
			}
			if resp.Error != nil {
				rows = append(rows, KV{Key: "error", Value: resp.Error.Code + ": " + resp.Error.Message})
			}
			if err := f.One(resp, rows); err != nil {
				return WrapExitError(ExitFailure, "write output", err)
			}
			if resp.Status == core.ResponseError {
				return &ExitError{Code: ExitFailure, Message: "execution failed"}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&envelopePath, "file", "f", "", "path to the IntentEnvelope JSON (default: stdin)")
	cmd.Flags().StringVar(&agentsPath, "agents", "", "path to a JSON array of AgentDefinition to register before routing")
	cmd.Flags().DurationVar(&httpTimeout, "agent-timeout", 30*time.Second, "per-request HTTP timeout for agent invocation")
	return cmd
}

func readEnvelope(path string) (*core.IntentEnvelope, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var envelope core.IntentEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

func registerAgents(ctx context.Context, register func(context.Context, core.AgentDefinition) error, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var agents []core.AgentDefinition
	if err := json.Unmarshal(data, &agents); err != nil {
		return err
	}
	for _, a := range agents {
		if err := register(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func joinStrings(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += " -> "
		}
		out += s
	}
	return out
}
