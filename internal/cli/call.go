package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/mark3labs/openapi-toolbox/internal/toolbox"
)

// CallConfig captures the options for the call command.
type CallConfig struct {
	ToolboxConfig
	Operation string
	Args      map[string]any
}

var callRunner = runCall

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <operation>",
		Short: "Invoke one operation and print the result",
		Long: "Invoke one operation with arguments given as a JSON object and print " +
			"{status, data, headers}. Non-2xx responses are printed like any other result.",
		Example: strings.TrimSpace(`  openapi-toolbox call getPetById --spec ./petstore.yaml --args '{"petId": 1}'`),
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return newUsageError(fmt.Sprintf("call: expected exactly one operation name, got %d\n\n%s", len(args), cmd.UsageString()))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := resolveToolboxConfig(cmd)
			if err != nil {
				return err
			}
			raw, err := cmd.Flags().GetString("args")
			if err != nil {
				return err
			}
			callArgs := map[string]any{}
			if strings.TrimSpace(raw) != "" {
				if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(raw, &callArgs); err != nil {
					return newUsageError(fmt.Sprintf("call: --args must be a JSON object: %v", err))
				}
			}
			return callRunner(cmd.Context(), &CallConfig{
				ToolboxConfig: *tc,
				Operation:     strings.TrimSpace(args[0]),
				Args:          callArgs,
			}, cmd.OutOrStdout())
		},
	}
	addToolboxFlags(cmd.Flags())
	cmd.Flags().String("args", "", "Operation arguments as a JSON object")
	return cmd
}

func runCall(ctx context.Context, cfg *CallConfig, out io.Writer) error {
	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tb := newToolbox(&cfg.ToolboxConfig, logger)
	res, err := tb.Call(ctx, cfg.Operation, cfg.Args)
	if err != nil {
		if errors.Is(err, toolbox.ErrUnknownOperation) {
			return newUsageError(fmt.Sprintf("call: %v (see `openapi-toolbox list`)", err))
		}
		return specFailure(err)
	}
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
