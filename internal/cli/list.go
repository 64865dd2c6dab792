package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

// ListConfig captures the options for the list command.
type ListConfig struct {
	ToolboxConfig
	JSON bool
}

var listRunner = runList

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the operations compiled from a document",
		Example: strings.TrimSpace(`  openapi-toolbox list --spec https://petstore3.swagger.io/api/v3/openapi.json
  openapi-toolbox --config toolbox.yaml list --json`),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := resolveToolboxConfig(cmd)
			if err != nil {
				return err
			}
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			return listRunner(cmd.Context(), &ListConfig{ToolboxConfig: *tc, JSON: asJSON}, cmd.OutOrStdout())
		},
	}
	addToolboxFlags(cmd.Flags())
	cmd.Flags().Bool("json", false, "Print full tool definitions as JSON")
	return cmd
}

func runList(ctx context.Context, cfg *ListConfig, out io.Writer) error {
	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tb := newToolbox(&cfg.ToolboxConfig, logger)
	if cfg.JSON {
		tools, err := tb.Tools(ctx)
		if err != nil {
			return specFailure(err)
		}
		data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(tools, "", "  ")
		if err != nil {
			return fmt.Errorf("encode tools: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	ops, err := tb.Operations(ctx)
	if err != nil {
		return specFailure(err)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMETHOD\tPATH")
	for _, op := range ops {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", op.ID, strings.ToUpper(string(op.Method)), op.Path)
	}
	return tw.Flush()
}
