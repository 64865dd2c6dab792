package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/openapi-toolbox/internal/emitter/manifest"
)

// ExportConfig captures the options for the export command.
type ExportConfig struct {
	ToolboxConfig
	Out    string
	DryRun bool
	Force  bool
}

var exportRunner = runExport

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the compiled tool definitions to a directory",
		Example: strings.TrimSpace(`  openapi-toolbox export --spec ./petstore.yaml --out ./tools
  openapi-toolbox --config toolbox.yaml export --out ./tools --dry-run`),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := resolveToolboxConfig(cmd)
			if err != nil {
				return err
			}
			cfg := &ExportConfig{ToolboxConfig: *tc}
			if cfg.Out, err = cmd.Flags().GetString("out"); err != nil {
				return err
			}
			if cfg.DryRun, err = cmd.Flags().GetBool("dry-run"); err != nil {
				return err
			}
			if cfg.Force, err = cmd.Flags().GetBool("force"); err != nil {
				return err
			}
			cfg.Out = strings.TrimSpace(cfg.Out)
			if cfg.Out == "" {
				return newUsageError("export: --out is required")
			}
			return exportRunner(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	addToolboxFlags(cmd.Flags())
	cmd.Flags().String("out", "", "Output directory")
	cmd.Flags().Bool("dry-run", false, "Preview planned outputs without writing files")
	cmd.Flags().Bool("force", false, "Overwrite a non-empty output directory")
	return cmd
}

func runExport(ctx context.Context, cfg *ExportConfig, out io.Writer) error {
	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tb := newToolbox(&cfg.ToolboxConfig, logger)
	ops, err := tb.Operations(ctx)
	if err != nil {
		return specFailure(err)
	}

	absOut := cfg.Out
	if ap, err := filepath.Abs(cfg.Out); err == nil {
		absOut = ap
	}
	res, err := manifest.Emit(ctx, manifest.Source{
		Location: tb.Source(),
		BaseURL:  tb.BaseURL(),
		Info:     tb.Info(),
	}, ops, manifest.Options{OutDir: cfg.Out, Force: cfg.Force, DryRun: cfg.DryRun})
	if err != nil {
		return wrapOutputError(err, absOut)
	}

	verb := "Wrote"
	if cfg.DryRun {
		verb = "Planned writes to"
	}
	fmt.Fprintf(out, "%s %s (%d files):\n", verb, absOut, len(res.Planned))
	for _, p := range res.Planned {
		fmt.Fprintf(out, "- %s\n", p.RelPath)
	}
	return nil
}

func wrapOutputError(err error, outDir string) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "read-only") || strings.Contains(lower, "mkdir") || strings.Contains(lower, "rename") || strings.Contains(lower, "output directory") {
		return newUsageError(fmt.Sprintf("output error for %s: %s\nHint: choose a different --out or use --force when appropriate.", outDir, msg))
	}
	return err
}
