package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/mark3labs/openapi-toolbox/internal/mcpserver"
)

// ServeConfig captures the options for the serve command.
type ServeConfig struct {
	ToolboxConfig
	Name    string
	Version string
}

var serveRunner = runServe

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the compiled operations as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := resolveToolboxConfig(cmd)
			if err != nil {
				return err
			}
			name, err := cmd.Flags().GetString("name")
			if err != nil {
				return err
			}
			version, err := cmd.Flags().GetString("server-version")
			if err != nil {
				return err
			}
			return serveRunner(cmd.Context(), &ServeConfig{ToolboxConfig: *tc, Name: name, Version: version},
				cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	addToolboxFlags(cmd.Flags())
	cmd.Flags().String("name", "", "MCP server name (defaults to the document title)")
	cmd.Flags().String("server-version", "", "MCP server version (defaults to the document version)")
	return cmd
}

func runServe(ctx context.Context, cfg *ServeConfig, in io.Reader, out io.Writer) error {
	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tb := newToolbox(&cfg.ToolboxConfig, logger)
	s, err := mcpserver.New(ctx, tb, mcpserver.Options{Name: cfg.Name, Version: cfg.Version, Logger: logger})
	if err != nil {
		return specFailure(err)
	}
	return mcpserver.Serve(ctx, s, in, out)
}
