// Package mcpserver publishes the operations of a toolbox as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/mark3labs/openapi-toolbox/internal/toolbox"
)

const defaultName = "openapi-toolbox"

// Options configures the MCP server identity.
type Options struct {
	// Name and Version default to the document title and version.
	Name    string
	Version string
	Logger  *zap.Logger
}

// New registers one MCP tool per compiled operation. Every tool shares the
// same handler, which dispatches by tool name through the toolbox.
func New(ctx context.Context, tb *toolbox.Toolbox, opts Options) (*server.MCPServer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "mcpserver"))

	tools, err := tb.Tools(ctx)
	if err != nil {
		return nil, err
	}

	info := tb.Info()
	name, version := opts.Name, opts.Version
	if name == "" {
		name = info.Title
	}
	if name == "" {
		name = defaultName
	}
	if version == "" {
		version = info.Version
	}
	if version == "" {
		version = "0.0.0"
	}

	s := server.NewMCPServer(name, version, server.WithToolCapabilities(true))
	handler := callHandler(tb, logger)
	for _, t := range tools {
		schema, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("encode schema for %s: %w", t.Name, err)
		}
		s.AddTool(mcp.NewToolWithRawSchema(t.Name, t.Description, json.RawMessage(schema)), handler)
		logger.Debug("registered tool", zap.String("tool", t.Name))
	}
	logger.Info("mcp server ready", zap.String("name", name), zap.Int("tools", len(tools)))
	return s, nil
}

// callHandler invokes the operation named by the request and returns the
// result as JSON text, whatever the HTTP status.
func callHandler(tb *toolbox.Toolbox, logger *zap.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := tb.Call(ctx, req.Params.Name, req.GetArguments())
		if err != nil {
			logger.Warn("tool call failed", zap.String("tool", req.Params.Name), zap.Error(err))
			return mcp.NewToolResultError(err.Error()), nil
		}
		text, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(res)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

// Serve runs the server over the given stdio streams until ctx is done or
// the input is closed.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}
