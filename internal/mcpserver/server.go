// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the vault engine as tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/vaultkeep/internal/apperr"
	"github.com/starford/vaultkeep/internal/engine"
)

// ContractURI is the resource holding the vault file format contract.
const ContractURI = "vaultkeep://file-format"

// Server wraps the MCP server with the vault tools.
type Server struct {
	mcp *server.MCPServer
	eng *engine.Engine
	log *slog.Logger
}

// New creates a new MCP server with every vault tool registered.
func New(eng *engine.Engine, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{eng: eng, log: logger}

	s.mcp = server.NewMCPServer(
		"vaultkeep",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)
	s.registerFileTools()
	s.registerGraphTools()
	s.registerMetadataTools()

	s.mcp.AddTool(mcp.NewTool("get_file_contract",
		mcp.WithDescription("Returns the canonical vault file format contract. "+
			"Call this before creating or updating files to ensure correct structure."),
	), s.getFileContract)

	s.mcp.AddResource(
		mcp.NewResource(ContractURI, "File Format Contract",
			mcp.WithResourceDescription("Canonical Markdown file format for the vault."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio serves MCP over in and out until ctx is cancelled or in is
// closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.log.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError turns err into an error result. Unclassified failures are logged
// since the client only sees the message.
func (s *Server) toolError(tool string, err error) (*mcp.CallToolResult, error) {
	if k := apperr.KindOf(err); k == apperr.KindIO || k == apperr.KindRollback {
		s.log.Error("mcp: tool failed", slog.String("tool", tool), slog.String("error", err.Error()))
	}
	return mcp.NewToolResultError(err.Error()), nil
}
