// Package mcp exposes reel conversations to agents as MCP (Model Context
// Protocol) tools.
package mcp

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/reel/pkg/chat"
	"github.com/papercomputeco/reel/pkg/utils"
)

type Config struct {
	// Chat holds the conversations the tools read and stream into.
	Chat *chat.Service

	// Logger is the configured slog logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates an MCP server with the conversation tools.
func NewServer(c Config) (*Server, error) {
	if c.Chat == nil {
		return nil, errors.New("chat service is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{config: c}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "reel",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        listToolName,
		Description: listDescription,
	}, s.handleList)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        getToolName,
		Description: getDescription,
	}, s.handleGet)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        sendToolName,
		Description: sendDescription,
	}, s.handleSend)

	s.mcpServer = mcpServer

	// Stateless: every request is answered without a session handshake.
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// toolError is the result for a failed tool call. Failures are reported to
// the model rather than as protocol errors.
func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}
