// Package mcpserver exposes the debugger bridge's tool surface and
// resources over the Model Context Protocol, using mark3labs/mcp-go's
// line-delimited JSON-RPC 2.0 stdio transport.
package mcpserver

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/debugger-bridge/internal/adapters"
	"github.com/ctagard/debugger-bridge/internal/config"
	"github.com/ctagard/debugger-bridge/internal/registry"
)

// Server wraps the MCP server with the debugger bridge's session registry
// and adapter registry.
type Server struct {
	mcpServer *server.MCPServer
	registry  *registry.Registry
	adapters  *adapters.Registry
	config    *config.Config
	logger    *log.Logger
}

// NewServer builds the MCP server, its session registry, and its adapter
// registry, and registers every tool and resource.
func NewServer(cfg *config.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	mcpServer := server.NewMCPServer(
		"debugger-bridge",
		"0.1.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithRecovery(),
	)

	adapterReg := adapters.NewRegistry(cfg)
	sessionRegistry := registry.New(adapterReg, cfg.MaxSessions, cfg.SessionTimeout, logger)

	s := &Server{
		mcpServer: mcpServer,
		registry:  sessionRegistry,
		adapters:  adapterReg,
		config:    cfg,
		logger:    logger,
	}

	s.registerTools()
	s.registerResources()

	return s
}

// ServeStdio runs the MCP server over stdin/stdout until EOF or error.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Shutdown disconnects every session and stops background sweeps.
func (s *Server) Shutdown() {
	s.registry.Shutdown()
}
