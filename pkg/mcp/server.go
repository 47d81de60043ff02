// Package mcp exposes the replication service to MCP clients.
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"page-replica/pkg/config"
	"page-replica/pkg/fetch"
	"page-replica/pkg/replicate"
)

const (
	serverName    = "page-replica"
	serverVersion = "1.0.0"
)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig *config.AppConfig
	Transport string // "stdio" or "sse"
	Port      int
	Logger    *logrus.Logger
}

// Server wraps the MCP server around the replication service
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	svc        *replicate.Service
	robotsGate *fetch.RobotsGate
	log        *logrus.Entry
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig, svc *replicate.Service, robotsGate *fetch.RobotsGate) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer:  mcpServer,
		cfg:        cfg,
		svc:        svc,
		robotsGate: robotsGate,
		log:        cfg.Logger.WithField("component", "mcp"),
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	// replicate_page - Fetch a page and return a self-contained replica
	replicateTool := mcp.NewTool("replicate_page",
		mcp.WithDescription("Fetch a public web page and return a self-contained HTML replica with images and stylesheets inlined"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The page URL to replicate (http or https)"),
		),
	)
	s.mcpServer.AddTool(replicateTool, s.handleReplicatePage)

	// check_url - Preflight a URL without fetching the page
	checkTool := mcp.NewTool("check_url",
		mcp.WithDescription("Check whether a URL is valid and allowed by the target site's robots.txt, without fetching the page"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL to check"),
		),
	)
	s.mcpServer.AddTool(checkTool, s.handleCheckURL)

	s.log.Infof("Registered %d MCP tools", 2)
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	return nil
}
