package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
)

// TransportStarter abstracts the transport an MCP server listens on. The
// stdio transport speaks the protocol over stdin/stdout; the network
// transports bind an HTTP server to a configured address.
type TransportStarter interface {
	// Start binds the transport to the MCP server and blocks until the
	// transport stops or an error occurs.
	Start(ctx context.Context, mcpServer *server.MCPServer) error

	// Shutdown stops the transport and closes active connections.
	Shutdown(ctx context.Context) error

	// Type returns the transport name: "stdio", "sse", or "http".
	Type() string
}

// StdioTransport serves the MCP protocol over stdin/stdout. Logs must go to
// stderr; stdout carries the protocol stream.
type StdioTransport struct{}

func (s *StdioTransport) Start(ctx context.Context, mcpServer *server.MCPServer) error {
	return server.ServeStdio(mcpServer)
}

// Shutdown is a no-op: stdin/stdout are closed with the process.
func (s *StdioTransport) Shutdown(ctx context.Context) error {
	return nil
}

func (s *StdioTransport) Type() string {
	return "stdio"
}

// SSETransport serves the MCP protocol over HTTP with Server-Sent Events.
type SSETransport struct {
	address string
	server  *server.SSEServer
}

func (s *SSETransport) Start(ctx context.Context, mcpServer *server.MCPServer) error {
	s.server = server.NewSSEServer(mcpServer)
	return s.server.Start(s.address)
}

func (s *SSETransport) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *SSETransport) Type() string {
	return "sse"
}

// HTTPTransport serves the MCP protocol over streamable HTTP.
type HTTPTransport struct {
	address string
	server  *server.StreamableHTTPServer
}

func (s *HTTPTransport) Start(ctx context.Context, mcpServer *server.MCPServer) error {
	s.server = server.NewStreamableHTTPServer(mcpServer)
	return s.server.Start(s.address)
}

func (s *HTTPTransport) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPTransport) Type() string {
	return "http"
}

// transportConfig is the slice of configuration NewTransport needs. Declared
// as an interface so tests can substitute minimal configs.
type transportConfig interface {
	GetTransportType() string
	GetPort() int
	GetTransportAddress() string
}

// NewTransport creates the transport selected by the configuration.
func NewTransport(cfg transportConfig) (TransportStarter, error) {
	switch cfg.GetTransportType() {
	case "stdio":
		return &StdioTransport{}, nil
	case "sse":
		if cfg.GetPort() == 0 {
			return nil, fmt.Errorf("port must be configured for sse transport")
		}
		return &SSETransport{address: cfg.GetTransportAddress()}, nil
	case "http":
		if cfg.GetPort() == 0 {
			return nil, fmt.Errorf("port must be configured for http transport")
		}
		return &HTTPTransport{address: cfg.GetTransportAddress()}, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s (must be one of: stdio, sse, http)", cfg.GetTransportType())
	}
}
