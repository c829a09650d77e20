// Package mcp serves the daemon's read-only window queries as MCP tools over
// stdio, so assistants can inspect what an observer would see.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/a11yd/internal/geometry"
	"github.com/1broseidon/a11yd/internal/ipc"
	"github.com/1broseidon/a11yd/internal/observer"
	"github.com/1broseidon/a11yd/internal/window"
)

const (
	ServerName    = "a11yd"
	ServerVersion = "0.1.0"
)

// Daemon is the part of the IPC client the tools call.
type Daemon interface {
	GetStatus() (*ipc.StatusData, error)
	ListWindows() (*ipc.WindowsData, error)
	ActiveWindow() (window.ID, error)
	FindWindow(id window.ID) (window.Descriptor, bool, error)
	InteractiveRegion(id window.ID) (*ipc.RegionData, error)
	WindowBounds(id window.ID) (geometry.Rect, bool, error)
	ListObservers() ([]observer.Observer, error)
}

var _ Daemon = (*ipc.Client)(nil)

// Server is the MCP server for a11yd window queries.
type Server struct {
	mcpServer *mcpsdk.Server
	daemon    Daemon
	logger    *slog.Logger
}

// NewServer creates a server answering through daemon.
func NewServer(daemon Daemon, logger *slog.Logger) (*Server, error) {
	if daemon == nil {
		return nil, errors.New("mcp server requires a daemon client")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		daemon: daemon,
		logger: logger,
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_status",
		Description: "Show the daemon's tracking state: live session, whether the window list is tracked, window count, focus state and registered observers.",
	}, s.handleGetStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_windows",
		Description: "List on-screen windows, topmost first, with their type, bounds and focus flags. present is false while no observer needs the window list or before the window manager has reported.",
	}, s.handleListWindows)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_active_window",
		Description: "Return the id of the active window, the one accessibility focus is confined to when that policy is in effect.",
	}, s.handleGetActiveWindow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "find_window",
		Description: "Describe a single window by id. found is false when the window is unknown or not visible to this client.",
	}, s.handleFindWindow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_interactive_region",
		Description: "Return the part of a window not covered by windows stacked above it, as a list of rectangles.",
	}, s.handleGetInteractiveRegion)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_window_bounds",
		Description: "Return the current screen bounds of a window as reported by the window manager.",
	}, s.handleGetWindowBounds)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_observers",
		Description: "List the registered assistive observers and their capabilities.",
	}, s.handleListObservers)
}
