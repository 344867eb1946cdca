package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("FormReps", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("FormReps exercise coach. Read the live repetition counters and form feedback of the running session, pause or resume detection, and browse recorded sessions."),
	)

	h := &handlers{ds: ds, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolGetExerciseData, Handler: h.getExerciseData},
		server.ServerTool{Tool: toolGetSessionStatus, Handler: h.getSessionStatus},
		server.ServerTool{Tool: toolListSessions, Handler: h.listSessions},
		server.ServerTool{Tool: toolGetSession, Handler: h.getSession},
		server.ServerTool{Tool: toolTogglePause, Handler: h.togglePause},
		server.ServerTool{Tool: toolListExercises, Handler: h.listExercises},
	)

	s.AddResources(
		server.ServerResource{Resource: resCurrentSession, Handler: h.currentSession},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

var resCurrentSession = mcp.NewResource(
	"formreps://current_session",
	"Current Session",
	mcp.WithResourceDescription("Status of the running or last session together with its live counters and stage"),
	mcp.WithMIMEType("application/json"),
)
