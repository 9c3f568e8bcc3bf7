package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/halcyor/gantry/internal/engine"
	"github.com/halcyor/gantry/internal/registry"
	"github.com/halcyor/gantry/internal/scheduler"
	"github.com/halcyor/gantry/internal/store"
	"github.com/halcyor/gantry/internal/streaming"
	"github.com/halcyor/gantry/internal/validation"
)

// GantryServerDeps holds the dependencies for creating a GantryServer.
type GantryServerDeps struct {
	Engine    *engine.Engine
	Store     store.Store
	Registry  *registry.Registry
	Validator *validation.GraphValidator
	Scheduler *scheduler.Scheduler
	Hub       streaming.EventHub
	Logger    *slog.Logger
}

// GantryServer wraps an MCP server with gantry-specific tool handlers.
type GantryServer struct {
	engine    *engine.Engine
	store     store.Store
	registry  *registry.Registry
	validator *validation.GraphValidator
	scheduler *scheduler.Scheduler
	hub       streaming.EventHub
	logger    *slog.Logger
	mcpServer *server.MCPServer
	notifier  *StreamNotifier
}

// NewGantryServer creates a new GantryServer with the full tool surface registered.
func NewGantryServer(deps GantryServerDeps) *GantryServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &GantryServer{
		engine:    deps.Engine,
		store:     deps.Store,
		registry:  deps.Registry,
		validator: deps.Validator,
		scheduler: deps.Scheduler,
		hub:       deps.Hub,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"gantry",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Gantry is a directed workflow graph execution engine. Use gantry.define to register graphs, gantry.run to execute them, gantry.status to inspect a run's state and logs, gantry.query to list graphs/runs/schedules, gantry.tools to discover available node tools, gantry.diagram to visualize a graph or a run's progress, and gantry.schedule to manage recurring runs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewStreamNotifier(mcpSrv, deps.Hub, logger)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes. Run event forwarding stops with the context.
func (s *GantryServer) Serve(ctx context.Context) error {
	s.notifier.Start(ctx)
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *GantryServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *GantryServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: toolsTool(), Handler: s.handleTools},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: scheduleTool(), Handler: s.handleSchedule},
	}
}

// --- Tool definitions ---

func runTool() mcp.Tool {
	return mcp.NewTool("gantry.run",
		mcp.WithDescription("Execute a registered graph and return the finished run"),
		mcp.WithString("graph_id", mcp.Required(), mcp.Description("ID of the graph to execute")),
		mcp.WithObject("initial_state", mcp.Description("Initial run state (open JSON object)")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("gantry.status",
		mcp.WithDescription("Get a run's status, state, and execution log"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to query")),
	)
}

func defineTool() mcp.Tool {
	return mcp.NewTool("gantry.define",
		mcp.WithDescription("Register a reusable graph definition"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Graph name")),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Graph definition: nodes, edges, conditional_edges, start_node, optional state_schema")),
		mcp.WithString("description", mcp.Description("Graph description")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("gantry.query",
		mcp.WithDescription("Query graphs, runs, or schedules"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("graphs", "runs", "schedules"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (graph_id, status, since, name, limit, offset)")),
	)
}

func toolsTool() mcp.Tool {
	return mcp.NewTool("gantry.tools",
		mcp.WithDescription("List the node tools available to graphs"),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("gantry.diagram",
		mcp.WithDescription("Render a graph as Mermaid flowchart syntax or a base64-encoded PNG image, optionally overlaying a run's progress"),
		mcp.WithString("graph_id", mcp.Required(), mcp.Description("ID of the graph to render")),
		mcp.WithString("run_id", mcp.Description("Run ID whose per-node progress to overlay")),
		mcp.WithString("format",
			mcp.Enum("mermaid", "image"),
			mcp.Description("Output format (default: mermaid)"),
		),
	)
}

func scheduleTool() mcp.Tool {
	return mcp.NewTool("gantry.schedule",
		mcp.WithDescription("Create, enable, or disable a recurring cron-triggered run of a stored graph"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("create", "enable", "disable"),
			mcp.Description("Schedule operation to perform"),
		),
		mcp.WithString("graph_id", mcp.Description("Graph to run (create)")),
		mcp.WithString("cron", mcp.Description("Standard 5-field cron expression (create)")),
		mcp.WithObject("initial_state", mcp.Description("Initial run state for each triggered run (create)")),
		mcp.WithString("schedule_id", mcp.Description("Schedule to enable or disable")),
	)
}
