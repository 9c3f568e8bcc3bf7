package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/halcyor/gantry/internal/diagram"
	"github.com/halcyor/gantry/internal/graph"
	"github.com/halcyor/gantry/internal/store"
	"github.com/halcyor/gantry/pkg/schema"
)

// handleRun executes a registered graph and returns the finished run.
func (s *GantryServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	graphID, err := req.RequireString("graph_id")
	if err != nil {
		return mcp.NewToolResultError("graph_id is required"), nil
	}
	initialState := mcp.ParseStringMap(req, "initial_state", nil)

	g, getErr := s.store.GetGraph(ctx, graphID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("graph lookup failed: %v", getErr)), nil
	}

	if s.validator != nil {
		if vErr := s.validator.ValidateInitialState(initialState, g.Definition.StateSchema); vErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("initial state rejected: %v", vErr)), nil
		}
	}

	run, runErr := s.engine.Execute(ctx, g.ID, &g.Definition, initialState)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed to start: %v", runErr)), nil
	}

	return marshalResult(run)
}

// handleStatus returns the current run record.
func (s *GantryServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	run, statusErr := s.engine.Status(ctx, runID)
	if statusErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", statusErr)), nil
	}

	return marshalResult(run)
}

// handleDefine validates and registers a graph definition.
func (s *GantryServer) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}

	defRaw := mcp.ParseStringMap(req, "definition", nil)
	if defRaw == nil {
		return mcp.NewToolResultError("definition is required"), nil
	}

	// Round-trip the definition through JSON to get a typed GraphDefinition.
	defBytes, marshalErr := json.Marshal(defRaw)
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", marshalErr)), nil
	}
	var def schema.GraphDefinition
	if unmarshalErr := json.Unmarshal(defBytes, &def); unmarshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", unmarshalErr)), nil
	}

	// Wire shape first, then structural rules.
	if s.validator != nil {
		if vErr := s.validator.ValidateDefinition(&def); vErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("definition rejected: %v", vErr)), nil
		}
	}
	if vErr := graph.Validate(&def, def.StartNode); vErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("definition rejected: %v", vErr)), nil
	}

	now := time.Now().UTC()
	g := &store.Graph{
		ID:          uuid.NewString(),
		Name:        name,
		Description: req.GetString("description", ""),
		Definition:  def,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if createErr := s.store.CreateGraph(ctx, g); createErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store graph: %v", createErr)), nil
	}

	return marshalResult(map[string]any{
		"id":   g.ID,
		"name": g.Name,
	})
}

// handleQuery lists graphs, runs, or schedules based on filters.
func (s *GantryServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "graphs":
		return s.queryGraphs(ctx, filter)
	case "runs":
		return s.queryRuns(ctx, filter)
	case "schedules":
		return s.querySchedules(ctx, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// handleTools lists the node tools registered with the engine.
func (s *GantryServer) handleTools(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{"tools": s.registry.List()})
}

// handleSchedule creates, enables, or disables a recurring run of a
// stored graph.
func (s *GantryServer) handleSchedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	if s.scheduler == nil {
		return mcp.NewToolResultError("scheduler is not configured"), nil
	}

	switch action {
	case "create":
		return s.createSchedule(ctx, req)
	case "enable":
		return s.setScheduleEnabled(ctx, req, true)
	case "disable":
		return s.setScheduleEnabled(ctx, req, false)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
	}
}

func (s *GantryServer) createSchedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	graphID := req.GetString("graph_id", "")
	cronExpr := req.GetString("cron", "")
	if graphID == "" || cronExpr == "" {
		return mcp.NewToolResultError("graph_id and cron are required for create"), nil
	}

	if _, getErr := s.store.GetGraph(ctx, graphID); getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("graph lookup failed: %v", getErr)), nil
	}

	now := time.Now().UTC()
	next, calcErr := s.scheduler.CalculateNextRun(cronExpr, now)
	if calcErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid cron expression: %v", calcErr)), nil
	}

	sched := &store.Schedule{
		ID:             uuid.NewString(),
		GraphID:        graphID,
		CronExpression: cronExpr,
		InitialState:   mcp.ParseStringMap(req, "initial_state", nil),
		Enabled:        true,
		NextRunAt:      &next,
		CreatedAt:      now,
	}
	if createErr := s.store.CreateSchedule(ctx, sched); createErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("schedule creation failed: %v", createErr)), nil
	}

	return marshalResult(sched)
}

func (s *GantryServer) setScheduleEnabled(ctx context.Context, req mcp.CallToolRequest, enabled bool) (*mcp.CallToolResult, error) {
	scheduleID := req.GetString("schedule_id", "")
	if scheduleID == "" {
		return mcp.NewToolResultError("schedule_id is required"), nil
	}

	sched, getErr := s.store.GetSchedule(ctx, scheduleID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("schedule lookup failed: %v", getErr)), nil
	}

	update := store.ScheduleUpdate{Enabled: &enabled}
	if enabled {
		// Re-enabling recomputes the next fire time from now.
		next, calcErr := s.scheduler.CalculateNextRun(sched.CronExpression, time.Now().UTC())
		if calcErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid cron expression: %v", calcErr)), nil
		}
		update.NextRunAt = &next
	}
	if updateErr := s.store.UpdateSchedule(ctx, scheduleID, update); updateErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("schedule update failed: %v", updateErr)), nil
	}

	return marshalResult(map[string]any{"id": scheduleID, "enabled": enabled})
}

// handleDiagram renders a graph in the requested format, optionally
// overlaying a run's per-node progress.
func (s *GantryServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	graphID, err := req.RequireString("graph_id")
	if err != nil {
		return mcp.NewToolResultError("graph_id is required"), nil
	}
	format := req.GetString("format", "mermaid")
	if format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be mermaid or image"), nil
	}

	g, getErr := s.store.GetGraph(ctx, graphID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("graph lookup failed: %v", getErr)), nil
	}

	model := diagram.FromDefinition(g.Name, &g.Definition)

	if runID := req.GetString("run_id", ""); runID != "" {
		run, runErr := s.store.GetRun(ctx, runID)
		if runErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", runErr)), nil
		}
		if run.GraphID != g.ID {
			return mcp.NewToolResultError(fmt.Sprintf("run %s does not belong to graph %s", runID, graphID)), nil
		}
		statuses := make(map[string]string, len(run.Logs))
		for _, entry := range run.Logs {
			if entry.Status == schema.LogStatusError {
				statuses[entry.Node] = "failed"
			} else {
				statuses[entry.Node] = "completed"
			}
		}
		diagram.ApplyRunOverlay(model, statuses, run.CurrentNode)
	}

	switch format {
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderPNG(ctx, model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	}
}

// --- Query helpers ---

func (s *GantryServer) queryGraphs(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	gf := store.GraphFilter{
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}
	if name, ok := filter["name"].(string); ok {
		gf.Name = name
	}

	graphs, err := s.store.ListGraphs(ctx, gf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"graphs": graphs})
}

func (s *GantryServer) queryRuns(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	rf := store.RunFilter{
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}
	if graphID, ok := filter["graph_id"].(string); ok {
		rf.GraphID = graphID
	}
	if status, ok := filter["status"].(string); ok && status != "" {
		rs := schema.RunStatus(status)
		rf.Status = &rs
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			rf.Since = &t
		}
	}

	runs, err := s.store.ListRuns(ctx, rf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"runs": runs})
}

func (s *GantryServer) querySchedules(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	sf := store.ScheduleFilter{
		Limit: extractInt(filter, "limit", 50),
	}
	if graphID, ok := filter["graph_id"].(string); ok {
		sf.GraphID = graphID
	}
	if enabled, ok := filter["enabled"].(bool); ok {
		sf.Enabled = &enabled
	}

	schedules, err := s.store.ListSchedules(ctx, sf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"schedules": schedules})
}

// --- Internal helpers ---

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
