package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/halcyor/gantry/internal/expressions"
	"github.com/halcyor/gantry/internal/graph"
	"github.com/halcyor/gantry/internal/logging"
	"github.com/halcyor/gantry/internal/registry"
	"github.com/halcyor/gantry/internal/store"
	"github.com/halcyor/gantry/internal/streaming"
	"github.com/halcyor/gantry/pkg/schema"
)

// Config holds engine tuning knobs.
type Config struct {
	// MaxSteps caps the number of node invocations per run. Zero means
	// unbounded; a run exceeding the cap fails with ITERATION_LIMIT.
	MaxSteps int
}

// Engine walks a graph definition node by node, invoking the registered
// tool for each node and persisting run progress after every invocation.
// Execution is strictly sequential within a run; concurrency happens across
// runs, each on its own goroutine.
type Engine struct {
	registry   *registry.Registry
	store      store.Store
	conditions *expressions.Evaluator
	hub        streaming.EventHub
	fsm        *RunFSM
	maxSteps   int
	logger     *slog.Logger
}

// NewEngine creates an Engine. hub may be nil to disable event streaming.
func NewEngine(reg *registry.Registry, st store.Store, conditions *expressions.Evaluator, hub streaming.EventHub, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry:   reg,
		store:      st,
		conditions: conditions,
		hub:        hub,
		fsm:        NewRunFSM(hub),
		maxSteps:   cfg.MaxSteps,
		logger:     logger,
	}
}

// Execute runs def from its start node with a copy of initialState and
// returns the finished run record. A tool or traversal failure marks the
// run failed and is reported on the record, not as a returned error;
// returned errors mean the run could not be started or persisted at all.
func (e *Engine) Execute(ctx context.Context, graphID string, def *schema.GraphDefinition, initialState map[string]any) (*store.Run, error) {
	if err := graph.Validate(def, def.StartNode); err != nil {
		return nil, err
	}

	run := &store.Run{
		ID:          uuid.NewString(),
		GraphID:     graphID,
		Status:      schema.RunStatusPending,
		CurrentNode: def.StartNode,
		State:       expressions.DeepCopyMap(initialState),
		Logs:        []schema.LogEntry{},
		StartedAt:   time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "create run: %s", err.Error()).WithCause(err)
	}

	ctx = logging.WithRunID(ctx, run.ID)

	if err := e.startRun(ctx, run); err != nil {
		return nil, err
	}

	e.traverse(ctx, run, def)
	return run, nil
}

// ExecuteStored loads a persisted graph by ID and executes it.
func (e *Engine) ExecuteStored(ctx context.Context, graphID string, initialState map[string]any) (*store.Run, error) {
	g, err := e.store.GetGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, g.ID, &g.Definition, initialState)
}

// Status returns the current run record.
func (e *Engine) Status(ctx context.Context, runID string) (*store.Run, error) {
	return e.store.GetRun(ctx, runID)
}

// startRun transitions pending -> running and persists the new status.
func (e *Engine) startRun(ctx context.Context, run *store.Run) error {
	if err := e.fsm.Transition(ctx, run.ID, schema.RunStatusPending, schema.RunStatusRunning); err != nil {
		return err
	}
	run.Status = schema.RunStatusRunning
	running := schema.RunStatusRunning
	if err := e.store.UpdateRun(ctx, run.ID, store.RunUpdate{Status: &running}); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "update run status: %s", err.Error()).WithCause(err)
	}
	return nil
}

// traverse walks the graph from the run's current node until the terminal
// marker is reached or the run fails. Progress is persisted after every
// node so a reader always observes the log up to the last finished node.
func (e *Engine) traverse(ctx context.Context, run *store.Run, def *schema.GraphDefinition) {
	node := run.CurrentNode
	steps := 0

	for node != schema.EndNode {
		steps++
		if e.maxSteps > 0 && steps > e.maxSteps {
			e.failRun(ctx, run, schema.NewErrorf(schema.ErrCodeIterationLimit,
				"run exceeded %d steps", e.maxSteps).WithNode(node))
			return
		}

		nodeCtx := logging.WithNode(ctx, node)
		e.publishNodeEvent(nodeCtx, run.ID, node, schema.EventNodeStarted, nil)

		tool, ok := e.registry.Resolve(node)
		if !ok {
			gerr := schema.NewErrorf(schema.ErrCodeNodeNotFound,
				"no tool registered for node %q", node).WithNode(node)
			run.Logs = append(run.Logs, schema.LogEntry{
				Node:      node,
				Timestamp: time.Now().UTC(),
				Status:    schema.LogStatusError,
				Error:     gerr.Error(),
			})
			e.publishNodeEvent(nodeCtx, run.ID, node, schema.EventNodeFailed, gerr.Error())
			e.failRun(nodeCtx, run, gerr)
			return
		}

		startedAt := time.Now().UTC()
		newState, execErr := tool.Transform(nodeCtx, run.State)
		entry := schema.LogEntry{
			Node:       node,
			Timestamp:  startedAt,
			DurationMs: time.Since(startedAt).Milliseconds(),
			Status:     schema.LogStatusSuccess,
		}

		if execErr != nil {
			entry.Status = schema.LogStatusError
			entry.Error = execErr.Error()
			run.Logs = append(run.Logs, entry)
			e.publishNodeEvent(nodeCtx, run.ID, node, schema.EventNodeFailed, execErr.Error())
			e.failRun(nodeCtx, run, schema.NewErrorf(schema.ErrCodeExecution,
				"node %s: %s", node, execErr.Error()).WithNode(node).WithCause(execErr))
			return
		}

		// Tool output replaces the state wholesale.
		if newState == nil {
			newState = map[string]any{}
		}
		run.State = newState
		run.Logs = append(run.Logs, entry)

		next := e.nextNode(nodeCtx, def, node, run.State)

		// Persist the log entry and state before the next node executes.
		run.CurrentNode = currentNodeFor(next)
		if err := e.store.UpdateRun(nodeCtx, run.ID, store.RunUpdate{
			CurrentNode: &run.CurrentNode,
			State:       run.State,
			Logs:        run.Logs,
		}); err != nil {
			e.failRun(nodeCtx, run, schema.NewErrorf(schema.ErrCodeStore,
				"persist run progress: %s", err.Error()).WithNode(node).WithCause(err))
			return
		}

		e.publishNodeEvent(nodeCtx, run.ID, node, schema.EventNodeCompleted, map[string]any{"next": next})
		node = next
	}

	e.completeRun(ctx, run)
}

// nextNode resolves the successor of node. A conditional edge takes
// precedence over an unconditional one; no edge at all means terminal.
func (e *Engine) nextNode(ctx context.Context, def *schema.GraphDefinition, node string, state map[string]any) string {
	if ce, ok := def.ConditionalEdges[node]; ok {
		next := ce.FalseNext
		if e.conditions.Condition(ctx, ce.Condition, state) {
			next = ce.TrueNext
		}
		if next == "" {
			next = schema.EndNode
		}
		return next
	}
	if next, ok := def.Edges[node]; ok {
		return next
	}
	return schema.EndNode
}

func (e *Engine) completeRun(ctx context.Context, run *store.Run) {
	if err := e.fsm.Transition(ctx, run.ID, schema.RunStatusRunning, schema.RunStatusCompleted); err != nil {
		e.logger.ErrorContext(ctx, "run completion transition failed", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	run.Status = schema.RunStatusCompleted
	run.CurrentNode = ""
	run.CompletedAt = &now

	completed := schema.RunStatusCompleted
	empty := ""
	if err := e.store.UpdateRun(ctx, run.ID, store.RunUpdate{
		Status:      &completed,
		CurrentNode: &empty,
		State:       run.State,
		Logs:        run.Logs,
		CompletedAt: &now,
	}); err != nil {
		e.logger.ErrorContext(ctx, "persist completed run failed", slog.String("error", err.Error()))
	}
}

// failRun transitions the run to failed and persists the error. Persistence
// here is best effort; the in-memory record always reflects the failure.
func (e *Engine) failRun(ctx context.Context, run *store.Run, gerr *schema.GantryError) {
	_ = e.fsm.Transition(ctx, run.ID, schema.RunStatusRunning, schema.RunStatusFailed)

	now := time.Now().UTC()
	run.Status = schema.RunStatusFailed
	run.CurrentNode = ""
	run.Error = gerr.Error()
	run.CompletedAt = &now

	failed := schema.RunStatusFailed
	empty := ""
	errMsg := gerr.Error()
	if err := e.store.UpdateRun(ctx, run.ID, store.RunUpdate{
		Status:      &failed,
		CurrentNode: &empty,
		State:       run.State,
		Logs:        run.Logs,
		Error:       &errMsg,
		CompletedAt: &now,
	}); err != nil {
		e.logger.ErrorContext(ctx, "persist failed run failed", slog.String("error", err.Error()))
	}

	logging.LogWith(ctx, e.logger).ErrorContext(ctx, "run failed",
		slog.String("code", gerr.Code),
		slog.String("error", gerr.Message))
}

func (e *Engine) publishNodeEvent(ctx context.Context, runID, node, eventType string, payload any) {
	if e.hub == nil {
		return
	}
	_ = e.hub.Publish(ctx, streaming.StreamEvent{
		RunID:     runID,
		Node:      node,
		EventType: eventType,
		Payload:   payload,
	})
}

// currentNodeFor maps the terminal marker to an empty current node.
func currentNodeFor(next string) string {
	if next == schema.EndNode {
		return ""
	}
	return next
}
