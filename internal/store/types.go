package store

import (
	"time"

	"github.com/halcyor/gantry/pkg/schema"
)

// Graph is the persisted form of a workflow graph definition,
// immutable once created.
type Graph struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Definition  schema.GraphDefinition `json:"definition"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Run is the persisted representation of one execution of a graph.
// CurrentNode is empty once the run reaches a terminal status.
type Run struct {
	ID          string            `json:"id"`
	GraphID     string            `json:"graph_id"`
	Status      schema.RunStatus  `json:"status"`
	CurrentNode string            `json:"current_node,omitempty"`
	State       map[string]any    `json:"state"`
	Logs        []schema.LogEntry `json:"logs"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Schedule is a cron-triggered recurring run of a stored graph.
type Schedule struct {
	ID             string         `json:"id"`
	GraphID        string         `json:"graph_id"`
	CronExpression string         `json:"cron_expression"`
	InitialState   map[string]any `json:"initial_state,omitempty"`
	Enabled        bool           `json:"enabled"`
	LastRunAt      *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time     `json:"next_run_at,omitempty"`
	LastRunStatus  string         `json:"last_run_status,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// --- Filter and update types ---

// RunUpdate specifies mutable fields of a run. Nil fields are left unchanged.
type RunUpdate struct {
	Status      *schema.RunStatus `json:"status,omitempty"`
	CurrentNode *string           `json:"current_node,omitempty"`
	State       map[string]any    `json:"state,omitempty"`
	Logs        []schema.LogEntry `json:"logs,omitempty"`
	Error       *string           `json:"error,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	GraphID string            `json:"graph_id,omitempty"`
	Status  *schema.RunStatus `json:"status,omitempty"`
	Since   *time.Time        `json:"since,omitempty"`
	Limit   int               `json:"limit,omitempty"`
	Offset  int               `json:"offset,omitempty"`
}

// GraphFilter specifies criteria for listing graphs.
type GraphFilter struct {
	Name   string `json:"name,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ScheduleUpdate specifies mutable fields of a schedule.
type ScheduleUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduleFilter specifies criteria for listing schedules.
type ScheduleFilter struct {
	GraphID string `json:"graph_id,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}
