package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use and must provide
// read-your-writes consistency within the process performing the update.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRun(ctx context.Context, id string, update RunUpdate) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// Graphs
	CreateGraph(ctx context.Context, g *Graph) error
	GetGraph(ctx context.Context, id string) (*Graph, error)
	ListGraphs(ctx context.Context, filter GraphFilter) ([]*Graph, error)
	DeleteGraph(ctx context.Context, id string) error

	// Schedules
	CreateSchedule(ctx context.Context, sched *Schedule) error
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]*Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
