package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/halcyor/gantry/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Graphs ---

func (s *LibSQLStore) CreateGraph(ctx context.Context, g *Graph) error {
	def, err := json.Marshal(g.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO graphs (id, name, description, definition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, nullStr(g.Description), string(def),
		timeOrNow(g.CreatedAt), timeOrNow(g.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetGraph(ctx context.Context, id string) (*Graph, error) {
	g := &Graph{}
	var desc sql.NullString
	var defJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, definition, created_at, updated_at
		 FROM graphs WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name, &desc, &defJSON, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("graph", id)
	}
	if err != nil {
		return nil, err
	}
	g.Description = desc.String
	if err := json.Unmarshal([]byte(defJSON), &g.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return g, nil
}

func (s *LibSQLStore) ListGraphs(ctx context.Context, filter GraphFilter) ([]*Graph, error) {
	var where []string
	var args []any

	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}

	query := "SELECT id, name, description, definition, created_at, updated_at FROM graphs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var graphs []*Graph
	for rows.Next() {
		g := &Graph{}
		var desc sql.NullString
		var defJSON string
		if err := rows.Scan(&g.ID, &g.Name, &desc, &defJSON, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		g.Description = desc.String
		if err := json.Unmarshal([]byte(defJSON), &g.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
		graphs = append(graphs, g)
	}
	return graphs, rows.Err()
}

func (s *LibSQLStore) DeleteGraph(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM graphs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "graph", id)
}

// --- Runs ---

func (s *LibSQLStore) CreateRun(ctx context.Context, run *Run) error {
	state, err := marshalMapOrDefault(run.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	logs, err := marshalLogs(run.Logs)
	if err != nil {
		return fmt.Errorf("marshal logs: %w", err)
	}
	status := run.Status
	if status == "" {
		status = schema.RunStatusPending
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, graph_id, status, current_node, state, logs, error, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.GraphID, string(status), nullStr(run.CurrentNode),
		string(state), string(logs), nullStr(run.Error),
		timeOrNow(run.StartedAt), nullTime(run.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	run := &Run{}
	var (
		currentNode, errMsg  sql.NullString
		stateJSON, logsJSON  string
		status               string
		completedAt          sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, graph_id, status, current_node, state, logs, error, started_at, completed_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.GraphID, &status, &currentNode, &stateJSON, &logsJSON,
		&errMsg, &run.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	run.Status = schema.RunStatus(status)
	run.CurrentNode = currentNode.String
	run.Error = errMsg.String
	if err := json.Unmarshal([]byte(stateJSON), &run.State); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if err := json.Unmarshal([]byte(logsJSON), &run.Logs); err != nil {
		return nil, fmt.Errorf("unmarshal logs: %w", err)
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

func (s *LibSQLStore) UpdateRun(ctx context.Context, id string, update RunUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.CurrentNode != nil {
		sets = append(sets, "current_node = ?")
		args = append(args, nullStr(*update.CurrentNode))
	}
	if update.State != nil {
		state, err := marshalMapOrDefault(update.State)
		if err != nil {
			return fmt.Errorf("marshal state: %w", err)
		}
		sets = append(sets, "state = ?")
		args = append(args, string(state))
	}
	if update.Logs != nil {
		logs, err := marshalLogs(update.Logs)
		if err != nil {
			return fmt.Errorf("marshal logs: %w", err)
		}
		sets = append(sets, "logs = ?")
		args = append(args, string(logs))
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE runs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "run", id)
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	var where []string
	var args []any

	if filter.GraphID != "" {
		where = append(where, "graph_id = ?")
		args = append(args, filter.GraphID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, *filter.Since)
	}

	query := "SELECT id, graph_id, status, current_node, state, logs, error, started_at, completed_at FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var (
			currentNode, errMsg sql.NullString
			stateJSON, logsJSON string
			status              string
			completedAt         sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.GraphID, &status, &currentNode, &stateJSON,
			&logsJSON, &errMsg, &run.StartedAt, &completedAt); err != nil {
			return nil, err
		}
		run.Status = schema.RunStatus(status)
		run.CurrentNode = currentNode.String
		run.Error = errMsg.String
		if err := json.Unmarshal([]byte(stateJSON), &run.State); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
		if err := json.Unmarshal([]byte(logsJSON), &run.Logs); err != nil {
			return nil, fmt.Errorf("unmarshal logs: %w", err)
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Schedules ---

func (s *LibSQLStore) CreateSchedule(ctx context.Context, sched *Schedule) error {
	state, err := marshalMapOrDefault(sched.InitialState)
	if err != nil {
		return fmt.Errorf("marshal initial_state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, graph_id, cron_expression, initial_state, enabled, last_run_at, next_run_at, last_run_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.GraphID, sched.CronExpression, string(state),
		boolToInt(sched.Enabled), nullTime(sched.LastRunAt), nullTime(sched.NextRunAt),
		nullStr(sched.LastRunStatus), timeOrNow(sched.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	sched := &Schedule{}
	var (
		stateJSON          string
		enabled            int
		lastRun, nextRun   sql.NullTime
		lastStatus         sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, graph_id, cron_expression, initial_state, enabled, last_run_at, next_run_at, last_run_status, created_at
		 FROM schedules WHERE id = ?`, id,
	).Scan(&sched.ID, &sched.GraphID, &sched.CronExpression, &stateJSON, &enabled,
		&lastRun, &nextRun, &lastStatus, &sched.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("schedule", id)
	}
	if err != nil {
		return nil, err
	}
	sched.Enabled = enabled != 0
	sched.LastRunStatus = lastStatus.String
	if err := json.Unmarshal([]byte(stateJSON), &sched.InitialState); err != nil {
		return nil, fmt.Errorf("unmarshal initial_state: %w", err)
	}
	if lastRun.Valid {
		sched.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		sched.NextRunAt = &nextRun.Time
	}
	return sched, nil
}

func (s *LibSQLStore) UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error {
	var sets []string
	var args []any

	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolToInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE schedules SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "schedule", id)
}

func (s *LibSQLStore) ListSchedules(ctx context.Context, filter ScheduleFilter) ([]*Schedule, error) {
	var where []string
	var args []any

	if filter.GraphID != "" {
		where = append(where, "graph_id = ?")
		args = append(args, filter.GraphID)
	}
	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolToInt(*filter.Enabled))
	}

	query := "SELECT id, graph_id, cron_expression, initial_state, enabled, last_run_at, next_run_at, last_run_status, created_at FROM schedules"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*Schedule
	for rows.Next() {
		sched := &Schedule{}
		var (
			stateJSON        string
			enabled          int
			lastRun, nextRun sql.NullTime
			lastStatus       sql.NullString
		)
		if err := rows.Scan(&sched.ID, &sched.GraphID, &sched.CronExpression, &stateJSON,
			&enabled, &lastRun, &nextRun, &lastStatus, &sched.CreatedAt); err != nil {
			return nil, err
		}
		sched.Enabled = enabled != 0
		sched.LastRunStatus = lastStatus.String
		if err := json.Unmarshal([]byte(stateJSON), &sched.InitialState); err != nil {
			return nil, fmt.Errorf("unmarshal initial_state: %w", err)
		}
		if lastRun.Valid {
			sched.LastRunAt = &lastRun.Time
		}
		if nextRun.Valid {
			sched.NextRunAt = &nextRun.Time
		}
		schedules = append(schedules, sched)
	}
	return schedules, rows.Err()
}

func (s *LibSQLStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "schedule", id)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.GantryError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalMapOrDefault(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(m)
}

func marshalLogs(logs []schema.LogEntry) (json.RawMessage, error) {
	if len(logs) == 0 {
		return json.RawMessage("[]"), nil
	}
	return json.Marshal(logs)
}

var _ Store = (*LibSQLStore)(nil)
