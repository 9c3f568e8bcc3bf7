package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/halcyor/gantry/internal/engine"
	"github.com/halcyor/gantry/internal/expressions"
	"github.com/halcyor/gantry/internal/logging"
	"github.com/halcyor/gantry/internal/registry"
	"github.com/halcyor/gantry/internal/scheduler"
	"github.com/halcyor/gantry/internal/store"
	"github.com/halcyor/gantry/internal/streaming"
	"github.com/halcyor/gantry/internal/tools"
	"github.com/halcyor/gantry/internal/validation"
	"github.com/halcyor/gantry/pkg/mcp"
	"github.com/halcyor/gantry/pkg/schema"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gantry:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := registry.NewRegistry()
	if err := tools.RegisterReviewTools(reg); err != nil {
		return err
	}
	if err := registerJQTools(reg); err != nil {
		return err
	}
	if err := reg.Register(tools.NewHTTPTool(tools.HTTPToolConfig{})); err != nil {
		return err
	}

	condEngine, err := conditionEngine(cfg.ConditionEngine)
	if err != nil {
		return err
	}
	evaluator := expressions.NewEvaluator(condEngine, logger)

	validator, err := validation.NewGraphValidator()
	if err != nil {
		return err
	}

	hub := streaming.NewMemoryHub()

	eng := engine.NewEngine(reg, st, evaluator, hub, engine.Config{MaxSteps: cfg.MaxSteps}, logger)

	if err := seedReviewGraph(ctx, st); err != nil {
		return err
	}

	sched := scheduler.NewScheduler(st, eng, logger)
	if cfg.Scheduler {
		if err := sched.RecoverMissed(ctx); err != nil {
			logger.Warn("schedule recovery failed", "error", err)
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	srv := mcp.NewGantryServer(mcp.GantryServerDeps{
		Engine:    eng,
		Store:     st,
		Registry:  reg,
		Validator: validator,
		Scheduler: sched,
		Hub:       hub,
		Logger:    logger,
	})

	logger.Info("gantry mcp server listening on stdio",
		"db_path", cfg.DBPath,
		"condition_engine", cfg.ConditionEngine,
		"max_steps", cfg.MaxSteps)

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// Stdout carries the MCP stdio transport; logs go to stderr.
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	if cfg.DBPath == "memory" {
		return store.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, err
	}
	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func conditionEngine(name string) (expressions.Engine, error) {
	switch name {
	case "", "expr":
		return expressions.NewExprEngine(), nil
	case "cel":
		return expressions.NewCELEngine()
	default:
		return nil, fmt.Errorf("unknown condition engine %q", name)
	}
}

// registerJQTools adds the jq-backed state transforms for the built-in
// review workflow.
func registerJQTools(reg *registry.Registry) error {
	jq := expressions.NewGoJQEngine()
	summarize, err := tools.NewJQTool(
		"summarize_review",
		"Collapse review state into a compact summary object",
		`. + {summary: {score: (.score // 0), issue_count: ((.style_issues // []) | length), refined: ((.refinement_iteration // 0) > 0)}}`,
		jq,
	)
	if err != nil {
		return err
	}
	return reg.Register(summarize)
}

// seedReviewGraph registers the built-in code review graph under a fixed
// ID so a fresh install has something to run.
func seedReviewGraph(ctx context.Context, st store.Store) error {
	const reviewGraphID = "code-review"

	_, err := st.GetGraph(ctx, reviewGraphID)
	if err == nil {
		return nil
	}
	var gerr *schema.GantryError
	if !errors.As(err, &gerr) || gerr.Code != schema.ErrCodeNotFound {
		return err
	}

	now := time.Now().UTC()
	return st.CreateGraph(ctx, &store.Graph{
		ID:          reviewGraphID,
		Name:        "code-review",
		Description: "Iterative Go code review: analyze, check style, score, refine until the score clears the bar",
		Definition:  *tools.ReviewGraph(),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}
