package engine

import (
	"context"

	"github.com/halcyor/gantry/internal/streaming"
	"github.com/halcyor/gantry/pkg/schema"
)

// ValidRunTransitions defines the allowed lifecycle transitions for runs.
var ValidRunTransitions = map[schema.RunStatus][]schema.RunStatus{
	schema.RunStatusPending:   {schema.RunStatusRunning},
	schema.RunStatusRunning:   {schema.RunStatusCompleted, schema.RunStatusFailed},
	schema.RunStatusCompleted: {},
	schema.RunStatusFailed:    {},
}

// RunFSM validates run lifecycle transitions and publishes the matching
// stream event for each one. The caller persists the new status.
type RunFSM struct {
	hub streaming.EventHub
}

// NewRunFSM creates a RunFSM that publishes transition events via the given
// hub. A nil hub disables event publication.
func NewRunFSM(hub streaming.EventHub) *RunFSM {
	return &RunFSM{hub: hub}
}

// Transition validates a run status transition and publishes its event.
// Event delivery is best effort; a full subscriber never blocks a run.
func (f *RunFSM) Transition(ctx context.Context, runID string, from, to schema.RunStatus) error {
	if !isValidRunTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"invalid run transition: %s -> %s", from, to).
			WithDetails(map[string]any{"run_id": runID, "from": string(from), "to": string(to)})
	}

	if f.hub != nil {
		if eventType := runEventType(to); eventType != "" {
			_ = f.hub.Publish(ctx, streaming.StreamEvent{
				RunID:     runID,
				EventType: eventType,
			})
		}
	}

	return nil
}

func isValidRunTransition(from, to schema.RunStatus) bool {
	for _, a := range ValidRunTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

func runEventType(to schema.RunStatus) string {
	switch to {
	case schema.RunStatusRunning:
		return schema.EventRunStarted
	case schema.RunStatusCompleted:
		return schema.EventRunCompleted
	case schema.RunStatusFailed:
		return schema.EventRunFailed
	default:
		return ""
	}
}
