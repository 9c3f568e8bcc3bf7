package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/halcyor/gantry/internal/streaming"
)

// StreamNotifier forwards run events from the hub to all connected MCP
// clients as notifications, so agents can watch a run mid-flight without
// polling gantry.status.
type StreamNotifier struct {
	mcpServer *server.MCPServer
	hub       streaming.EventHub
	logger    *slog.Logger
}

// NewStreamNotifier creates a notifier bridging the hub to MCP push.
// A nil hub disables forwarding.
func NewStreamNotifier(mcpServer *server.MCPServer, hub streaming.EventHub, logger *slog.Logger) *StreamNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamNotifier{mcpServer: mcpServer, hub: hub, logger: logger}
}

// Start subscribes to the hub and forwards events until ctx is cancelled.
// Delivery is best effort; a disconnected client is not an error.
func (n *StreamNotifier) Start(ctx context.Context) {
	if n.hub == nil {
		return
	}

	ch, cancel, err := n.hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		n.logger.Error("event subscription failed", slog.String("error", err.Error()))
		return
	}

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				n.mcpServer.SendNotificationToAllClients("notifications/message", map[string]any{
					"run_id":     event.RunID,
					"node":       event.Node,
					"event_type": event.EventType,
					"payload":    event.Payload,
				})
			}
		}
	}()
}
