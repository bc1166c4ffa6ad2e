package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	infraevents "github.com/squirrelhq/billing-service/internal/infra/events"
	"github.com/squirrelhq/billing-service/internal/shared/config"
	"github.com/squirrelhq/billing-service/internal/shared/events"
)

// EventHandler forwards domain events from the in-process bus onto
// Redis channels so other services can react to billing changes.
type EventHandler struct {
	rdb    redis.UniversalClient
	cfg    config.BillingConfig
	logger *zap.Logger
}

// NewEventHandler creates a new billing event handler.
func NewEventHandler(rdb redis.UniversalClient, cfg config.BillingConfig, logger *zap.Logger) *EventHandler {
	return &EventHandler{rdb: rdb, cfg: cfg, logger: logger}
}

// Handles returns the event types this handler processes.
func (h *EventHandler) Handles() []string {
	return []string{events.PlanChangedType, events.CreditsAdjustedType}
}

// Handle publishes the event payload to the matching Redis channel.
func (h *EventHandler) Handle(event infraevents.Event) error {
	var channel string
	switch event.EventType() {
	case events.PlanChangedType:
		channel = h.cfg.PlanChangedTopic
	case events.CreditsAdjustedType:
		channel = h.cfg.CreditsAdjustedTopic
	default:
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.EventType(), err)
	}
	if err := h.rdb.Publish(context.Background(), channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}

	h.logger.Info("billing event published",
		zap.String("event_type", event.EventType()),
		zap.String("channel", channel),
		zap.String("aggregate_id", event.AggregateID()),
	)
	return nil
}
