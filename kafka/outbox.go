package kafka

import (
	"context"
	"log/slog"
	"time"

	"fadedreams/garage/domain"
	"fadedreams/garage/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "garage-service"

// Publisher delivers one outbox event to the broker.
type Publisher interface {
	PublishOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error
}

// OutboxProcessor processes events from the outbox
type OutboxProcessor struct {
	repo      domain.OutboxRepository
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
}

// NewOutboxProcessor creates a new OutboxProcessor
func NewOutboxProcessor(repo domain.OutboxRepository, publisher Publisher, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *OutboxProcessor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &OutboxProcessor{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		interval:  interval,
		batchSize: 100,
	}
}

// Start polls the outbox until ctx is canceled.
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor", "interval", p.interval.String())
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Stopping outbox processor")
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.processOutboxEvents(ctx); err != nil {
				p.logger.Error("Failed to process outbox events", "error", err)
			}
		}
	}
}

// processOutboxEvents publishes pending events oldest first and returns how many
// were marked processed. A failed event stays pending for the next tick.
func (p *OutboxProcessor) processOutboxEvents(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ProcessOutboxEvents")
	defer span.End()

	events, err := p.repo.GetUnprocessedOutboxEvents(ctx, p.batchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get unprocessed outbox events")
		return 0, err
	}

	processed := 0
	for _, event := range events {
		err := p.publisher.PublishOutboxEvent(ctx, event)
		p.metrics.ObservePublish(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to publish outbox event")
			p.logger.Error("Failed to publish outbox event", "eventID", event.ID, "error", err)
			continue
		}

		if err := p.repo.MarkOutboxEventProcessed(ctx, event.ID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to mark outbox event as processed")
			p.logger.Error("Failed to mark outbox event as processed", "eventID", event.ID, "error", err)
			continue
		}
		processed++
		p.logger.Info("Processed outbox event", "eventID", event.ID, "eventType", event.EventType, "repairID", event.RepairID)
	}

	span.SetAttributes(
		attribute.Int("pendingEventCount", len(events)),
		attribute.Int("processedEventCount", processed),
	)
	return processed, nil
}
