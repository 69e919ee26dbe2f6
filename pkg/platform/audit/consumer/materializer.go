package consumer

import (
	"context"
	"log/slog"

	"crowdfund/internal/platform/kafka/consumer"
	audit "crowdfund/pkg/platform/audit"
	"crowdfund/pkg/platform/audit/store/postgres"
)

// EventSink stores consumed events under their original id.
type EventSink interface {
	AppendWithID(ctx context.Context, event audit.Event) error
}

// Materializer writes consumed outbox events into the queryable
// audit_events table backing the administrator dashboard.
type Materializer struct {
	sink   EventSink
	logger *slog.Logger
}

func NewMaterializer(sink EventSink, logger *slog.Logger) *Materializer {
	return &Materializer{sink: sink, logger: logger}
}

// Handle decodes and stores one message. Undecodable payloads are logged and
// committed; store failures are returned so the message is redelivered.
func (m *Materializer) Handle(ctx context.Context, msg *consumer.Message) error {
	event, err := postgres.DecodePayload(msg.Value)
	if err != nil {
		m.logger.ErrorContext(ctx, "dropping malformed audit message",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	return m.sink.AppendWithID(ctx, event)
}
