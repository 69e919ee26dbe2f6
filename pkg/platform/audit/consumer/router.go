package consumer

import (
	"context"
	"log/slog"

	"crowdfund/internal/platform/kafka/consumer"
)

// TopicHandler handles the messages of one topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router dispatches by topic. Messages for unknown topics go to the fallback
// when one is set and are otherwise logged and committed.
type Router struct {
	routes   map[string]TopicHandler
	fallback TopicHandler
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger, fallback TopicHandler) *Router {
	return &Router{routes: map[string]TopicHandler{}, fallback: fallback, logger: logger}
}

func (r *Router) Register(topic string, handler TopicHandler) {
	r.routes[topic] = handler
}

func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	if handler, ok := r.routes[msg.Topic]; ok {
		return handler.Handle(ctx, msg)
	}
	if r.fallback != nil {
		return r.fallback.Handle(ctx, msg)
	}
	r.logger.WarnContext(ctx, "unrouted topic, skipping message",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)
	return nil
}
