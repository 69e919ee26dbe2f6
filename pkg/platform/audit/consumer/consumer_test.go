package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkaconsumer "crowdfund/internal/platform/kafka/consumer"
	id "crowdfund/pkg/domain"
	audit "crowdfund/pkg/platform/audit"
	"crowdfund/pkg/platform/audit/store/postgres"
)

type recordingHandler struct {
	calls []string
}

func (h *recordingHandler) Handle(_ context.Context, msg *kafkaconsumer.Message) error {
	h.calls = append(h.calls, msg.Topic)
	return nil
}

type recordingSink struct {
	events []audit.Event
	err    error
}

func (s *recordingSink) AppendWithID(_ context.Context, event audit.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRouter(t *testing.T) {
	t.Run("routes to registered handler", func(t *testing.T) {
		h := &recordingHandler{}
		r := NewRouter(discardLogger(), nil)
		r.Register("crowdfund.events", h)

		require.NoError(t, r.Handle(context.Background(), &kafkaconsumer.Message{Topic: "crowdfund.events"}))
		assert.Equal(t, []string{"crowdfund.events"}, h.calls)
	})

	t.Run("falls back for unknown topics", func(t *testing.T) {
		fallback := &recordingHandler{}
		r := NewRouter(discardLogger(), fallback)

		require.NoError(t, r.Handle(context.Background(), &kafkaconsumer.Message{Topic: "other"}))
		assert.Equal(t, []string{"other"}, fallback.calls)
	})

	t.Run("skips unknown topics without fallback", func(t *testing.T) {
		r := NewRouter(discardLogger(), nil)
		assert.NoError(t, r.Handle(context.Background(), &kafkaconsumer.Message{Topic: "other"}))
	})
}

func TestMaterializer(t *testing.T) {
	event := audit.Prepare(audit.Event{
		Identity:   id.Identity("0xcreator"),
		Action:     string(audit.EventContributionReceived),
		CampaignID: 3,
		Amount:     50,
	}, time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC))
	payload, err := postgres.EncodePayload(event)
	require.NoError(t, err)

	t.Run("stores decoded event under its id", func(t *testing.T) {
		sink := &recordingSink{}
		m := NewMaterializer(sink, discardLogger())

		require.NoError(t, m.Handle(context.Background(), &kafkaconsumer.Message{Value: payload}))
		require.Len(t, sink.events, 1)
		assert.Equal(t, event.ID, sink.events[0].ID)
		assert.Equal(t, id.CampaignID(3), sink.events[0].CampaignID)
		assert.Equal(t, id.Amount(50), sink.events[0].Amount)
		assert.Equal(t, audit.CategoryOperations, sink.events[0].Category)
		assert.NotEqual(t, uuid.Nil, sink.events[0].ID)
	})

	t.Run("commits malformed payloads", func(t *testing.T) {
		sink := &recordingSink{}
		m := NewMaterializer(sink, discardLogger())

		assert.NoError(t, m.Handle(context.Background(), &kafkaconsumer.Message{Value: []byte("{")}))
		assert.Empty(t, sink.events)
	})

	t.Run("returns store errors for redelivery", func(t *testing.T) {
		sink := &recordingSink{err: errors.New("db down")}
		m := NewMaterializer(sink, discardLogger())

		assert.Error(t, m.Handle(context.Background(), &kafkaconsumer.Message{Value: payload}))
	})
}
