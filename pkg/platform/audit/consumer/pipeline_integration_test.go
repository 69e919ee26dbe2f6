//go:build integration

package consumer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	kafkaconsumer "crowdfund/internal/platform/kafka/consumer"
	"crowdfund/internal/platform/kafka/outbox"
	"crowdfund/internal/platform/kafka/producer"
	id "crowdfund/pkg/domain"
	audit "crowdfund/pkg/platform/audit"
	"crowdfund/pkg/platform/audit/store/postgres"
	"crowdfund/pkg/testutil/containers"
)

// PipelineSuite drives an event from the outbox table through Kafka and back
// into audit_events.
type PipelineSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	kafka    *containers.KafkaContainer
	store    *postgres.Store
	logger   *slog.Logger
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.kafka = mgr.GetKafka(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *PipelineSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox", "audit_events"))
}

func (s *PipelineSuite) TestOutboxEventIsMaterialized() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	topic := "crowdfund.events.pipeline"

	s.Require().NoError(s.store.Append(ctx, audit.Event{
		Identity:   "0xcreator",
		Action:     string(audit.EventCampaignCreated),
		CampaignID: id.CampaignID(1),
		Amount:     id.Amount(100),
	}))

	p, err := producer.New(s.kafka.Brokers)
	s.Require().NoError(err)
	defer p.Close()
	s.Require().NoError(p.EnsureTopic(ctx, topic, 1, 1))

	worker := outbox.NewWorker(outbox.NewPostgresStore(s.postgres.DB), p, topic, s.logger)
	published, err := worker.Drain(ctx)
	s.Require().NoError(err)
	s.Equal(1, published)

	c, err := kafkaconsumer.New(s.kafka.Brokers, "pipeline-test", []string{topic}, s.logger)
	s.Require().NoError(err)
	defer c.Close()

	router := NewRouter(s.logger, nil)
	router.Register(topic, NewMaterializer(s.store, s.logger))

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.Run(runCtx, router) }()

	s.Eventually(func() bool {
		events, err := s.store.ListRecent(ctx, 10)
		return err == nil && len(events) == 1
	}, 30*time.Second, 200*time.Millisecond)

	stop()
	s.Require().NoError(<-done)

	events, err := s.store.ListRecent(ctx, 10)
	s.Require().NoError(err)
	s.Equal(string(audit.EventCampaignCreated), events[0].Action)
	s.Equal(audit.CategoryOperations, events[0].Category)
	s.EqualValues(100, events[0].Amount)

	again, err := worker.Drain(ctx)
	s.Require().NoError(err)
	s.Zero(again)
}
