package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"crowdfund/internal/access"
	campaignAdapters "crowdfund/internal/campaign/adapters"
	campaignHandler "crowdfund/internal/campaign/handler"
	campaignMetrics "crowdfund/internal/campaign/metrics"
	campaignService "crowdfund/internal/campaign/service"
	campaignStore "crowdfund/internal/campaign/store"
	"crowdfund/internal/payout"
	"crowdfund/internal/platform/config"
	kafkaconsumer "crowdfund/internal/platform/kafka/consumer"
	"crowdfund/internal/platform/kafka/outbox"
	"crowdfund/internal/platform/kafka/producer"
	"crowdfund/internal/platform/postgres"
	redisplatform "crowdfund/internal/platform/redis"
	verificationCache "crowdfund/internal/verification/cache"
	verificationHandler "crowdfund/internal/verification/handler"
	verificationMetrics "crowdfund/internal/verification/metrics"
	verificationService "crowdfund/internal/verification/service"
	verificationStore "crowdfund/internal/verification/store"
	audit "crowdfund/pkg/platform/audit"
	auditconsumer "crowdfund/pkg/platform/audit/consumer"
	"crowdfund/pkg/platform/audit/publisher"
	auditmemory "crowdfund/pkg/platform/audit/store/memory"
	auditpostgres "crowdfund/pkg/platform/audit/store/postgres"
	"crowdfund/pkg/platform/tx"
)

const (
	topicPartitions  = 3
	topicReplication = 1
)

// infra holds the process-wide backing services. Only the in-memory pieces
// are guaranteed; postgres, redis and kafka are optional.
type infra struct {
	db       *sql.DB
	redis    *redisplatform.Client
	producer *producer.Producer
	consumer *kafkaconsumer.Consumer

	auditStore         audit.Store
	verificationStore  verificationService.Store
	campaignStore      campaignService.Store
	transferer         payout.Transferer
	verificationRunner tx.Runner
	campaignRunner     tx.Runner
}

type modules struct {
	publisher           *publisher.Publisher
	verificationHandler *verificationHandler.Handler
	campaignHandler     *campaignHandler.Handler
}

func buildInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	// A withdrawal holds its transaction open across the payout call.
	campaignTimeout := max(cfg.TxTimeout, cfg.PayoutTimeout+time.Second)

	i := &infra{}
	if cfg.UsePostgres() {
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		})
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		i.db = db
		i.auditStore = auditpostgres.New(db)
		i.verificationStore = verificationStore.NewPostgres(db)
		i.campaignStore = campaignStore.NewPostgres(db)
		i.transferer = payout.NewPostgresLedger(db)
		i.verificationRunner = tx.NewSQL(db, cfg.TxTimeout)
		i.campaignRunner = tx.NewSQL(db, campaignTimeout)
		log.Info("using postgres stores")
	} else {
		i.auditStore = auditmemory.NewInMemoryStore()
		i.verificationStore = verificationStore.NewInMemory()
		i.campaignStore = campaignStore.NewInMemory()
		i.transferer = payout.NewLedger()
		i.verificationRunner = tx.NewSharded(cfg.TxTimeout)
		i.campaignRunner = tx.NewSharded(campaignTimeout)
		log.Info("using in-memory stores")
	}

	if cfg.PayoutGatewayURL != "" {
		i.transferer = payout.NewHTTPGateway(cfg.PayoutGatewayURL, cfg.PayoutTimeout,
			payout.WithGatewayLogger(log),
		)
	}

	client, err := redisplatform.New(ctx, cfg.Redis)
	if err != nil {
		i.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	i.redis = client

	if len(cfg.Kafka.Brokers) > 0 {
		if i.db == nil {
			i.Close()
			return nil, errors.New("KAFKA_BROKERS requires DATABASE_URL for the outbox")
		}
		p, err := producer.New(cfg.Kafka.Brokers)
		if err != nil {
			i.Close()
			return nil, err
		}
		i.producer = p
		if err := p.EnsureTopic(ctx, cfg.Kafka.Topic, topicPartitions, topicReplication); err != nil {
			i.Close()
			return nil, fmt.Errorf("ensure topic %s: %w", cfg.Kafka.Topic, err)
		}
		c, err := kafkaconsumer.New(cfg.Kafka.Brokers, cfg.Kafka.Group, []string{cfg.Kafka.Topic}, log)
		if err != nil {
			i.Close()
			return nil, err
		}
		i.consumer = c
	}
	return i, nil
}

func buildModules(cfg config.Server, i *infra, controller *access.Controller, reg prometheus.Registerer, log *slog.Logger) (*modules, error) {
	pub := publisher.NewPublisher(i.auditStore, publisher.WithLogger(log))

	verificationOpts := []verificationService.Option{
		verificationService.WithLogger(log),
		verificationService.WithAuditPublisher(pub),
		verificationService.WithMetrics(verificationMetrics.New(reg)),
		verificationService.WithTx(i.verificationRunner),
	}
	if i.redis != nil {
		verificationOpts = append(verificationOpts,
			verificationService.WithApprovalCache(verificationCache.NewRedis(i.redis, cfg.ApprovalCacheTTL)))
	}
	verificationSvc := verificationService.New(i.verificationStore, controller, verificationOpts...)

	campaignSvc, err := campaignService.New(
		i.campaignStore,
		campaignAdapters.NewVerificationAdapter(verificationSvc),
		i.transferer,
		campaignService.WithLogger(log),
		campaignService.WithAuditPublisher(pub),
		campaignService.WithMetrics(campaignMetrics.New(reg)),
		campaignService.WithTx(i.campaignRunner),
	)
	if err != nil {
		return nil, err
	}

	return &modules{
		publisher:           pub,
		verificationHandler: verificationHandler.New(verificationSvc, pub, controller.Administrator(), log),
		campaignHandler:     campaignHandler.New(campaignSvc, log),
	}, nil
}

// startBackground launches the outbox worker and the dashboard consumer when
// kafka is configured.
func (i *infra) startBackground(ctx context.Context, g *errgroup.Group, cfg config.Server, log *slog.Logger) {
	if i.producer == nil {
		return
	}
	worker := outbox.NewWorker(outbox.NewPostgresStore(i.db), i.producer, cfg.Kafka.Topic, log)
	g.Go(func() error {
		return worker.Run(ctx)
	})

	router := auditconsumer.NewRouter(log, nil)
	router.Register(cfg.Kafka.Topic, auditconsumer.NewMaterializer(auditpostgres.New(i.db), log))
	g.Go(func() error {
		return i.consumer.Run(ctx, router)
	})
}

// Health pings every configured backing service.
func (i *infra) Health(ctx context.Context) error {
	if i.db != nil {
		if err := i.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if i.redis != nil {
		if err := i.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if i.producer != nil {
		if err := i.producer.Health(ctx); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
	}
	return nil
}

func (i *infra) Close() {
	if i.consumer != nil {
		i.consumer.Close()
	}
	if i.producer != nil {
		i.producer.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}
