package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"crowdfund/internal/access"
	"crowdfund/internal/jwt_token"
	"crowdfund/internal/platform/config"
	"crowdfund/internal/platform/httpserver"
	"crowdfund/internal/platform/logger"
	"crowdfund/internal/platform/metrics"
	"crowdfund/internal/platform/tracing"
	id "crowdfund/pkg/domain"
	adminmw "crowdfund/pkg/platform/middleware/admin"
	authmw "crowdfund/pkg/platform/middleware/auth"
	"crowdfund/pkg/platform/middleware/metadata"
	httpmetrics "crowdfund/pkg/platform/middleware/metrics"
	request "crowdfund/pkg/platform/middleware/request"
	"crowdfund/pkg/platform/middleware/requesttime"
)

const shutdownTimeout = 10 * time.Second

// main wires dependencies and runs the HTTP server alongside the optional
// outbox worker and dashboard consumer. Business logic lives in internal
// service packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	log := logger.New(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, "crowdfund", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	administrator, err := id.ParseIdentity(cfg.AdminIdentity)
	if err != nil {
		return fmt.Errorf("ADMIN_IDENTITY: %w", err)
	}
	controller, err := access.New(administrator)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	infra, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	mods, err := buildModules(cfg, infra, controller, reg, log)
	if err != nil {
		return err
	}

	if cfg.JWT.UsesDefaultKey() {
		log.Warn("JWT_SIGNING_KEY is unset; tokens are signed with the public development key")
	}
	jwtValidator := jwttoken.NewMiddlewareValidator(jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer))

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(log))
	r.Use(httpmetrics.New(reg).Middleware)

	r.Handle("/metrics", metrics.Handler(reg))
	r.Get("/healthz", infra.healthHandler(log))

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireIdentity(jwtValidator, log))
		mods.verificationHandler.Register(r)
		mods.campaignHandler.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(adminmw.RequireAdministrator(controller, mods.publisher, log))
			mods.verificationHandler.RegisterAdmin(r)
		})
	})

	g, gctx := errgroup.WithContext(ctx)
	infra.startBackground(gctx, g, cfg, log)

	srv := httpserver.New(cfg.Addr, r)
	// Open event streams end before the server waits for active requests.
	srv.RegisterOnShutdown(mods.publisher.Close)
	g.Go(func() error {
		log.InfoContext(gctx, "starting crowdfund",
			"addr", cfg.Addr,
			"postgres", cfg.UsePostgres(),
			"redis", infra.redis != nil,
			"kafka", len(cfg.Kafka.Brokers) > 0,
			"payout_gateway", cfg.PayoutGatewayURL != "",
		)
		return httpserver.Run(gctx, srv, shutdownTimeout)
	})

	err = g.Wait()
	mods.publisher.Close()
	return err
}

func (i *infra) healthHandler(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := i.Health(ctx); err != nil {
			log.WarnContext(ctx, "health check failed", "error", err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
