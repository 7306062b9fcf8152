package main

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/dentalcare/libs/auth"
	"github.com/md-rashed-zaman/dentalcare/libs/config"
	"github.com/md-rashed-zaman/dentalcare/libs/db"
	"github.com/md-rashed-zaman/dentalcare/libs/grpcx"
	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	"github.com/md-rashed-zaman/dentalcare/libs/kafkax"
	otelx "github.com/md-rashed-zaman/dentalcare/libs/otel"
	"github.com/md-rashed-zaman/dentalcare/libs/outbox"
	"github.com/md-rashed-zaman/dentalcare/libs/runtime"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/audit"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/handlers"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/sessions"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/storage"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/migrations"
)

func main() {
	if err := config.Load(""); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "auth-service")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9081")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		if _, err := db.Migrate(ctx, pool, migrations.FS, migrations.LockKey, logger); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
	}

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	signer := auth.NewSigner(jwtSecret, config.String("JWT_ISSUER", "dentalcare-auth"), config.Duration("ACCESS_TTL", 15*time.Minute))

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	outboxRepo := outbox.NewRepository()
	auditRepo := audit.NewRepository(pool)
	userRepo := storage.NewUserRepository(pool, auditRepo, outboxRepo)
	refreshRepo := sessions.NewRefreshRepository(pool)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if len(brokers) > 0 {
		writer := kafkax.NewWriter(brokers)
		defer writer.Close()
		publisher := outbox.NewPublisher(pool, outboxRepo, writer, logger, outbox.PublisherConfig{
			PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("KAFKA_BROKERS empty; outbox events stay queued")
	}

	health := grpcx.NewHealthServer(logger)
	health.SetServing(service, true)
	go func() {
		if err := health.Serve(ctx, ":"+grpcPort); err != nil {
			logger.Error("grpc health server error", "err", err)
		}
	}()

	mux := runtime.NewBaseMux(checks...)
	handlers.Register(mux,
		handlers.NewAuthHandler(signer, userRepo, refreshRepo, config.Duration("REFRESH_TTL", 720*time.Hour), logger),
		handlers.NewUsersHandler(userRepo, auditRepo, logger),
	)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	handler = otelhttp.NewHandler(handler, "auth")
	if err := runtime.Serve(ctx, logger, ":"+port, handler); err != nil {
		logger.Error("http server error", "err", err)
	}
	health.SetServing(service, false)
}
