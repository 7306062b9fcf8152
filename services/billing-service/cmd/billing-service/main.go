package main

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/dentalcare/libs/config"
	"github.com/md-rashed-zaman/dentalcare/libs/db"
	"github.com/md-rashed-zaman/dentalcare/libs/grpcx"
	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	"github.com/md-rashed-zaman/dentalcare/libs/kafkax"
	otelx "github.com/md-rashed-zaman/dentalcare/libs/otel"
	"github.com/md-rashed-zaman/dentalcare/libs/outbox"
	"github.com/md-rashed-zaman/dentalcare/libs/runtime"
	"github.com/md-rashed-zaman/dentalcare/services/billing-service/internal/checkout"
	"github.com/md-rashed-zaman/dentalcare/services/billing-service/internal/handlers"
	"github.com/md-rashed-zaman/dentalcare/services/billing-service/internal/payments"
	"github.com/md-rashed-zaman/dentalcare/services/billing-service/internal/reconcile"
	"github.com/md-rashed-zaman/dentalcare/services/billing-service/internal/storage"
	"github.com/md-rashed-zaman/dentalcare/services/billing-service/migrations"
)

func main() {
	if err := config.Load(""); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "billing-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9084")
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

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	outboxRepo := outbox.NewRepository()
	repo := storage.NewRepository(pool, outboxRepo)

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
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
		logger.Warn("KAFKA_BROKERS empty; payment events stay queued in the outbox")
	}

	var gateway *checkout.Stripe
	if key := config.String("STRIPE_SECRET_KEY", ""); key != "" {
		gateway = checkout.NewStripe(checkout.NewClient(key, nil), checkout.Config{
			SuccessURL: config.String("CHECKOUT_SUCCESS_URL", "http://localhost:3000/pagamentos/sucesso"),
			CancelURL:  config.String("CHECKOUT_CANCEL_URL", "http://localhost:3000/pagamentos/cancelado"),
		})
	} else {
		logger.Warn("STRIPE_SECRET_KEY empty; payment links will fail with a provider error")
	}

	if gateway != nil && config.Bool("STRIPE_RECONCILE_ENABLED", true) {
		rec := reconcile.NewStripeReconciler(repo, gateway, logger, reconcile.Config{
			Interval:  config.Duration("STRIPE_RECONCILE_INTERVAL", 5*time.Minute),
			BatchSize: config.Int("STRIPE_RECONCILE_BATCH_SIZE", 50),
			MinAge:    config.Duration("STRIPE_RECONCILE_MIN_AGE", 10*time.Minute),
			LockKey:   int64(config.Int("STRIPE_RECONCILE_LOCK_KEY", 4242001)),
		})
		go rec.Run(ctx)
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
		handlers.NewPaymentsHandler(payments.NewService(repo, gateway, logger), repo, logger),
		handlers.NewWebhookHandler(repo, config.String("STRIPE_WEBHOOK_SECRET", ""), config.Duration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute), logger),
	)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 20*time.Second)),
	)
	handler = otelhttp.NewHandler(handler, "billing")
	if err := runtime.Serve(ctx, logger, ":"+port, handler); err != nil {
		logger.Error("http server error", "err", err)
	}
	health.SetServing(service, false)
}
