package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/dentalcare/libs/config"
	"github.com/md-rashed-zaman/dentalcare/libs/events"
	"github.com/md-rashed-zaman/dentalcare/libs/grpcx"
	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	"github.com/md-rashed-zaman/dentalcare/libs/kafkax"
	otelx "github.com/md-rashed-zaman/dentalcare/libs/otel"
	"github.com/md-rashed-zaman/dentalcare/libs/runtime"
	"github.com/md-rashed-zaman/dentalcare/services/luzia-service/internal/handlers"
	"github.com/md-rashed-zaman/dentalcare/services/luzia-service/internal/luzia"
	"github.com/md-rashed-zaman/dentalcare/services/luzia-service/internal/mail"
	"github.com/md-rashed-zaman/dentalcare/services/luzia-service/internal/store"
)

func main() {
	if err := config.Load(""); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "luzia-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9085")
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
	gdb, err := store.Open(dbURL, logger, store.Options{
		MaxOpenConns:    config.Int("DB_MAX_CONNS", 10),
		MaxIdleConns:    config.Int("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: config.Duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer sqlDB.Close()
	}
	if config.Bool("MIGRATE_ON_START", true) {
		if err := store.Migrate(ctx, gdb); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
	}
	st := store.New(gdb)
	checks := []runtime.ReadyCheck{{Name: "db", Check: store.Ping(gdb)}}

	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   config.Duration("WHATSAPP_TIMEOUT", 5*time.Second),
	}
	var messenger luzia.Messenger = luzia.NoopSender{}
	switch provider := config.String("WHATSAPP_PROVIDER", "noop"); provider {
	case "webhook":
		messenger = luzia.NewWebhookSender(config.String("WHATSAPP_WEBHOOK_URL", ""), httpClient)
	case "noop":
		logger.Warn("WHATSAPP_PROVIDER=noop; messages are logged as sent without delivery")
	default:
		logger.Warn("unknown WHATSAPP_PROVIDER, using noop", "provider", provider)
	}
	dispatcher := luzia.NewDispatcher(st, messenger, logger)

	worker := luzia.NewReminderWorker(st, dispatcher, logger, luzia.WorkerConfig{
		Interval:    config.Duration("REMINDER_POLL_EVERY", 30*time.Second),
		BatchSize:   config.Int("REMINDER_BATCH_SIZE", 50),
		Backoff:     config.Duration("REMINDER_BACKOFF", 5*time.Minute),
		MaxAttempts: config.Int("REMINDER_MAX_ATTEMPTS", 3),
	})
	go worker.Run(ctx)

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	if len(brokers) > 0 {
		group := config.String("KAFKA_GROUP_ID", service)
		appointments := kafkax.NewConsumer(kafkax.NewReader(kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: group + "-appointments",
			Topics:  events.AppointmentTopics,
		}), st, logger, dispatcher.Handler())
		go appointments.Run(ctx)

		sender := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     config.String("SMTP_HOST", "mailpit"),
			Port:     config.String("SMTP_PORT", "1025"),
			From:     config.String("SMTP_FROM", "no-reply@dentalcare.local"),
			Username: config.String("SMTP_USERNAME", ""),
			Password: config.String("SMTP_PASSWORD", ""),
			Timeout:  config.Duration("SMTP_TIMEOUT", 10*time.Second),
		})
		accounts := kafkax.NewConsumer(kafkax.NewReader(kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: group + "-accounts",
			Topics:  events.AuthTopics,
		}), st, logger, mail.Handler(sender, st, config.String("APP_URL", "http://localhost:3000"), logger))
		go accounts.Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("KAFKA_BROKERS empty; appointment and account events are not consumed")
	}

	health := grpcx.NewHealthServer(logger)
	health.SetServing(service, true)
	go func() {
		if err := health.Serve(ctx, ":"+grpcPort); err != nil {
			logger.Error("grpc health server error", "err", err)
		}
	}()

	mux := runtime.NewBaseMux(checks...)
	handlers.Register(mux, handlers.New(st, st, st, logger))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
	)
	handler = otelhttp.NewHandler(handler, "luzia")
	if err := runtime.Serve(ctx, logger, ":"+port, handler); err != nil {
		logger.Error("http server error", "err", err)
	}
	health.SetServing(service, false)
}
