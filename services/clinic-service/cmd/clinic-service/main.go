package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/dentalcare/libs/config"
	"github.com/md-rashed-zaman/dentalcare/libs/db"
	"github.com/md-rashed-zaman/dentalcare/libs/events"
	"github.com/md-rashed-zaman/dentalcare/libs/grpcx"
	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	"github.com/md-rashed-zaman/dentalcare/libs/kafkax"
	otelx "github.com/md-rashed-zaman/dentalcare/libs/otel"
	"github.com/md-rashed-zaman/dentalcare/libs/outbox"
	"github.com/md-rashed-zaman/dentalcare/libs/runtime"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/catalog"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/cep"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/directory"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/handlers"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/search"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/storage"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/migrations"
)

func main() {
	if err := config.Load(""); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "clinic-service")
	port, err := config.Port("PORT", "8082")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9082")
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

	var (
		tracker search.Tracker = search.NewMemoryTracker()
		cepOpts []cep.Option
	)
	cepOpts = append(cepOpts, cep.WithTimeout(config.Duration("CEP_TIMEOUT", cep.DefaultTimeout)))
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		tracker = search.NewRedisTracker(rdb, config.Duration("SEARCH_GENERATION_TTL", time.Hour))
		cepOpts = append(cepOpts, cep.WithCache(cep.NewRedisCache(rdb, config.Duration("CEP_CACHE_TTL", 24*time.Hour))))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("redis enabled", "redis_addr", addr)
	} else {
		logger.Warn("REDIS_ADDR empty; search generations and cep cache stay in process")
	}

	outboxRepo := outbox.NewRepository()
	clinics := storage.NewClinicRepository(pool)
	patients := storage.NewPatientRepository(pool)
	professionals := storage.NewProfessionalRepository(pool)

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	if len(brokers) > 0 {
		writer := kafkax.NewWriter(brokers)
		defer writer.Close()
		publisher := outbox.NewPublisher(pool, outboxRepo, writer, logger, outbox.PublisherConfig{
			PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)

		reader := kafkax.NewReader(kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topics:  []string{events.ClinicCreated},
		})
		consumer := kafkax.NewConsumer(reader, outbox.NewInbox(pool), logger, directory.Handler(clinics))
		go consumer.Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("KAFKA_BROKERS empty; outbox events stay queued and the clinic directory is not fed")
	}

	health := grpcx.NewHealthServer(logger)
	health.SetServing(service, true)
	go func() {
		if err := health.Serve(ctx, ":"+grpcPort); err != nil {
			logger.Error("grpc health server error", "err", err)
		}
	}()

	api := handlers.NewRouter(handlers.Deps{
		Patients:      patients,
		Professionals: professionals,
		Services:      storage.NewServiceRepository(pool),
		Categories:    storage.NewCategoryRepository(pool),
		Suppliers:     storage.NewSupplierRepository(pool),
		Inventory:     storage.NewInventoryRepository(pool),
		Appointments:  storage.NewAppointmentRepository(pool, outboxRepo),
		Zones:         clinics,
		Config:        storage.NewConfigRepository(pool),
		Search:        search.NewService(patients, professionals, tracker),
		Address:       cep.NewClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}, logger, cepOpts...),
		Insurers:      catalog.NewInsurers(storage.NewInsurerRepository(pool), config.Duration("INSURER_CACHE_TTL", 10*time.Minute), logger),
		Summary:       storage.NewDashboardRepository(pool),
		Logger:        logger,
	})
	mux := runtime.NewBaseMux(checks...)
	mux.Handle("/api/v1/", api)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
	)
	handler = otelhttp.NewHandler(handler, "clinic")
	if err := runtime.Serve(ctx, logger, ":"+port, handler); err != nil {
		logger.Error("http server error", "err", err)
	}
	health.SetServing(service, false)
}
