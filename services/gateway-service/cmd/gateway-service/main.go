package main

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/dentalcare/libs/auth"
	"github.com/md-rashed-zaman/dentalcare/libs/config"
	"github.com/md-rashed-zaman/dentalcare/libs/grpcx"
	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	otelx "github.com/md-rashed-zaman/dentalcare/libs/otel"
	"github.com/md-rashed-zaman/dentalcare/libs/runtime"
)

type backend struct {
	name     string
	httpURL  string
	grpcAddr string
}

func main() {
	if err := config.Load(""); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
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

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	signer := auth.NewSigner(jwtSecret, config.String("JWT_ISSUER", "dentalcare-auth"), 0)

	backends := map[string]backend{
		"auth":    {"auth-service", config.String("AUTH_URL", "http://auth-service:8081"), config.String("AUTH_GRPC_ADDR", "auth-service:9081")},
		"clinic":  {"clinic-service", config.String("CLINIC_URL", "http://clinic-service:8082"), config.String("CLINIC_GRPC_ADDR", "clinic-service:9082")},
		"billing": {"billing-service", config.String("BILLING_URL", "http://billing-service:8084"), config.String("BILLING_GRPC_ADDR", "billing-service:9084")},
		"luzia":   {"luzia-service", config.String("LUZIA_URL", "http://luzia-service:8085"), config.String("LUZIA_GRPC_ADDR", "luzia-service:9085")},
	}

	transport := otelhttp.NewTransport(http.DefaultTransport)
	proxies := map[string]http.Handler{}
	var checks []runtime.ReadyCheck
	for key, b := range backends {
		target, err := url.Parse(b.httpURL)
		if err != nil {
			panic(err)
		}
		proxies[key] = newProxy(target, transport, logger)

		if b.grpcAddr == "" {
			continue
		}
		conn, err := grpcx.Dial(b.grpcAddr, grpcx.DialOptions{})
		if err != nil {
			logger.Error("grpc dial failed", "err", err, "backend", b.name)
			continue
		}
		defer conn.Close()
		checks = append(checks, runtime.ReadyCheck{Name: b.name, Check: grpcx.HealthCheck(conn, b.name)})
	}

	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	publicPerMinute := config.Int("AUTH_RATE_LIMIT_PER_MINUTE", 20)
	failOpen := config.Bool("RATE_LIMIT_FAIL_OPEN", true)
	var limiter, publicLimiter httpx.Limiter
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		prefix := config.String("RATE_LIMIT_PREFIX", "rl")
		limiter = httpx.NewRedisLimiter(rdb, perMinute, time.Minute, prefix)
		publicLimiter = httpx.NewRedisLimiter(rdb, publicPerMinute, time.Minute, prefix+":auth")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("rate limiting enabled (redis)", "per_minute", perMinute, "auth_per_minute", publicPerMinute)
	} else {
		limiter = httpx.NewMemoryLimiter(perMinute, time.Minute)
		publicLimiter = httpx.NewMemoryLimiter(publicPerMinute, time.Minute)
		logger.Info("rate limiting enabled (in-memory)", "per_minute", perMinute, "auth_per_minute", publicPerMinute)
	}

	mux := runtime.NewBaseMux(checks...)
	registerRoutes(mux, upstreams{
		auth:    proxies["auth"],
		clinic:  proxies["clinic"],
		billing: proxies["billing"],
		luzia:   proxies["luzia"],
	}, signer, httpx.WithRateLimit(publicLimiter, httpx.ClientIP, logger, failOpen))

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", nil),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Request-Id", "Idempotency-Key", "X-Search-Generation"}),
			ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
		httpx.WithRateLimit(limiter, httpx.ClientIP, logger, failOpen),
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	if err := runtime.Serve(ctx, logger, ":"+port, handler); err != nil {
		logger.Error("http server error", "err", err)
	}
}
