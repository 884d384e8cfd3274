package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/frontdesk/internal/booking"
	"github.com/md-rashed-zaman/frontdesk/internal/capacity"
	"github.com/md-rashed-zaman/frontdesk/internal/changefeed"
	"github.com/md-rashed-zaman/frontdesk/internal/checkin"
	"github.com/md-rashed-zaman/frontdesk/internal/handlers"
	"github.com/md-rashed-zaman/frontdesk/internal/notify"
	"github.com/md-rashed-zaman/frontdesk/internal/outbox"
	"github.com/md-rashed-zaman/frontdesk/internal/payments"
	"github.com/md-rashed-zaman/frontdesk/internal/storage"
	"github.com/md-rashed-zaman/frontdesk/libs/config"
	"github.com/md-rashed-zaman/frontdesk/libs/db"
	"github.com/md-rashed-zaman/frontdesk/libs/httpx"
	"github.com/md-rashed-zaman/frontdesk/libs/kafkax"
	otelx "github.com/md-rashed-zaman/frontdesk/libs/otel"
	"github.com/md-rashed-zaman/frontdesk/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "frontdeskd")
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 1)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := config.String("KAFKA_BROKERS", "")

	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	apptRepo := storage.NewAppointmentRepository(pool, outboxRepo)
	leadRepo := storage.NewLeadRepository(pool, outboxRepo)
	paymentRepo := storage.NewPaymentRepository(pool, outboxRepo)
	dayRepo := storage.NewServiceDayRepository(pool)
	counterQueries := storage.NewCounterQueries(pool)

	ledger := capacity.NewLedger(apptRepo)
	booker := booking.NewService(apptRepo, dayRepo, ledger, logger)
	workflow := checkin.NewWorkflow(apptRepo, logger)

	var feed changefeed.Feed = changefeed.NopFeed{}
	if brokers != "" {
		kafkaFeed, err := changefeed.NewKafkaFeed(logger, changefeed.KafkaConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "frontdesk"),
		})
		if err != nil {
			logger.Error("kafka feed init failed; counters fall back to polling", "err", err)
		} else {
			feed = kafkaFeed
		}
	} else {
		logger.Warn("no kafka brokers configured; counters fall back to polling")
	}

	aggregator := notify.NewAggregator(counterQueries, feed, logger, notify.Options{
		ReconcileInterval: config.Duration("NOTIFY_RECONCILE_INTERVAL", notify.DefaultReconcileInterval),
	})
	if err := aggregator.Start(ctx); err != nil {
		logger.Error("notification aggregator start failed", "err", err)
		panic(err)
	}
	defer aggregator.Stop()

	stripeReconciler := payments.NewStripeReconciler(pool, paymentRepo, logger, payments.StripeReconcilerConfig{
		StripeSecretKey: config.String("STRIPE_SECRET_KEY", ""),
		AdvisoryLockKey: int64(config.Int("STRIPE_ADVISORY_LOCK_KEY", 0)),
	})
	go stripeReconciler.Run(ctx, config.Duration("STRIPE_RECONCILE_INTERVAL", 15*time.Minute))

	frontdesk := handlers.NewFrontdeskHandler(ledger, dayRepo, leadRepo, apptRepo, booker, workflow, aggregator, logger)

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer rdb.Close()
	}

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	frontdesk.Register(mux)

	rateLimit := rateLimitMiddleware(rdb, logger)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("HTTP_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitCSV(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		rateLimit,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "frontdesk")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// rateLimitMiddleware prefers the Redis-backed limiter so multiple instances
// share one budget; without Redis each instance enforces its own.
func rateLimitMiddleware(rdb *redis.Client, logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	window := time.Minute

	if rdb == nil {
		return httpx.NewRateLimiter(limit, window).Middleware()
	}
	return httpx.NewRedisRateLimiter(rdb, limit, window, "frontdesk").Middleware(logger, true)
}
