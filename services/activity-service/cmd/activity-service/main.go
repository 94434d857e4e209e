package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/beanscout/beanscout/libs/config"
	"github.com/beanscout/beanscout/libs/db"
	"github.com/beanscout/beanscout/libs/events"
	"github.com/beanscout/beanscout/libs/httpx"
	"github.com/beanscout/beanscout/libs/inbox"
	"github.com/beanscout/beanscout/libs/kafkax"
	otelx "github.com/beanscout/beanscout/libs/otel"
	"github.com/beanscout/beanscout/libs/runtime"
	"github.com/beanscout/beanscout/services/activity-service/internal/consumer"
	"github.com/beanscout/beanscout/services/activity-service/internal/handlers"
	"github.com/beanscout/beanscout/services/activity-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "activity-service")
	port, err := config.Port("PORT", "8084")
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
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	feedRepo := storage.NewFeedRepository(pool)
	metricsRepo := storage.NewMetricsRepository(pool)
	ledger := inbox.NewLedger(pool)

	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		feedHandler := consumer.NewFeedHandler(pool, ledger, feedRepo, metricsRepo, logger)
		// Dedup happens inside the handler's transaction, so the consumer
		// runs without its own ledger check.
		feedConsumer := kafkax.NewConsumer(logger, nil, kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "activity-service"),
			Topics:  consumer.Topics(),
		}, feedHandler.Handle)
		go feedConsumer.Run(ctx)

		auditHandler := consumer.NewAuditHandler(pool, ledger, metricsRepo, logger)
		auditConsumer := kafkax.NewConsumer(logger, nil, kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_AUDIT_GROUP_ID", "activity-service-audit"),
			Topics:  []string{events.TypeAuditRecorded},
		}, auditHandler.Handle)
		go auditConsumer.Run(ctx)
	} else {
		logger.Warn("feed consumer disabled (no kafka brokers configured)")
	}

	httpHandler := handlers.New(feedRepo, metricsRepo)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/feed", httpHandler.GetFeed)
	mux.HandleFunc("/api/v1/feed/metrics", httpHandler.GetDailyMetrics)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "activity")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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
