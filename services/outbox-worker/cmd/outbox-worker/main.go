// outbox-worker drains outbox rows for services that do not run a drainer
// in-process. It shares the owning service's database, claims rows under
// a lease and publishes them to Kafka; several workers may run at once.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/beanscout/beanscout/libs/config"
	"github.com/beanscout/beanscout/libs/db"
	"github.com/beanscout/beanscout/libs/events"
	"github.com/beanscout/beanscout/libs/httpx"
	"github.com/beanscout/beanscout/libs/kafkax"
	otelx "github.com/beanscout/beanscout/libs/otel"
	"github.com/beanscout/beanscout/libs/outbox"
	"github.com/beanscout/beanscout/libs/runtime"
)

func main() {
	service := config.String("SERVICE_NAME", "outbox-worker")
	port, err := config.Port("PORT", "8090")
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

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	if len(brokers) == 0 {
		logger.Error("KAFKA_BROKERS is required")
		panic("KAFKA_BROKERS is required")
	}

	outboxRepo := outbox.NewRepositoryForTable(pool, config.String("OUTBOX_TABLE", outbox.DefaultTable))
	publisher := outbox.NewKafkaPublisher(brokers)
	defer func() { _ = publisher.Close() }()

	drainer := outbox.NewDrainer(outboxRepo, events.NewRegistry(), publisher, logger, outbox.Config{
		Owner:       config.String("OUTBOX_OWNER", ""),
		PollEvery:   config.Seconds("OUTBOX_POLL_SECONDS", 2*time.Second),
		BatchSize:   config.Int("OUTBOX_BATCH_SIZE", 50),
		ClaimLease:  config.Seconds("OUTBOX_CLAIM_LEASE_SECONDS", 30*time.Second),
		MaxAttempts: config.Int("OUTBOX_MAX_ATTEMPTS", 10),
		RetryBase:   config.Seconds("OUTBOX_RETRY_BASE_SECONDS", 5*time.Second),
		RetryCap:    config.Seconds("OUTBOX_RETRY_CAP_SECONDS", 300*time.Second),
	})
	go drainer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/internal/outbox/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		pending, err := outboxRepo.PendingCount(r.Context())
		if err != nil {
			http.Error(w, "failed to count pending rows", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"pending": pending})
	})
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "outbox-worker")
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
