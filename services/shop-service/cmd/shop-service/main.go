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
	"github.com/beanscout/beanscout/libs/kafkax"
	otelx "github.com/beanscout/beanscout/libs/otel"
	"github.com/beanscout/beanscout/libs/outbox"
	"github.com/beanscout/beanscout/libs/runtime"
	"github.com/beanscout/beanscout/services/shop-service/internal/consumer"
	"github.com/beanscout/beanscout/services/shop-service/internal/handlers"
	"github.com/beanscout/beanscout/services/shop-service/internal/policy"
	"github.com/beanscout/beanscout/services/shop-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "shop-service")
	port, err := config.Port("PORT", "8082")
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

	shopRepo := storage.NewShopRepository(pool)
	reviewRepo := storage.NewReviewRepository(pool)
	checkinRepo := storage.NewCheckinRepository(pool)
	photoRepo := storage.NewPhotoRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	// Shop outbox rows are drained by the standalone outbox-worker, which
	// shares this database. Only the consumer side runs in-process here.
	policyProvider, err := policy.NewModerationPolicyProvider(logger,
		config.Int("REVIEW_DAILY_LIMIT", 5),
		config.String("MODERATION_GRPC_ADDR", ""),
	)
	if err != nil {
		logger.Error("failed to init policy provider", "err", err)
		panic(err)
	}

	httpHandler := handlers.New(pool, shopRepo, reviewRepo, checkinRepo, photoRepo, outboxRepo, policyProvider)

	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		// Attaches are ON CONFLICT DO NOTHING keyed by photo id, so
		// redelivery is absorbed without a consumer ledger.
		photoHandler := consumer.NewPhotoHandler(photoRepo, logger)
		photoConsumer := kafkax.NewConsumer(logger, nil, kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "shop-service"),
			Topics:  []string{events.TypeShopPhotosUploaded},
		}, photoHandler.Handle)
		go photoConsumer.Run(ctx)
	} else {
		logger.Warn("photo consumer disabled (no kafka brokers configured)")
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/shops", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			httpHandler.SubmitShop(w, r)
			return
		}
		if r.Method == http.MethodGet {
			httpHandler.ListShops(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	mux.HandleFunc("/api/v1/shops/detail", httpHandler.GetShop)
	mux.HandleFunc("/api/v1/shops/pending", httpHandler.ListPendingShops)
	mux.HandleFunc("/api/v1/shops/approve", httpHandler.ApproveShop)
	mux.HandleFunc("/api/v1/shops/reject", httpHandler.RejectShop)
	mux.HandleFunc("/api/v1/shops/reviews", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			httpHandler.CreateReview(w, r)
			return
		}
		if r.Method == http.MethodGet {
			httpHandler.ListReviews(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	mux.HandleFunc("/api/v1/shops/checkins", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			httpHandler.CreateCheckin(w, r)
			return
		}
		if r.Method == http.MethodGet {
			httpHandler.ListCheckins(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	mux.HandleFunc("/api/v1/shops/photos", httpHandler.ListPhotos)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "shop")
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
