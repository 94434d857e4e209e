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
	"github.com/beanscout/beanscout/services/notification-service/internal/consumer"
	"github.com/beanscout/beanscout/services/notification-service/internal/email"
	"github.com/beanscout/beanscout/services/notification-service/internal/storage"
	"github.com/beanscout/beanscout/services/notification-service/internal/webhook"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	ledger := inbox.NewLedger(pool)
	notificationsRepo := storage.NewRepository(pool)

	smtpHost := config.String("SMTP_HOST", "mailpit")
	smtpPort := config.String("SMTP_PORT", "1025")
	smtpFrom := config.String("SMTP_FROM", "no-reply@beanscout.local")
	emailSender := email.NewSMTPSender(smtpHost, smtpPort, smtpFrom)

	var notifier webhook.Notifier
	if url := config.String("MODERATION_WEBHOOK_URL", ""); url != "" {
		notifier = webhook.NewWebhookNotifier(url, config.String("MODERATION_WEBHOOK_TOKEN", ""))
	} else {
		notifier = webhook.NewNoopNotifier()
	}

	brokers, err := config.RequiredString("KAFKA_BROKERS")
	if err != nil {
		panic(err)
	}
	groupID := config.String("KAFKA_GROUP_ID", "notification-service")

	// Handlers record the inbox mark with their own writes, so the
	// consumers run without a ledger of their own.
	welcomeHandler := consumer.NewWelcomeHandler(pool, ledger, notificationsRepo, emailSender, logger)
	welcomeConsumer := kafkax.NewConsumer(logger, nil, kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: groupID,
		Topics:  []string{events.TypeUserRegistered},
	}, welcomeHandler.Handle)
	go welcomeConsumer.Run(ctx)

	// Separate group so the two subscriptions rebalance independently.
	approvalHandler := consumer.NewApprovalHandler(pool, ledger, notificationsRepo, notifier, logger)
	approvedConsumer := kafkax.NewConsumer(logger, nil, kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: groupID + "-moderation",
		Topics:  []string{events.TypeShopApproved},
	}, approvalHandler.Handle)
	go approvedConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
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
