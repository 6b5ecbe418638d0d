package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/mealbridge/api/internal/handlers"
	"github.com/mealbridge/api/internal/platform/auth"
	"github.com/mealbridge/api/internal/platform/config"
	pfirestore "github.com/mealbridge/api/internal/platform/firestore"
	"github.com/mealbridge/api/internal/platform/idempotency"
	"github.com/mealbridge/api/internal/platform/jobs"
	"github.com/mealbridge/api/internal/platform/observability"
	firestoreRepo "github.com/mealbridge/api/internal/repositories/firestore"
	"github.com/mealbridge/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load(ctx)
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	historyRepo, err := firestoreRepo.NewOrderHistoryRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order history repository", zap.Error(err))
	}
	catalogRepo, err := firestoreRepo.NewCatalogRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise catalog repository", zap.Error(err))
	}
	paymentRepo, err := firestoreRepo.NewPaymentRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise payment repository", zap.Error(err))
	}

	var eventPublisher services.OrderEventPublisher
	var pubsubClient *pubsub.Client
	if cfg.PubSub.Topic != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		topic := pubsubClient.Topic(cfg.PubSub.Topic)
		defer topic.Stop()
		eventPublisher, err = jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
	} else {
		logger.Info("order event publishing disabled; no topic configured")
	}

	serviceLogger := observability.ServiceLogger(logger.Named("services"))

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     orderRepo,
		History:    historyRepo,
		Catalog:    catalogRepo,
		UnitOfWork: firestoreProvider,
		Events:     eventPublisher,
		Logger:     serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	paymentService, err := services.NewPaymentService(services.PaymentServiceDeps{
		Payments:    paymentRepo,
		Orders:      orderRepo,
		UnitOfWork:  firestoreProvider,
		Logger:      serviceLogger,
		ExpireAfter: cfg.Payments.ExpireAfter,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment service", zap.Error(err))
	}

	sweeper, err := services.NewPaymentSweeper(services.PaymentSweeperDeps{
		Payments: paymentService,
		Interval: cfg.Payments.SweepInterval,
		Logger:   serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment sweeper", zap.Error(err))
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	var sweepWG sync.WaitGroup
	sweepWG.Add(1)
	go func() {
		defer sweepWG.Done()
		if err := sweeper.Run(sweepCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("payment sweeper stopped", zap.Error(err))
		}
	}()

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		logger.Fatal("failed to initialise token verifier", zap.Error(err))
	}
	requireAuth := verifier.RequireAuth()

	idempotencyStore, err := idempotency.NewFirestoreStore(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotent := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithLogger(observability.ServiceLogger(logger.Named("idempotency"))),
	)

	orderHandlers := handlers.NewOrderHandlers(orderService)
	shopOrderHandlers := handlers.NewShopOrderHandlers(orderService)
	paymentHandlers := handlers.NewPaymentHandlers(paymentService)

	healthHandlers := handlers.NewHealthHandlers()
	healthHandlers.AddReadinessCheck("firestore", func(ctx context.Context) error {
		iter := firestoreClient.Collections(ctx)
		if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
		return nil
	})

	projectID := cfg.Observability.ProjectID
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(func(r chi.Router) {
			r.Use(requireAuth)
			orderHandlers.Routes(r)
		}),
		handlers.WithShopOrderRoutes(func(r chi.Router) {
			r.Use(requireAuth)
			shopOrderHandlers.Routes(r)
		}),
		handlers.WithPaymentRoutes(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(idempotent)
			paymentHandlers.Routes(r)
		}),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("mealbridge api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	sweepCancel()
	sweepWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
