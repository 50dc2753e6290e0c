package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/casagrown/backend/internal/config"
	"github.com/casagrown/backend/internal/db"
	"github.com/casagrown/backend/internal/goroutine"
	httpHandlers "github.com/casagrown/backend/internal/http/handlers"
	httpRouter "github.com/casagrown/backend/internal/http/router"
	"github.com/casagrown/backend/internal/logger"
	"github.com/casagrown/backend/internal/repository"
	"github.com/casagrown/backend/internal/service"
	"github.com/casagrown/backend/internal/storage"
	"github.com/casagrown/backend/internal/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: failed to load configuration: %v", err)
	}

	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}
	goroutine.DefaultRecoveryHandler = goroutine.NewRecoveryHandler(logger.Log)

	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: failed to connect to the database: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: migrations failed: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	photoStorage, err := storage.NewPhotoStorage(cfg.MediaStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: failed to prepare file storage: %v", err)
	}

	// Repositories.
	userRepo := repository.NewUserRepository(dbConn)
	orderRepo := repository.NewOrderRepository(dbConn)
	escalationRepo := repository.NewEscalationRepository(dbConn)
	walletRepo := repository.NewWalletRepository(dbConn)
	conversationRepo := repository.NewConversationRepository(dbConn)
	mediaRepo := repository.NewMediaRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// WebSocket hub with persisted notifications.
	notificationService := service.NewNotificationService(notificationRepo)
	hub := ws.NewHub(ctx)
	hub.SetNotificationSaver(ws.NewNotificationServiceAdapter(notificationService))
	goroutine.SafeGo(hub.Run)

	// Services.
	authService := service.NewAuthService(userRepo, tokenManager)
	orderService := service.NewOrderService(orderRepo, walletRepo, conversationRepo, escalationRepo, hub)
	escalationService := service.NewEscalationService(orderRepo, escalationRepo, walletRepo, conversationRepo, hub)
	walletService := service.NewWalletService(walletRepo, orderRepo)
	conversationService := service.NewConversationService(conversationRepo, hub)

	// HTTP handlers.
	authHandler := httpHandlers.NewAuthHandler(authService)
	profileHandler := httpHandlers.NewProfileHandler(userRepo, hub)
	orderHandler := httpHandlers.NewOrderHandler(orderService)
	escalationHandler := httpHandlers.NewEscalationHandler(escalationService)
	walletHandler := httpHandlers.NewWalletHandler(walletService)
	conversationHandler := httpHandlers.NewConversationHandler(conversationService)
	mediaHandler := httpHandlers.NewMediaHandler(mediaRepo, photoStorage)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	engine := httpRouter.SetupRouter(
		cfg,
		authHandler,
		profileHandler,
		orderHandler,
		escalationHandler,
		walletHandler,
		conversationHandler,
		mediaHandler,
		notificationHandler,
		wsHandler,
		healthHandler,
		tokenManager,
	)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	goroutine.SafeGo(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: http server shutdown error: %v", err)
		}
	})

	log.Printf("main: HTTP server listening on port %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: server exited with error: %v", err)
	}
}

func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: failed to close the database: %v", err)
	}
}
