package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/api/handlers"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/api/routes"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/config"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/app"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/service/intake"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/utils/validator"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/status"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/storage"
)

func main() {
	// init logger
	log, err := app.NewLogger(config.LogLevel(), "logs/app.log")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.LoadIntake()
	if err != nil {
		log.Fatal("Invalid configuration", logger.Error(err))
	}

	ctx := context.Background()
	clients, err := app.NewClients(ctx, cfg.Submitter.AWS, log)
	if err != nil {
		log.Fatal("Failed to load AWS config", logger.Error(err))
	}

	// 状态跟踪: 未配置 Redis 时保存在内存中
	tracker := app.NewTracker(cfg.Submitter.Redis, status.NewMemoryTracker())

	submitter, err := app.NewSubmitter(clients, &cfg.Submitter, tracker)
	if err != nil {
		log.Fatal("Failed to create submitter", logger.Error(err))
	}
	store, err := storage.NewStorage(ctx, cfg.Storage, clients.AWS, cfg.Submitter.DocumentBucket, clients.Exec, log.Named("storage"))
	if err != nil {
		log.Fatal("Failed to initialize storage", logger.Error(err))
	}

	v := validator.NewDocumentValidator(log, &validator.ValidatorConfig{
		MaxFileSize:  cfg.MaxFileSize,
		AllowedTypes: validator.DefaultConfig().AllowedTypes,
		MaxPageCount: cfg.MaxPages,
	})
	svc := intake.NewService(store, submitter, v, tracker, log.Named("intake"))

	// init handlers
	h := handlers.NewHandlers(svc, log)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = 32 << 20
	routes.SetupRoutes(r, h, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
