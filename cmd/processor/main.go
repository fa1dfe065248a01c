package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"vehicle-telematics/processing/internal/auth"
	"vehicle-telematics/processing/internal/config"
	"vehicle-telematics/processing/internal/service"
	transporthttp "vehicle-telematics/processing/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	processor, err := service.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}

	if err := processor.Start(); err != nil {
		logger.Fatal("processor start failed", zap.Error(err))
	}

	authenticator := auth.NewAuthenticator(cfg, processor.Redis())
	server := transporthttp.NewServer(processor, logger)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Routes(transporthttp.NewAuthMiddleware(authenticator)),
	}

	go func() {
		logger.Info("operational endpoint listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}

	processor.Shutdown()
	logger.Info("shutdown complete")
}
