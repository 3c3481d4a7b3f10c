package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jun/socialnet/internal/app"
	"github.com/jun/socialnet/internal/config"
	"github.com/jun/socialnet/internal/logger"
)

func main() {
	service := flag.String("service", "all", "service to run: data, auth, user, push or all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	zl, err := logger.New(cfg.LogLevel, cfg.DevMode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	services := []string{*service}
	if *service == "all" {
		services = app.Services
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, zl, *service)
	if err != nil {
		zl.Fatal("Failed to initialize application", zap.Error(err))
	}

	if err := application.Serve(ctx, services...); err != nil {
		zl.Error("Server stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		zl.Warn("Failed to flush traces", zap.Error(err))
	}
	zl.Info("Server stopped")
}
