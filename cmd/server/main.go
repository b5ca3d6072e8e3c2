package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"zvision-console/internal/config"
	"zvision-console/internal/logx"
	"zvision-console/internal/server"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, sync, err := logx.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal(err)
	}
	defer sync()

	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("build console", zap.Error(err))
	}
	defer app.Close()

	logger.Info("backend", zap.String("url", cfg.BackendURL))
	if err := server.Run(ctx, cfg, app.Handler, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
