package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"modelmine/internal/agent"
	"modelmine/pkg/config"
	"modelmine/pkg/logger"
)

func main() {
	if err := logger.Init(config.LoggerConfig{Level: getEnv("LOG_LEVEL", "info"), Output: "console"}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	hostname, _ := os.Hostname()
	cfg := agent.Config{
		APIURL:   getEnv("API_URL", "http://localhost:4000/api/v1"),
		APIKey:   os.Getenv("API_KEY"),
		Name:     getEnv("NODE_NAME", fmt.Sprintf("node-%s-%d", hostname, time.Now().UnixMilli())),
		Interval: agent.DefaultHeartbeatInterval,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.InfoCtx(ctx, "starting node agent, api: %s, name: %s", cfg.APIURL, cfg.Name)
	if err := agent.New(cfg, nil).Run(ctx); err != nil {
		logger.FatalCtx(ctx, "node agent failed: %v", err)
	}
	logger.InfoCtx(ctx, "node agent stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
