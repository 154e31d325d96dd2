package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"callbrief/internal/agent"
	"callbrief/pkg/logger"
)

func main() {
	configPath := flag.String("config", "agent.yaml", "path to the agent config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := agent.LoadConfig(*configPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New("development")
	slog.SetDefault(log)

	watcher := agent.NewWatcher(cfg, agent.NewUploader(cfg))
	if err := watcher.Run(logger.With(rootCtx, log)); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("agent stopped", "err", err)
		os.Exit(1)
	}
	log.Info("agent stopped")
}
