package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"callbrief/internal/calls"
	"callbrief/internal/config"
	"callbrief/internal/notify"
	"callbrief/internal/pipeline"
	"callbrief/internal/queue"
	"callbrief/internal/settings"
	"callbrief/internal/storage"
	"callbrief/internal/summarize"
	"callbrief/internal/transcribe"
	"callbrief/pkg/logger"
	"callbrief/pkg/utils"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	blobs, err := storage.NewS3Gateway(rootCtx, storage.Config{
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		Endpoint:        cfg.Storage.Endpoint,
	})
	if err != nil {
		log.Error("storage init failed", "err", err)
		os.Exit(1)
	}

	store := calls.NewPostgresStore(db)
	settingsStore := settings.NewPostgresStore(db)
	taskQueue := queue.NewRedisQueue(rdb)

	transcriber := transcribe.NewDeepgram(cfg.Transcription.APIKey, cfg.Transcription.Model, cfg.Transcription.BaseURL)
	summarizer := summarize.NewService(summarize.NewAnthropic(cfg.Summarization.APIKey, cfg.Summarization.Model, cfg.Summarization.BaseURL))
	dispatcher := notify.NewDispatcher(store, settingsStore,
		notify.NewSendGrid(cfg.Email.APIKey, cfg.Email.FromAddress, ""),
		notify.NewTwilioWhatsApp(cfg.WhatsApp.AccountSID, cfg.WhatsApp.AuthToken, cfg.WhatsApp.FromNumber, ""),
	)
	orch := pipeline.NewOrchestrator(store, blobs, transcriber, summarizer, dispatcher, taskQueue, cfg.Summarization.DefaultLanguage)

	consumer := queue.NewConsumer(taskQueue, orch)
	workerCtx := logger.With(rootCtx, log)

	log.Info("worker starting", "env", cfg.App.Env)
	if err := consumer.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped", "err", err)
		os.Exit(1)
	}
	log.Info("worker stopped")
}
