package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"callbrief/internal/auth"
	"callbrief/internal/calls"
	"callbrief/internal/config"
	"callbrief/internal/httpapi"
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
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

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

	// The API only enqueues; the worker binary consumes.
	taskQueue := queue.NewRedisQueue(rdb)

	transcriber := transcribe.NewDeepgram(cfg.Transcription.APIKey, cfg.Transcription.Model, cfg.Transcription.BaseURL)
	summarizer := summarize.NewService(summarize.NewAnthropic(cfg.Summarization.APIKey, cfg.Summarization.Model, cfg.Summarization.BaseURL))
	dispatcher := notify.NewDispatcher(store, settingsStore,
		notify.NewSendGrid(cfg.Email.APIKey, cfg.Email.FromAddress, ""),
		notify.NewTwilioWhatsApp(cfg.WhatsApp.AccountSID, cfg.WhatsApp.AuthToken, cfg.WhatsApp.FromNumber, ""),
	)
	orch := pipeline.NewOrchestrator(store, blobs, transcriber, summarizer, dispatcher, taskQueue, cfg.Summarization.DefaultLanguage)

	callService := calls.NewService(store, blobs, orch,
		settings.LanguageSource{Store: settingsStore}, cfg.MaxUploadBytes(), cfg.Upload.AllowedFormats)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:     authManager,
		Calls:    callService,
		Store:    store,
		Settings: settingsStore,
		Notify:   dispatcher,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
