package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voiceops/internal/alerting"
	"voiceops/internal/auth"
	"voiceops/internal/broadcast"
	"voiceops/internal/calls"
	"voiceops/internal/config"
	"voiceops/internal/dispatch"
	"voiceops/internal/events"
	"voiceops/pkg/logger"
	"voiceops/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// idleWatchInterval is how often the monitor samples stream liveness.
const idleWatchInterval = time.Minute

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

	callStore := calls.NewPostgresStore(db)
	eventStore := events.NewPostgresStore(db)

	// Redis is optional: without it the pipeline leans on the store's
	// unique constraints alone.
	var pipelineOpts []dispatch.Option
	if addr := cfg.RedisAddr(); addr != "" {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: addr})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		pipelineOpts = append(pipelineOpts, dispatch.WithDeduper(dispatch.NewRedisDeduper(rdb, 0)))
	}

	var notifier alerting.Notifier
	if cfg.Alerting.SlackBotToken != "" {
		notifier = alerting.NewSlackNotifier(cfg.Alerting.SlackBotToken, cfg.Alerting.SlackChannelID)
	}
	monitor := alerting.NewMonitor(alerting.Config{
		SlowThreshold:   cfg.Alerting.SlowThreshold,
		IdleThreshold:   cfg.Alerting.IdleThreshold,
		ActiveStartHour: cfg.Alerting.ActiveStartHour,
		ActiveEndHour:   cfg.Alerting.ActiveEndHour,
		Location:        cfg.AlertLocation(),
	}, notifier, logger.Component(log, "alerting"))
	go monitor.RunIdleWatch(rootCtx, idleWatchInterval)

	hub := broadcast.NewHub(logger.Component(log, "broadcast"))
	pipelineOpts = append(pipelineOpts, dispatch.WithMonitor(monitor))
	pipeline := dispatch.NewPipeline(callStore, eventStore, hub, logger.Component(log, "dispatch"), pipelineOpts...)

	queryService := events.NewQueryService(eventStore, callStore)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, deps{
		cfg:      cfg,
		db:       db,
		auth:     authManager,
		hub:      hub,
		pipeline: pipeline,
		query:    queryService,
	})

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
}

type deps struct {
	cfg      config.Config
	db       *sql.DB
	auth     *auth.Manager
	hub      *broadcast.Hub
	pipeline *dispatch.Pipeline
	query    *events.QueryService
}
