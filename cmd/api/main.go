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

	"outreach-platform/internal/activity"
	"outreach-platform/internal/batch"
	"outreach-platform/internal/config"
	"outreach-platform/internal/dispatch"
	"outreach-platform/internal/httpapi"
	"outreach-platform/internal/prefs"
	"outreach-platform/internal/telephony"
	"outreach-platform/pkg/logger"
	"outreach-platform/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown.
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, "outreach-api")
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
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

	activityRepo, err := activity.NewPostgresRepo(db)
	if err != nil {
		log.Error("activity repo init failed", "err", err)
		os.Exit(1)
	}
	events := activity.NewService(activityRepo, log)

	prefStore, err := prefs.NewRedisStore(rdb)
	if err != nil {
		log.Error("prefs store init failed", "err", err)
		os.Exit(1)
	}

	var upstreamHTTP *http.Client
	if cfg.Upstream.RequestTimeout > 0 {
		upstreamHTTP = &http.Client{Timeout: cfg.Upstream.RequestTimeout}
	}

	batchOpts := []batch.Option{}
	if upstreamHTTP != nil {
		batchOpts = append(batchOpts, batch.WithHTTPClient(upstreamHTTP))
	}
	batchClient, err := batch.NewClient(cfg.Upstream.GroupsAPIBaseURL, batchOpts...)
	if err != nil {
		log.Error("batch client init failed", "err", err)
		os.Exit(1)
	}

	groups, err := httpapi.NewRemoteDirectory(cfg.Upstream.GroupsAPIBaseURL, upstreamHTTP)
	if err != nil {
		log.Error("group directory init failed", "err", err)
		os.Exit(1)
	}

	proxyOpts := []telephony.ProxyOption{}
	if upstreamHTTP != nil {
		proxyOpts = append(proxyOpts, telephony.WithHTTPClient(upstreamHTTP))
	}
	caller, err := telephony.NewProxyClient(cfg.Upstream.CallProxyURL, proxyOpts...)
	if err != nil {
		log.Error("call proxy init failed", "err", err)
		os.Exit(1)
	}

	sessions := httpapi.NewSessionManager()

	handlers := httpapi.Handlers{
		Groups:   groups,
		Batch:    batchClient,
		Caller:   caller,
		Sessions: sessions,
		Prefs:    prefStore,
		Events:   events,
		Locks:    dispatch.NewRedisLocker(rdb),
		Log:      log,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(corsMiddleware(cfg.CORS))

	registerRoutes(r, handlers)

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

	// Stop every poll loop and cancel any in-flight dispatch before the
	// process exits; a run killed mid-pace would leave its Redis lock held
	// until TTL expiry otherwise.
	sessions.CloseAll()
}
