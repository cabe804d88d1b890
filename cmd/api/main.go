package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/userhub/internal/auth"
	"github.com/geocoder89/userhub/internal/cache"
	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/db"
	httpx "github.com/geocoder89/userhub/internal/http"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/redisclient"
	"github.com/geocoder89/userhub/internal/repo/cached"
	"github.com/geocoder89/userhub/internal/repo/memory"
	"github.com/geocoder89/userhub/internal/repo/postgres"
	"github.com/geocoder89/userhub/internal/security"
	"github.com/geocoder89/userhub/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx := context.Background()

	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, "userhub", cfg.Env, cfg.OTLPEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := config.WithTimeout(5 * time.Second)
			defer cancel()
			_ = shutdownTracer(sctx)
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	tokens, err := auth.NewManager(cfg.JWTSecret, cfg.JWTAccessTTL, auth.WithIssuer("userhub"))
	if err != nil {
		return fmt.Errorf("token manager: %w", err)
	}

	checks := map[string]handlers.Pinger{}

	var store service.UserStore
	switch cfg.Store {
	case "memory":
		log.Warn("using in-memory user store; data is lost on restart")
		store = memory.NewUsersRepo()
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DBURL, 10)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		if err := db.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}

		store = postgres.NewUsersRepo(pool, prom)
		checks["db"] = pool.Ping
	default:
		return fmt.Errorf("unknown STORE %q", cfg.Store)
	}

	if cfg.RedisAddr != "" {
		rc := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rc.Close() }()

		pctx, cancel := config.WithTimeout(2 * time.Second)
		err := rc.Ping(pctx)
		cancel()
		if err != nil {
			// the cache is optional; readiness reports it until it comes back
			log.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "err", err)
		}

		userCache := cache.NewProtected(cache.NewRedis(rc.Raw(), "userhub:", cfg.UserCacheTTL), cache.ProtectedConfig{})
		store = cached.NewUsersRepo(store, userCache)
		checks["redis"] = rc.Ping
	} else if cfg.Store == "postgres" {
		// per-process cache; other replicas see updates within UserCacheTTL
		store = cached.NewUsersRepo(store, cache.New(cfg.UserCacheTTL, cfg.UserCacheSize))
	}

	hasher := security.NewBcryptHasher(cfg.BcryptCost)

	seedCtx, cancel := config.WithTimeout(10 * time.Second)
	created, err := db.EnsureAdminUser(seedCtx, store, hasher, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		log.Info("admin user created", "username", cfg.AdminUsername)
	}

	users := service.NewUserService(store, hasher, tokens, prom)

	// set up routers
	router := httpx.NewRouter(httpx.Deps{
		Cfg:      cfg,
		Users:    users,
		Tokens:   tokens,
		Prom:     prom,
		Gatherer: reg,
		Checks:   checks,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.Store)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case <-stop:
	}
	log.Info("server shutting down")

	shutdownCtx, cancelShutdown := config.WithTimeout(10 * time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return err
	}

	log.Info("shutdown complete")
	return nil
}
