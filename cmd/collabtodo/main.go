package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"collabtodo/internal/config"
	"collabtodo/internal/identity"
	"collabtodo/internal/lock"
	"collabtodo/internal/logging"
	"collabtodo/internal/realtime"
	"collabtodo/internal/server"
	"collabtodo/internal/service"
	"collabtodo/internal/storage"
	"collabtodo/internal/storage/mongodb"
	"collabtodo/internal/storage/sqlite"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	envFlag := flag.String("env", ".env", "Optional .env file")
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides COLLABTODO_ADDR)")
	dbFlag := flag.String("db", "", "Path to sqlite database file (overrides COLLABTODO_DB_PATH)")
	staticFlag := flag.String("static", "", "Directory with built frontend (overrides COLLABTODO_STATIC_DIR)")
	flag.Parse()

	cfg, err := config.Load(*envFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}
	if *dbFlag != "" {
		cfg.DBPath = *dbFlag
	}
	if *staticFlag != "" {
		cfg.StaticDir = *staticFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, logOutput, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("collabtodo starting",
		slog.String("version", version),
		slog.String("store", cfg.Store),
		slog.Bool("redis", cfg.RedisURL != ""))

	err = run(cfg, logger)
	if err != nil {
		logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
	}
	logger.Info("server stopped")
	_ = logOutput.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer store.Close()

	hub := realtime.NewHub(logger, cfg.FrontendURL)

	var (
		bus      realtime.Publisher = hub
		locker   lock.Locker        = lock.NewLocal(cfg.LockTimeout)
		redisBus *realtime.RedisBus
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		redisBus = realtime.NewRedisBus(client, hub, realtime.DefaultChannelPrefix, logger)
		bus = redisBus
		locker = lock.NewRedis(client, lock.RedisConfig{TTL: cfg.LockTTL, Timeout: cfg.LockTimeout}, logger)
	}

	svc, err := service.New(store, bus, locker, service.Config{
		FrontendURL:  cfg.FrontendURL,
		StoreTimeout: cfg.StoreTimeout,
	}, logger)
	if err != nil {
		return err
	}

	auth, err := identity.NewVerifier(identity.VerifierConfig{
		HS256Secret:     cfg.AuthHS256Secret,
		RSAPublicKeyPEM: cfg.AuthRSAPublicKey,
		Issuer:          cfg.AuthIssuer,
	})
	if err != nil {
		return err
	}

	var webhooks *identity.WebhookVerifier
	if cfg.WebhookSigningSecret != "" {
		webhooks, err = identity.NewWebhookVerifier(cfg.WebhookSigningSecret)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("WEBHOOK_SIGNING_SECRET not set; identity webhooks disabled")
	}

	srv := server.New(svc, hub, auth, logger, server.Options{StaticDir: cfg.StaticDir, Webhooks: webhooks})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if redisBus != nil {
		g.Go(func() error {
			return redisBus.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		hub.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.Store == config.StoreMongo {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return mongodb.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	}
	return sqlite.Open(cfg.DBPath, logger)
}
