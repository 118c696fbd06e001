package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/firebaseapp"
	apphttp "fintrack/internal/http"
	"fintrack/internal/identity"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(config.Load(), nil)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := result.Close(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	verifier, err := newVerifier(ctx, cfg, backendCfg, result)
	if err != nil {
		logger.Error("Failed to initialize auth", log.FieldError, err, "auth_mode", cfg.AuthMode)
		os.Exit(1)
	}

	snapshots := cache.NewLRUCache[services.Snapshot](cfg.CacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(snapshots)
	cacheManager.StartCleanup(ctx, time.Minute)
	defer cacheManager.Stop()

	summaries := services.NewSummaryService(result.Store, snapshots, cfg.Location(), logger)
	ledger := services.NewLedgerService(result.Store, summaries, logger)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Summaries:          summaries,
		Ledger:             ledger,
		Watcher:            result.Store,
		Verifier:           verifier,
		Ready:              result.Ready,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             logger,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)

	if result.ConsumeRemote != nil {
		handler := summaries.ChangeHandler(result.LocalChanges)
		g.Go(func() error {
			err := result.ConsumeRemote(gctx, handler)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting fintrack server", "port", cfg.Port, "backend", cfg.DataBackend, "auth_mode", cfg.AuthMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		cli.GracefulShutdown(logger, 30*time.Second, srv.Shutdown)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// newVerifier picks the token verifier for AUTH_MODE, reusing the backend's
// Firebase app when it already created one.
func newVerifier(ctx context.Context, cfg *config.Config, backendCfg backend.Config, result *backend.BackendResult) (identity.Verifier, error) {
	if cfg.AuthMode == config.AuthDev {
		return identity.StaticVerifier{UserID: cfg.DevUserID}, nil
	}
	app := result.App
	if app == nil {
		var err error
		if app, err = firebaseapp.New(ctx, backendCfg.Firebase()); err != nil {
			return nil, err
		}
	}
	return identity.NewFirebaseVerifier(ctx, app)
}
