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

	"github.com/ioea/academy/auth"
	"github.com/ioea/academy/internal/config"
	"github.com/ioea/academy/internal/db"
	"github.com/ioea/academy/internal/logging"
	"github.com/ioea/academy/internal/policy"
	"github.com/ioea/academy/mail"
	"github.com/ioea/academy/ratelimit"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
)

var (
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	seedOnlyFlag    = flag.Bool("seed-only", false, "Run DB seed and exit")
	envFileFlag     = flag.String("env-file", ".env", "Environment file to load if present")
)

func main() {
	flag.Parse()

	_ = godotenv.Load(*envFileFlag)
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.App.LogLevel, cfg.App.Dev)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	dbConn, err := db.Open(cfg.Database, cfg.App.Dev, logger)
	if err != nil {
		return err
	}

	if *migrateOnlyFlag {
		if err := db.Migrate(dbConn); err != nil {
			return err
		}
		logger.Info("migrations completed")
		return nil
	}
	if *seedOnlyFlag {
		if err := db.Seed(dbConn, cfg.Bootstrap, cfg.Session.BcryptCost); err != nil {
			return err
		}
		logger.Info("seeding completed")
		return nil
	}
	if cfg.App.Migrations || cfg.App.Dev {
		if err := db.Migrate(dbConn); err != nil {
			return err
		}
		logger.Info("migrations completed")
	}
	if err := db.Seed(dbConn, cfg.Bootstrap, cfg.Session.BcryptCost); err != nil {
		return err
	}

	svc := auth.NewService(auth.Options{
		Store:          auth.NewGormStore(dbConn),
		Cache:          auth.NewMemoryCache(cfg.Session.CacheSize),
		Logger:         logger,
		SessionTTL:     cfg.Session.TTL,
		ResetTTL:       cfg.Session.ResetTTL,
		EmailChangeTTL: cfg.Session.EmailChangeTTL,
		SecureCookie:   cfg.Session.SecureCookie,
		BcryptCost:     cfg.Session.BcryptCost,
	})

	loginLimiter, resetLimiter, closeRedis := newLimiters(cfg, logger)
	defer closeRedis()
	mailer := mail.NewAsyncSender(newMailer(cfg, logger), logger)

	routerCfg := policy.NewRouterConfig(policy.Deps{
		DB:           dbConn,
		Service:      svc,
		Mailer:       mailer,
		Logger:       logger,
		LoginLimiter: loginLimiter,
		ResetLimiter: resetLimiter,
		BaseURL:      cfg.App.BaseURL,
		TrustProxy:   cfg.Server.TrustProxy,
	})
	app := NewApp(dbConn, routerCfg, logger, cfg.Server.TrustProxy)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go pruneSessions(ctx, svc, cfg.Session.PruneInterval, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("port", cfg.Server.Port), slog.Bool("dev", cfg.App.Dev))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := mailer.Wait(shutdownCtx); err != nil {
		logger.Warn("pending emails not sent", slog.String("error", err.Error()))
	}
	logger.Info("server stopped gracefully")
	return nil
}

// newLimiters uses Redis when REDIS_ADDR is set so every instance shares the
// attempt counters; otherwise counters are per process.
func newLimiters(cfg *config.Config, logger *slog.Logger) (login, reset ratelimit.Limiter, closeFn func()) {
	limit, window := cfg.RateLimit.Limit, cfg.RateLimit.Window
	if cfg.Redis.Addr == "" {
		return ratelimit.NewMemoryLimiter("login", limit, window, nil),
			ratelimit.NewMemoryLimiter("forgot", limit, window, nil),
			func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, rate limits fail open until it answers", slog.String("error", err.Error()))
	}
	return ratelimit.NewRedisLimiter(rdb, logger, "login", limit, window),
		ratelimit.NewRedisLimiter(rdb, logger, "forgot", limit, window),
		func() { _ = rdb.Close() }
}

func newMailer(cfg *config.Config, logger *slog.Logger) mail.Sender {
	if cfg.Mail.Host == "" {
		logger.Info("SMTP_HOST not set, emails are logged instead of sent")
		return &mail.LogSender{From: cfg.Mail.From, Logger: logger}
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:       cfg.Mail.Host,
		Port:       cfg.Mail.Port,
		User:       cfg.Mail.User,
		Password:   cfg.Mail.Password,
		From:       cfg.Mail.From,
		FromName:   cfg.Mail.FromName,
		SkipVerify: cfg.Mail.SkipVerify,
	}, logger)
}

// pruneSessions removes expired sessions every interval until ctx ends.
func pruneSessions(ctx context.Context, svc *auth.Service, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := svc.PruneExpired(ctx)
			if err != nil {
				logger.Warn("prune sessions", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				logger.Debug("pruned expired sessions", slog.Int64("count", n))
			}
		}
	}
}
