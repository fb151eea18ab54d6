package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/apascualco/trafficcop/internal/infrastructure/config"
	"github.com/apascualco/trafficcop/internal/infrastructure/http"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// drainGrace is added on top of DISPATCH_TIMEOUT so requests already
// forwarded to an instance can finish before the listener closes.
const drainGrace = 5 * time.Second

func main() {
	cfg, err := config.Load(version, commit, buildDate)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("trafficcop stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	s, err := http.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	slog.Info("starting trafficcop",
		slog.Int("port", cfg.Port),
		slog.String("env", cfg.Env),
		slog.String("store", storeBackend(cfg)),
		slog.String("routes", routesSource(cfg)),
		slog.String("default_strategy", cfg.DefaultStrategy),
		slog.Bool("rate_limit_enabled", cfg.RateLimitEnabled),
		slog.Int("user_rpm", cfg.RateLimitUserRPM),
		slog.String("trace_exporter", cfg.TraceExporter),
		slog.Bool("service_auth", cfg.JWTPublicKey != ""),
		slog.String("version", cfg.Version),
		slog.String("commit", cfg.Commit),
	)

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Run() }()

	select {
	case err := <-serveErr:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		_ = s.Shutdown(context.Background())
		return err
	case <-ctx.Done():
	}

	timeout := shutdownTimeout(cfg)
	slog.Info("draining gateway traffic", slog.Duration("timeout", timeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	slog.Info("trafficcop stopped")
	return nil
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	return cfg.DispatchTimeout + drainGrace
}

func storeBackend(cfg *config.Config) string {
	if cfg.RedisURL == "" {
		return "memory"
	}
	return "redis"
}

func routesSource(cfg *config.Config) string {
	if cfg.RoutesFile == "" {
		return "builtin"
	}
	return cfg.RoutesFile
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindDuration {
				a.Value = slog.StringValue(a.Value.Duration().String())
			}
			return a
		},
	}

	var h slog.Handler
	if cfg.Env == "production" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", cfg.TraceServiceName)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
