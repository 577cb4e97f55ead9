// Package main AI 网关服务入口
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ai-gateway-api/internal/config"
	einoobs "ai-gateway-api/internal/observability/eino"
	"ai-gateway-api/internal/wire"
	"ai-gateway-api/pkg/logger"
	"ai-gateway-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const maxShutdownGrace = 2 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.App.Version == "" || cfg.App.Version == "v0.0.0" {
		cfg.App.Version = Version
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting ai gateway",
		"version", cfg.App.Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
		"kv_backend", cfg.Cache.Backend,
		"audit", cfg.Database.Postgres.Enabled,
		"requests_per_minute", cfg.Gateway.RateLimit.RequestsPerMinute,
		"tokens_per_minute", cfg.Gateway.RateLimit.TokensPerMinute,
		"max_attempts", cfg.Gateway.Retry.MaxAttempts,
	)
	logProviders(log, &cfg.LLM)

	shutdownTracer, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() {
		if err := shutdownTracer(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// provider 调用的 span 与日志
	einoobs.Init()

	app, cleanup, err := wire.InitializeApp(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize gateway", err)
	}
	defer cleanup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      app.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	case err := <-serveErr:
		log.Error("http server error", "error", err)
	}

	// 在途分析最多经历 MaxAttempts 次单次超时，等待它们完成后再退出
	grace := shutdownGrace(&cfg.Gateway.Retry)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err, "grace", grace.String())
	}
	log.Info("server exited")
}

// logProviders 启动时列出已配置的 provider，缺少密钥的网络 provider 会在解析时返回配置错误
func logProviders(log *slog.Logger, cfg *config.LLMConfig) {
	if cfg.ForceSimulated {
		log.Warn("force_simulated is on, every request is served by the simulated provider")
	}
	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := cfg.Providers[id]
		kind := p.Type
		if kind == "" {
			kind = id
		}
		attrs := []any{"provider", id, "type", kind, "model", p.Model, "default", id == cfg.DefaultProvider}
		if kind != "simulated" && p.APIKey == "" {
			log.Warn("provider has no api key", attrs...)
			continue
		}
		log.Info("provider configured", attrs...)
	}
}

func shutdownGrace(rc *config.RetryConfig) time.Duration {
	attempts := rc.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	grace := time.Duration(attempts)*rc.AttemptTimeout + time.Duration(attempts)*rc.MaxDelay
	if grace <= 0 {
		return 30 * time.Second
	}
	return min(grace, maxShutdownGrace)
}
