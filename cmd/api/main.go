package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/prodscope/prodscope/internal/api"
	"github.com/prodscope/prodscope/internal/config"
	"github.com/prodscope/prodscope/internal/llm"
	"github.com/prodscope/prodscope/internal/observability"
	"github.com/prodscope/prodscope/internal/resilience"
	"github.com/prodscope/prodscope/internal/services/intel"
)

func main() {
	// Local development convenience; ignored when the file is absent.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Env, cfg.GetLogLevel())
	defer logger.Sync()

	logger.Info("Starting prodscope API",
		zap.String("environment", cfg.Env),
	)

	metrics := observability.NewMetrics("prodscope")

	// Generation backend, guarded by a circuit breaker. An open breaker
	// surfaces as a capability failure to API callers.
	breaker := resilience.NewCircuitBreaker(resilience.DefaultConfig("generator"))
	generator, err := llm.NewClient(llm.Config{
		APIKey:       cfg.Generator.APIKey,
		BaseURL:      cfg.Generator.BaseURL,
		Model:        cfg.Generator.Model,
		MaxTokens:    cfg.Generator.MaxTokens,
		Timeout:      cfg.Generator.Timeout,
		RateLimitRPM: cfg.Generator.RateLimitRPM,
		CacheTTL:     cfg.Generator.CacheTTL,
	}, logger, llm.WithBreaker(breaker), llm.WithMetrics(metrics))
	if err != nil {
		logger.Fatal("Failed to create generation client", zap.Error(err))
	}

	pipelineOpts := []intel.PipelineOption{
		intel.WithMetrics(metrics),
		intel.WithPhotoCriteria(intel.PhotoFilterCriteria{
			MinWidth:       cfg.Photos.MinWidth,
			MinHeight:      cfg.Photos.MinHeight,
			MinArea:        cfg.Photos.MinArea,
			MinAspectRatio: cfg.Photos.MinAspectRatio,
			MaxAspectRatio: cfg.Photos.MaxAspectRatio,
		}),
	}

	if cfg.Fetch.EnableTier2 {
		browser, err := intel.NewBrowserFetcher(cfg.Fetch.Tier2Headless, logger)
		if err != nil {
			logger.Warn("Tier-2 browser unavailable, continuing with tier-1 only", zap.Error(err))
		} else {
			defer browser.Close()
			pipelineOpts = append(pipelineOpts, intel.WithTier2(browser))
			logger.Info("Tier-2 browser rendering enabled")
		}
	}

	pipeline := intel.NewPipeline(intel.NewStaticFetcher(logger), generator, logger, pipelineOpts...)

	router := api.NewRouter(api.RouterConfig{
		Pipeline: pipeline,
		FetchOptions: intel.FetchOptions{
			Timeout:   cfg.Fetch.Timeout,
			SkipTier2: cfg.Fetch.SkipTier2,
		},
		Metrics:    metrics,
		Logger:     logger,
		EnableCORS: cfg.Server.EnableCORS,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API server listening", zap.String("addr", cfg.Server.Addr()))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal("Server error", zap.Error(err))

	case sig := <-shutdown:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed, forcing close", zap.Error(err))
			server.Close()
		}

		logger.Info("Server stopped gracefully")
	}
}

// initLogger creates a configured zap logger
func initLogger(env, level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if env == "production" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := zcfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
