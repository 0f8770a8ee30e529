package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"bedrock-chat-gateway/internal/cache"
	"bedrock-chat-gateway/internal/chat"
	"bedrock-chat-gateway/internal/handlers"
	"bedrock-chat-gateway/internal/httpserver"
	"bedrock-chat-gateway/internal/llm"
	"bedrock-chat-gateway/internal/metrics"
	"bedrock-chat-gateway/pkg/logging/logging"
)

func main() {
	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("could not load .env file: %v", err)
	}

	if err := run(); err != nil {
		log.Fatalf("gateway exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("client_origin", cfg.ClientOrigin),
		zap.String("model_id", cfg.LLM.ModelID),
		zap.Int("max_gen_len", cfg.LLM.MaxGenLen),
		zap.Int("max_attempts", cfg.LLM.MaxAttempts),
		zap.Duration("retry_delay", cfg.LLM.RetryDelay),
		zap.String("cache_backend", cfg.Cache.Backend),
	)

	// ----- AWS / Bedrock -----
	if cfg.AWS.Region == "" {
		logger.Warn("AWS_REGION is not set, defaulting to us-east-1")
	}
	if cfg.AWS.HasStaticCredentials() {
		logger.Info("using provided AWS access key id")
	} else {
		logger.Warn("AWS_ACCESS_KEY_ID or AWS_SECRET_ACCESS_KEY not set, using the default credential chain")
	}

	awsCfg, err := llm.LoadAWSConfig(context.Background(), cfg.AWS)
	if err != nil {
		return err
	}
	logger.Info("bedrock client configured", zap.String("region", awsCfg.Region))

	invoker, err := llm.NewInvoker(cfg.LLM, llm.NewBedrockFactory(awsCfg), logger,
		llm.WithObserver(metrics.AttemptObserver()),
	)
	if err != nil {
		return err
	}

	// ----- Cache (optional exact cache) -----
	exactCache, cacheCloser, err := cache.NewExactCache(context.Background(), cfg.Cache)
	if err != nil {
		logger.Error("cache setup failed", zap.Error(err))
		return err
	}
	defer cacheCloser.Close()
	if cfg.Cache.Enabled() {
		logger.Info("exact cache enabled",
			zap.String("backend", cfg.Cache.Backend),
			zap.Duration("ttl", cfg.Cache.TTL),
		)
	}

	// ----- Handlers -----
	chatService := chat.NewService(
		invoker,
		cache.NewLoggingExactCache(exactCache),
		cfg.Cache.TTL,
		cfg.CacheVersion,
	)
	chatHandler := handlers.NewChatHandler(chatService, !cfg.Production())

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, chatHandler, httpserver.Options{
		ClientOrigin:   cfg.ClientOrigin,
		RequestTimeout: cfg.RequestTimeout,
	})

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting gateway", zap.String("addr", srv.Addr))

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
		return err
	case <-stop:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
