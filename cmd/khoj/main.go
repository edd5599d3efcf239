package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/khana-cloud/khoj/internal/config"
	dbRedis "github.com/khana-cloud/khoj/internal/db/redis"
	"github.com/khana-cloud/khoj/internal/domain"
	logpkg "github.com/khana-cloud/khoj/internal/logger"
	"github.com/khana-cloud/khoj/internal/metrics"
	annrepo "github.com/khana-cloud/khoj/internal/repository/ann"
	"github.com/khana-cloud/khoj/internal/repository/embcache"
	"github.com/khana-cloud/khoj/internal/repository/querycache"
	reciperepo "github.com/khana-cloud/khoj/internal/repository/recipe"
	chiTransport "github.com/khana-cloud/khoj/internal/transport/chi"
	openaiEmb "github.com/khana-cloud/khoj/internal/transport/openai"
	cachemgmtuc "github.com/khana-cloud/khoj/internal/usecase/cachemgmt"
	dimensionuc "github.com/khana-cloud/khoj/internal/usecase/dimension"
	embeddinguc "github.com/khana-cloud/khoj/internal/usecase/embedding"
	"github.com/khana-cloud/khoj/internal/usecase/filterengine"
	healthuc "github.com/khana-cloud/khoj/internal/usecase/health"
	searchuc "github.com/khana-cloud/khoj/internal/usecase/search"
	"github.com/khana-cloud/khoj/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting khoj retrieval engine",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()

	// Repositories
	recipeRepo := reciperepo.New(store)
	if err := recipeRepo.EnsureIndex(ctx, cfg.Embedding.Dimensions, reciperepo.HNSWConfig{
		M:           cfg.Search.HNSWM,
		EFConstruct: cfg.Search.HNSWEFConstruct,
	}); err != nil {
		logger.Fatal("Failed to ensure recipe index", zap.Error(err))
	}
	logger.Info("Recipe index ready", zap.Int("dimensions", cfg.Embedding.Dimensions))

	annClient := annrepo.New(store, logger).
		WithTimeout(time.Duration(cfg.Search.CallTimeoutSec) * time.Second)

	resultCache := querycache.New(store, metrics.QueryCacheTotal, logger).
		WithDefaultTTL(time.Duration(cfg.Cache.DefaultTTLSec) * time.Second)

	// Embedder chain: OpenAI -> Cached -> Instrumented, built lazily on
	// first use so startup does not depend on the provider being up.
	embedder := embeddinguc.NewProvider(func() (domain.Embedder, error) {
		if cfg.Embedding.APIKey == "" {
			return nil, fmt.Errorf("embedding.api_key is not configured")
		}
		base := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Logger:     logger,
		})
		cached := embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)
		logger.Info("Embedder created",
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
		)
		return embeddinguc.NewInstrumentedEmbedder(cached, "openai", cfg.Embedding.Model, logger), nil
	})

	// Use case services
	engine := filterengine.New(logger)
	searchSvc := searchuc.New(annClient, recipeRepo, embedder, resultCache, engine, searchuc.Config{
		ScoreThreshold:     cfg.Search.ScoreThreshold,
		SemanticOversample: cfg.Search.SemanticOversample,
		HybridOversample:   cfg.Search.HybridOversample,
		TextMatchLimit:     cfg.Search.TextMatchLimit,
		CallTimeout:        time.Duration(cfg.Search.CallTimeoutSec) * time.Second,
		SearchTTL:          time.Duration(cfg.Cache.SearchTTLSec) * time.Second,
	}, logger)
	dimensionSvc := dimensionuc.New(recipeRepo)
	cacheSvc := cachemgmtuc.New(resultCache, searchSvc, cfg.Cache.WarmQueries, logger)

	// The embedding checker stays nil: the provider is lazy and a probe
	// must not force initialization.
	healthSvc := healthuc.New(store, store, reciperepo.IndexName, nil)

	server := chiTransport.NewServer(searchSvc, dimensionSvc, cacheSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
