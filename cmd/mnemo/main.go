package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/mnemo/internal/config"
	dbRedis "github.com/kailas-cloud/mnemo/internal/db/redis"
	"github.com/kailas-cloud/mnemo/internal/domain"
	domrec "github.com/kailas-cloud/mnemo/internal/domain/record"
	logpkg "github.com/kailas-cloud/mnemo/internal/logger"
	"github.com/kailas-cloud/mnemo/internal/metrics"
	budgetrepo "github.com/kailas-cloud/mnemo/internal/repository/budget"
	recordrepo "github.com/kailas-cloud/mnemo/internal/repository/record"
	searchrepo "github.com/kailas-cloud/mnemo/internal/repository/search"
	chiTransport "github.com/kailas-cloud/mnemo/internal/transport/chi"
	openaiProv "github.com/kailas-cloud/mnemo/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/mnemo/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/mnemo/internal/usecase/health"
	recorduc "github.com/kailas-cloud/mnemo/internal/usecase/record"
	searchuc "github.com/kailas-cloud/mnemo/internal/usecase/search"
	usageuc "github.com/kailas-cloud/mnemo/internal/usecase/usage"
	"github.com/kailas-cloud/mnemo/internal/version"
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

	logger.Info("Starting mnemo API server",
		zap.String("version", version.Full()),
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

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()

	// Single BudgetTracker shared across all providers and the usage service.
	var budget *embeddinguc.BudgetTracker
	budgetCfg := cfg.Embedding.Budget
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if budgetCfg.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget = embeddinguc.NewBudgetTracker(
			"global", budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
		)
		// Connect persistence store — loads current counters from DB.
		budgetStore := budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour)
		budget.WithStore(ctx, budgetStore)
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	// Go gotcha: (*BudgetTracker)(nil) wrapped in BudgetChecker != nil.
	var budgetChecker embeddinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	// Provider chain per endpoint: transport -> retry -> instrumented.
	// Config order is fallback priority.
	providers := make([]domain.Provider, 0, len(cfg.Embedding.Providers))
	for _, pc := range cfg.Embedding.Providers {
		providers = append(providers, buildProvider(pc, budgetChecker, logger))
	}
	registry := embeddinguc.NewRegistry(providers, cfg.Embedding.DefaultModel, logger)
	logger.Info("Embedding providers configured",
		zap.Int("providers", len(providers)),
		zap.Int("models", len(registry.Models())),
		zap.String("default_model", cfg.Embedding.DefaultModel),
	)

	types := domrec.NewTypeRegistry(cfg.Records.Types)

	recRepo := recordrepo.New(store).WithHNSW(recordrepo.HNSWConfig{
		M:           cfg.Index.HNSWM,
		EFConstruct: cfg.Index.HNSWEFConstruct,
	})
	if err := recRepo.EnsureRecordIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure record index", zap.Error(err))
	}
	searchRepo := searchrepo.New(store)

	recSvc := recorduc.New(recRepo, registry, types, logger)
	searchSvc := searchuc.New(
		searchRepo, recRepo, registry,
		searchuc.FailurePolicy(cfg.Search.FailurePolicy), logger,
	)

	// Usage service — reads from shared BudgetTracker
	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetReader = budget
	}
	usageSvc := usageuc.New(budgetReader)

	healthSvc := healthuc.New(store, newProviderHealthChecker(providers))

	server := chiTransport.NewServer(recSvc, searchSvc, registry, usageSvc, healthSvc, types, logger)

	var handler http.Handler = server.Router(cfg.Auth.APIKeys)
	handler = wideEventMiddleware(logger)(handler)
	handler = jsonRecoverer(logger)(handler)
	handler = chiMiddleware.RequestID(handler)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
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

// buildProvider assembles the decorator chain: OpenAI transport -> Retry -> Instrumented.
func buildProvider(
	pc config.ProviderConfig,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) domain.Provider {
	models := make([]openaiProv.ModelConfig, len(pc.Models))
	for i, m := range pc.Models {
		models[i] = openaiProv.ModelConfig{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			Dimensions:  m.Dimensions,
			MaxTokens:   m.MaxTokens,
		}
	}

	base := openaiProv.NewProvider(&openaiProv.Config{
		Name:    pc.Name,
		APIKey:  pc.APIKey,
		BaseURL: pc.BaseURL,
		Models:  models,
		Logger:  logger,
	})

	retried := embeddinguc.NewRetryProvider(base, embeddinguc.DefaultAttemptTimeout, logger)
	return embeddinguc.NewInstrumentedProvider(retried, budget, logger)
}

// providerHealthChecker reports the first configured provider's availability.
type providerHealthChecker struct {
	providers []domain.Provider
}

func newProviderHealthChecker(providers []domain.Provider) healthuc.EmbeddingChecker {
	for _, p := range providers {
		if p.IsConfigured() {
			return &providerHealthChecker{providers: providers}
		}
	}
	return nil
}

func (h *providerHealthChecker) HealthCheck(ctx context.Context) error {
	for _, p := range h.providers {
		if !p.IsConfigured() {
			continue
		}
		hc, ok := p.(domain.HealthChecker)
		if !ok {
			return nil
		}
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("provider %s: %w", p.Name(), err)
		}
		return nil
	}
	return nil
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

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("tenant", r.Header.Get(chiTransport.TenantHeader)),
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
