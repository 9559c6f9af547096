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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/chunker"
	"github.com/kailas-cloud/docqa/internal/config"
	"github.com/kailas-cloud/docqa/internal/db"
	dbRedis "github.com/kailas-cloud/docqa/internal/db/redis"
	dbSQLite "github.com/kailas-cloud/docqa/internal/db/sqlite"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/loader"
	logpkg "github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/metrics"
	"github.com/kailas-cloud/docqa/internal/repository/embcache"
	indexrepo "github.com/kailas-cloud/docqa/internal/repository/index"
	chiTransport "github.com/kailas-cloud/docqa/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/docqa/internal/transport/openai"
	"github.com/kailas-cloud/docqa/internal/usecase/answer"
	"github.com/kailas-cloud/docqa/internal/usecase/expand"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
	"github.com/kailas-cloud/docqa/internal/usecase/ingest"
	"github.com/kailas-cloud/docqa/internal/usecase/retrieve"
	"github.com/kailas-cloud/docqa/internal/version"
)

func main() {
	// .env is optional; real deployments set environment variables directly.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:     "docqa",
		Short:   "Question answering over a local document corpus",
		Version: fmt.Sprintf("%s (%s)", version.Version, version.Commit),
	}
	root.AddCommand(newServeCmd(), newIngestCmd(), newAskCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the composition root shared by all commands.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	store  db.Store
	index  *indexrepo.Repo
	ingest *ingest.Service
	answer *answer.Service
	health *healthuc.Service
}

func newApp() (*app, error) {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	logger.Info("Starting docqa",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("collection", cfg.Corpus.Collection),
	)

	store, err := createStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("index store not ready: %w", err)
	}
	logger.Info("Connected to index store")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()

	embedder := buildEmbedder(cfg, store, logger)
	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:      cfg.Generation.APIKey,
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxRetries:  3,
		Logger:      logger,
	})

	idx := indexrepo.New(store, cfg.Corpus.Collection)

	ck, err := chunker.New(cfg.Corpus.ChunkSize, cfg.Corpus.ChunkOverlap)
	if err != nil {
		store.Close()
		return nil, err
	}

	ingestSvc := ingest.New(loader.NewText(), ck, embedder, idx, ingest.Config{
		Sources:      cfg.Corpus.Sources,
		ChunkSize:    cfg.Corpus.ChunkSize,
		ChunkOverlap: cfg.Corpus.ChunkOverlap,
		BatchSize:    cfg.Corpus.BatchSize,
		Dimensions:   cfg.Embedding.Dimensions,
		Model:        cfg.Embedding.Model,
	}, logger)

	expander := expand.New(generator.WithPurpose("expand"), cfg.Retrieval.ExpansionN, logger)
	retriever := retrieve.New(embedder, idx, cfg.Retrieval.PerVariantK, cfg.Retrieval.MaxContextChars, logger)
	synthesizer := answer.NewSynthesizer(generator.WithPurpose("synthesize"), logger)
	answerSvc := answer.New(expander, retriever, synthesizer, logger)

	healthSvc := healthuc.New(store, newProviderHealthChecker(embedder), generator)

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		index:  idx,
		ingest: ingestSvc,
		answer: answerSvc,
		health: healthSvc,
	}, nil
}

func (a *app) close() {
	a.store.Close()
	_ = a.logger.Sync()
}

func createStore(cfg config.Config, logger *zap.Logger) (db.Store, error) {
	switch cfg.Database.Driver {
	case "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := dbSQLite.NewStore(dbSQLite.Config{
			DataDir: cfg.Database.DataDir,
		})
		if err != nil {
			return nil, fmt.Errorf("create sqlite store: %w", err)
		}
		return s, nil
	default:
		logger.Error("Unknown database driver", zap.String("driver", cfg.Database.Driver))
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// pipelineEmbedder is the assembled decorator chain, serving both the
// single-text and batch contracts.
type pipelineEmbedder interface {
	domain.Embedder
	domain.BatchEmbedder
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached ->
// optionally Instruction on top, so cache keys cover the instructed text.
func buildEmbedder(cfg config.Config, store db.Store, logger *zap.Logger) pipelineEmbedder {
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		MaxRetries: 3,
		Logger:     logger,
	})

	cached := embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)
	if cfg.Embedding.Instruction != "" {
		return domain.NewInstructionEmbedder(cached, cfg.Embedding.Instruction)
	}
	return cached
}

func newServeCmd() *cobra.Command {
	var skipIngest bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build the index if needed and serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if !skipIngest {
				if err := a.ingest.Ingest(cmd.Context()); err != nil {
					return fmt.Errorf("ingest corpus: %w", err)
				}
			}

			return a.serve()
		},
	}
	cmd.Flags().BoolVar(&skipIngest, "skip-ingest", false, "do not build the index on startup")
	return cmd
}

func newIngestCmd() *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build the corpus index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if rebuild {
				return a.ingest.Rebuild(cmd.Context())
			}
			return a.ingest.Ingest(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "drop the existing index and build from scratch")
	return cmd
}

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question from the command line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.ingest.Ingest(cmd.Context()); err != nil {
				return fmt.Errorf("ingest corpus: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), a.answer.Answer(cmd.Context(), args[0]))
			return nil
		},
	}
}

func (a *app) serve() error {
	server := chiTransport.NewServer(a.answer, a.ingest, a.index, a.health, a.logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(a.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(a.logger))
	r.Use(chiTransport.BearerAuthMiddleware(a.cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", a.cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(a.cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(a.cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
		a.logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Error during shutdown", zap.Error(err))
	}

	a.logger.Info("Server stopped gracefully")
	return nil
}

// providerHealthChecker wraps domain.Embedder to implement health.ProviderChecker.
type providerHealthChecker struct {
	embedder domain.Embedder
}

func newProviderHealthChecker(embedder domain.Embedder) *providerHealthChecker {
	return &providerHealthChecker{embedder: embedder}
}

func (h *providerHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
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
