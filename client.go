package docqa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/chunker"
	"github.com/kailas-cloud/docqa/internal/db"
	dbRedis "github.com/kailas-cloud/docqa/internal/db/redis"
	dbSQLite "github.com/kailas-cloud/docqa/internal/db/sqlite"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/loader"
	"github.com/kailas-cloud/docqa/internal/metrics"
	"github.com/kailas-cloud/docqa/internal/repository/embcache"
	indexrepo "github.com/kailas-cloud/docqa/internal/repository/index"
	"github.com/kailas-cloud/docqa/internal/transport/openai"
	answeruc "github.com/kailas-cloud/docqa/internal/usecase/answer"
	expanduc "github.com/kailas-cloud/docqa/internal/usecase/expand"
	ingestuc "github.com/kailas-cloud/docqa/internal/usecase/ingest"
	retrieveuc "github.com/kailas-cloud/docqa/internal/usecase/retrieve"
)

const defaultReadinessTimeout = 10 * time.Second

// EmbeddingResult is the public embedding outcome for custom providers.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Embedder is the public embedding provider interface.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// Generator is the public generative model interface.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client is the docqa SDK entry point: build a corpus index once, then
// answer questions against it.
type Client struct {
	store  db.Store
	ingest *ingestuc.Service
	answer *answeruc.Service
	index  *indexrepo.Repo
	logger *zap.Logger
}

// New creates a docqa Client and connects to the index store.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		collection:      "corpus",
		chunkSize:       chunker.DefaultChunkSize,
		chunkOverlap:    chunker.DefaultChunkOverlap,
		expansionN:      5,
		perVariantK:     5,
		maxContextChars: 8000,
		logger:          zap.NewNop(),
	}
	for _, o := range opts {
		o(cfg)
	}

	if cfg.driver == "" {
		return nil, errors.New("docqa: index store required (use WithSQLite or WithRedis)")
	}
	if cfg.dimensions <= 0 {
		return nil, errors.New("docqa: embedding dimensions required (use WithEmbeddingModel)")
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("docqa: index store not ready: %w", err)
	}

	return wireClient(store, cfg)
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("docqa: create redis store: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := dbSQLite.NewStore(dbSQLite.Config{
			DataDir: cfg.dataDir,
		})
		if err != nil {
			return nil, fmt.Errorf("docqa: create sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("docqa: unknown driver %q", cfg.driver)
	}
}

func wireClient(store db.Store, cfg *clientConfig) (*Client, error) {
	embedder, err := buildEmbedder(store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	generator, err := buildGenerator(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	idx := indexrepo.New(store, cfg.collection)

	ck, err := chunker.New(cfg.chunkSize, cfg.chunkOverlap)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("docqa: %w", err)
	}

	ingest := ingestuc.New(loader.NewText(), ck, embedder, idx, ingestuc.Config{
		Sources:      cfg.sources,
		ChunkSize:    cfg.chunkSize,
		ChunkOverlap: cfg.chunkOverlap,
		BatchSize:    cfg.batchSize,
		Dimensions:   cfg.dimensions,
		Model:        cfg.embedModel,
	}, cfg.logger)

	expander := expanduc.New(purposed(generator, "expand"), cfg.expansionN, cfg.logger)
	retriever := retrieveuc.New(embedder, idx, cfg.perVariantK, cfg.maxContextChars, cfg.logger)
	synthesizer := answeruc.NewSynthesizer(purposed(generator, "synthesize"), cfg.logger)
	answer := answeruc.New(expander, retriever, synthesizer, cfg.logger)

	return &Client{
		store:  store,
		ingest: ingest,
		answer: answer,
		index:  idx,
		logger: cfg.logger,
	}, nil
}

// embedderChain is the assembled decorator stack, serving both the
// single-text and batch contracts.
type embedderChain interface {
	domain.Embedder
	domain.BatchEmbedder
}

// buildEmbedder assembles the embedding chain: provider, the store-backed
// cache on top, and optionally the instruction prefix outermost so cache
// keys cover the instructed text.
func buildEmbedder(store db.Store, cfg *clientConfig) (embedderChain, error) {
	var inner domain.Embedder
	switch {
	case cfg.embedder != nil:
		inner = &embedderAdapter{inner: cfg.embedder}
	case cfg.apiKey != "":
		if cfg.embedModel == "" {
			return nil, errors.New("docqa: embedding model required (use WithEmbeddingModel)")
		}
		inner = openai.NewEmbedder(&openai.Config{
			APIKey:     cfg.apiKey,
			BaseURL:    cfg.baseURL,
			Model:      cfg.embedModel,
			Dimensions: cfg.dimensions,
			Provider:   "openai",
			MaxRetries: 3,
			Logger:     cfg.logger,
		})
	default:
		return nil, errors.New("docqa: embedding provider required (use WithOpenAI or WithEmbedder)")
	}

	cached := embcache.New(inner, store, metrics.EmbeddingCacheTotal, cfg.logger)
	if cfg.embedInstruction != "" {
		return domain.NewInstructionEmbedder(cached, cfg.embedInstruction), nil
	}
	return cached, nil
}

func buildGenerator(cfg *clientConfig) (domain.Generator, error) {
	switch {
	case cfg.generator != nil:
		return &generatorAdapter{inner: cfg.generator}, nil
	case cfg.apiKey != "":
		if cfg.genModel == "" {
			return nil, errors.New("docqa: generation model required (use WithGenerationModel)")
		}
		return openai.NewGenerator(&openai.GeneratorConfig{
			APIKey:      cfg.apiKey,
			BaseURL:     cfg.baseURL,
			Model:       cfg.genModel,
			Temperature: cfg.temperature,
			MaxRetries:  3,
			Logger:      cfg.logger,
		}), nil
	default:
		return nil, errors.New("docqa: generative model required (use WithOpenAI or WithGenerator)")
	}
}

// purposed labels OpenAI generators per pipeline stage; custom generators
// pass through unchanged.
func purposed(g domain.Generator, purpose string) domain.Generator {
	if og, ok := g.(*openai.Generator); ok {
		return og.WithPurpose(purpose)
	}
	return g
}

// Answer runs the question answering pipeline. It always returns a
// displayable string, even for blank questions or degraded providers.
func (c *Client) Answer(ctx context.Context, question string) string {
	return c.answer.Answer(ctx, question)
}

// Ingest builds the corpus index unless a valid build already exists.
func (c *Client) Ingest(ctx context.Context) error {
	return c.ingest.Ingest(ctx)
}

// Rebuild drops the index and builds it from scratch.
func (c *Client) Rebuild(ctx context.Context) error {
	return c.ingest.Rebuild(ctx)
}

// Stale reports whether the corpus on disk no longer matches the build.
func (c *Client) Stale(ctx context.Context) (bool, error) {
	return c.ingest.Stale(ctx)
}

// Ping checks index store connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// embedderAdapter wraps the public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// generatorAdapter wraps the public Generator to satisfy internal domain.Generator.
type generatorAdapter struct {
	inner Generator
}

func (a *generatorAdapter) Generate(ctx context.Context, prompt string) (string, error) {
	reply, err := a.inner.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return reply, nil
}
