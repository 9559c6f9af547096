// Package ingest builds the vector index from the document corpus:
// load, chunk, embed, upsert, and record the build in a manifest.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/repository/index"
)

// loader turns a source path into documents.
type loader interface {
	Load(path string) ([]domain.Document, error)
}

// chunker splits documents into overlapping chunks.
type chunker interface {
	SplitAll(docs []domain.Document) []domain.Chunk
}

// indexRepo is the index side of ingestion (ISP).
type indexRepo interface {
	Exists(ctx context.Context) (bool, error)
	Manifest(ctx context.Context) (index.Manifest, error)
	ValidateManifest(ctx context.Context, dimensions int) error
	EnsureIndex(ctx context.Context, dimensions int) error
	UpsertRecords(ctx context.Context, records []domain.IndexRecord, dimensions int) error
	DeleteBySource(ctx context.Context, source string) (int, error)
	WriteManifest(ctx context.Context, m index.Manifest) error
	Drop(ctx context.Context) error
	Collection() string
}

// Config holds the corpus build settings.
type Config struct {
	Sources      []string
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	Dimensions   int
	Model        string
}

// Service builds a collection once and reuses it afterwards. A rebuild
// happens only on explicit request.
type Service struct {
	loader   loader
	chunker  chunker
	embedder domain.BatchEmbedder
	index    indexRepo
	cfg      Config
	logger   *zap.Logger
}

// New wires the build-time pipeline.
func New(l loader, c chunker, e domain.BatchEmbedder, idx indexRepo, cfg Config, logger *zap.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &Service{loader: l, chunker: c, embedder: e, index: idx, cfg: cfg, logger: logger}
}

// Ingest builds the collection unless a valid build already exists, in
// which case it verifies the manifest against the configured embedder and
// returns without touching the corpus. A manifest recording a different
// vector dimension is corruption, not a rebuild trigger.
func (s *Service) Ingest(ctx context.Context) error {
	built, err := s.index.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", s.index.Collection(), err)
	}
	if built {
		if err := s.index.ValidateManifest(ctx, s.cfg.Dimensions); err != nil {
			return err
		}
		s.logger.Info("Collection already built, skipping ingestion",
			zap.String("collection", s.index.Collection()))
		return nil
	}

	return s.build(ctx)
}

// Rebuild drops the collection and builds it from scratch.
func (s *Service) Rebuild(ctx context.Context) error {
	s.logger.Info("Rebuilding collection", zap.String("collection", s.index.Collection()))
	if err := s.index.Drop(ctx); err != nil {
		return fmt.Errorf("drop collection %s: %w", s.index.Collection(), err)
	}
	return s.build(ctx)
}

func (s *Service) build(ctx context.Context) error {
	runID := uuid.NewString()
	start := time.Now()
	log := s.logger.With(
		zap.String("run_id", runID),
		zap.String("collection", s.index.Collection()))

	log.Info("Starting corpus ingestion", zap.Strings("sources", s.cfg.Sources))

	docs, err := s.loadSources()
	if err != nil {
		return err
	}

	chunks := s.chunker.SplitAll(docs)
	log.Info("Corpus chunked",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)))

	if err := s.index.EnsureIndex(ctx, s.cfg.Dimensions); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}

	if err := s.clearSources(ctx, docs, log); err != nil {
		return err
	}

	total, err := s.embedAndUpsert(ctx, chunks, log)
	if err != nil {
		return err
	}

	m := index.Manifest{
		Dimensions:     s.cfg.Dimensions,
		Model:          s.cfg.Model,
		ChunkSize:      s.cfg.ChunkSize,
		ChunkOverlap:   s.cfg.ChunkOverlap,
		SourceChecksum: corpusChecksum(docs),
		RecordCount:    total,
	}
	if err := s.index.WriteManifest(ctx, m); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	log.Info("Corpus ingestion finished",
		zap.Int("records", total),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (s *Service) loadSources() ([]domain.Document, error) {
	var docs []domain.Document
	for _, src := range s.cfg.Sources {
		loaded, err := s.loader.Load(src)
		if err != nil {
			return nil, fmt.Errorf("load source %s: %w", src, err)
		}
		docs = append(docs, loaded...)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents found in sources %v: %w",
			s.cfg.Sources, domain.ErrIngestion)
	}
	return docs, nil
}

// clearSources removes prior records for every source about to be written,
// so re-ingesting a changed document cannot leave orphaned chunks behind.
func (s *Service) clearSources(ctx context.Context, docs []domain.Document, log *zap.Logger) error {
	seen := make(map[string]struct{})
	for _, doc := range docs {
		if _, ok := seen[doc.Source]; ok {
			continue
		}
		seen[doc.Source] = struct{}{}

		removed, err := s.index.DeleteBySource(ctx, doc.Source)
		if err != nil {
			return fmt.Errorf("clear source %s: %w", doc.Source, err)
		}
		if removed > 0 {
			log.Info("Removed stale records for source",
				zap.String("source", doc.Source),
				zap.Int("removed", removed))
		}
	}
	return nil
}

func (s *Service) embedAndUpsert(ctx context.Context, chunks []domain.Chunk, log *zap.Logger) (int, error) {
	total := 0
	for batchStart := 0; batchStart < len(chunks); batchStart += s.cfg.BatchSize {
		batchEnd := min(batchStart+s.cfg.BatchSize, len(chunks))
		batch := chunks[batchStart:batchEnd]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}

		res, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed batch at %d: %w", batchStart, err)
		}
		if len(res.Embeddings) != len(batch) {
			return 0, fmt.Errorf("embed batch at %d: got %d vectors for %d chunks: %w",
				batchStart, len(res.Embeddings), len(batch), domain.ErrEmbeddingProviderError)
		}

		// The first vector reveals the provider's real output width. A
		// mismatch against configuration is fatal before anything is
		// written with the wrong shape.
		if batchStart == 0 && len(res.Embeddings[0]) != s.cfg.Dimensions {
			return 0, fmt.Errorf(
				"embedder returned %d dimensions, configured for %d: %w",
				len(res.Embeddings[0]), s.cfg.Dimensions, domain.ErrConfiguration)
		}

		records := make([]domain.IndexRecord, len(batch))
		for i, ch := range batch {
			records[i] = domain.IndexRecord{Chunk: ch, Vector: res.Embeddings[i]}
		}
		if err := s.index.UpsertRecords(ctx, records, s.cfg.Dimensions); err != nil {
			return 0, fmt.Errorf("upsert batch at %d: %w", batchStart, err)
		}

		total += len(batch)
		log.Info("Ingested batch",
			zap.Int("done", total),
			zap.Int("of", len(chunks)),
			zap.Int("batch_tokens", res.TotalTokens))

		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// corpusChecksum hashes every document's source and text in load order.
// Stored in the manifest so a later run can tell the corpus changed.
func corpusChecksum(docs []domain.Document) string {
	h := sha256.New()
	for _, doc := range docs {
		h.Write([]byte(doc.Source))
		h.Write([]byte{0})
		h.Write([]byte(doc.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Stale reports whether the persisted manifest no longer matches the
// corpus on disk. It never triggers a rebuild by itself.
func (s *Service) Stale(ctx context.Context) (bool, error) {
	m, err := s.index.Manifest(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotBuilt) {
			return true, nil
		}
		return false, err
	}

	docs, err := s.loadSources()
	if err != nil {
		return false, err
	}
	return corpusChecksum(docs) != m.SourceChecksum, nil
}
