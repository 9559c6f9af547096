package ingest

import (
	"context"
	"testing"

	"go.uber.org/zap"

	chunkerpkg "github.com/kailas-cloud/docqa/internal/chunker"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/repository/index"
)

type mockLoader struct {
	loadFn func(path string) ([]domain.Document, error)
}

func (m *mockLoader) Load(path string) ([]domain.Document, error) {
	return m.loadFn(path)
}

type mockBatchEmbedder struct {
	batchEmbedFn func(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

func (m *mockBatchEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return m.batchEmbedFn(ctx, texts)
}

type mockIndex struct {
	existsFn           func(ctx context.Context) (bool, error)
	manifestFn         func(ctx context.Context) (index.Manifest, error)
	validateManifestFn func(ctx context.Context, dimensions int) error
	ensureIndexFn      func(ctx context.Context, dimensions int) error
	upsertRecordsFn    func(ctx context.Context, records []domain.IndexRecord, dimensions int) error
	deleteBySourceFn   func(ctx context.Context, source string) (int, error)
	writeManifestFn    func(ctx context.Context, m index.Manifest) error
	dropFn             func(ctx context.Context) error
}

func (m *mockIndex) Exists(ctx context.Context) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx)
	}
	return false, nil
}

func (m *mockIndex) Manifest(ctx context.Context) (index.Manifest, error) {
	if m.manifestFn != nil {
		return m.manifestFn(ctx)
	}
	return index.Manifest{}, domain.ErrNotBuilt
}

func (m *mockIndex) ValidateManifest(ctx context.Context, dimensions int) error {
	if m.validateManifestFn != nil {
		return m.validateManifestFn(ctx, dimensions)
	}
	return nil
}

func (m *mockIndex) EnsureIndex(ctx context.Context, dimensions int) error {
	if m.ensureIndexFn != nil {
		return m.ensureIndexFn(ctx, dimensions)
	}
	return nil
}

func (m *mockIndex) UpsertRecords(ctx context.Context, records []domain.IndexRecord, dimensions int) error {
	if m.upsertRecordsFn != nil {
		return m.upsertRecordsFn(ctx, records, dimensions)
	}
	return nil
}

func (m *mockIndex) DeleteBySource(ctx context.Context, source string) (int, error) {
	if m.deleteBySourceFn != nil {
		return m.deleteBySourceFn(ctx, source)
	}
	return 0, nil
}

func (m *mockIndex) WriteManifest(ctx context.Context, man index.Manifest) error {
	if m.writeManifestFn != nil {
		return m.writeManifestFn(ctx, man)
	}
	return nil
}

func (m *mockIndex) Drop(ctx context.Context) error {
	if m.dropFn != nil {
		return m.dropFn(ctx)
	}
	return nil
}

func (m *mockIndex) Collection() string { return "corpus" }

func newTestChunker(t *testing.T) *chunkerpkg.Chunker {
	t.Helper()
	c, err := chunkerpkg.New(100, 20)
	if err != nil {
		t.Fatalf("chunker.New: %v", err)
	}
	return c
}

// dimEmbedder returns vectors of the given width for every text.
func dimEmbedder(dims int) *mockBatchEmbedder {
	return &mockBatchEmbedder{
		batchEmbedFn: func(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
			vecs := make([][]float32, len(texts))
			for i := range vecs {
				vecs[i] = make([]float32, dims)
			}
			return domain.BatchEmbeddingResult{Embeddings: vecs, TotalTokens: len(texts)}, nil
		},
	}
}

func singleDocLoader(source, text string) *mockLoader {
	return &mockLoader{
		loadFn: func(_ string) ([]domain.Document, error) {
			return []domain.Document{{Source: source, Text: text}}, nil
		},
	}
}

func newTestService(t *testing.T, l loader, e domain.BatchEmbedder, idx indexRepo, cfg Config) *Service {
	t.Helper()
	return New(l, newTestChunker(t), e, idx, cfg, zap.NewNop())
}
