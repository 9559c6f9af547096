package embcache

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
)

type mockStore struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte) error
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	return m.getFn(ctx, key)
}

func (m *mockStore) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	return nil
}

type mockEmbedder struct {
	embedFn      func(ctx context.Context, text string) (domain.EmbeddingResult, error)
	batchEmbedFn func(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return m.embedFn(ctx, text)
}

func (m *mockEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return m.batchEmbedFn(ctx, texts)
}

// singleEmbedder has no BatchEmbed, forcing the fallback path.
type singleEmbedder struct {
	embedFn func(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

func (m *singleEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return m.embedFn(ctx, text)
}

func newTestCache(inner domain.Embedder, s store) *CachedEmbedder {
	return New(inner, s, nil, zap.NewNop())
}
