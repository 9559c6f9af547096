package retrieve

import (
	"context"

	"github.com/kailas-cloud/docqa/internal/domain"
)

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return m.embedFn(ctx, text)
}

type mockSearcher struct {
	searchFn func(ctx context.Context, vector []float32, k int) ([]domain.ScoredChunk, error)
}

func (m *mockSearcher) SearchKNN(ctx context.Context, vector []float32, k int) ([]domain.ScoredChunk, error) {
	return m.searchFn(ctx, vector, k)
}

func scored(id, text string, score float64) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk: domain.Chunk{ID: id, Source: "doc.txt", Text: text},
		Score: score,
	}
}

// identityEmbedder maps each variant to a fixed vector so searchFn can
// dispatch on the variant.
func identityEmbedder() *mockEmbedder {
	return &mockEmbedder{
		embedFn: func(_ context.Context, text string) (domain.EmbeddingResult, error) {
			return domain.EmbeddingResult{Embedding: []float32{float32(len(text))}}, nil
		},
	}
}
