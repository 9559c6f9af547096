// Package retrieve runs vector search across query variants and merges
// the results into a bounded context for answer synthesis.
package retrieve

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// searcher is the index side of retrieval (ISP).
type searcher interface {
	SearchKNN(ctx context.Context, vector []float32, k int) ([]domain.ScoredChunk, error)
}

// Retriever fans a set of query variants out over the vector index in
// parallel and merges the hits.
type Retriever struct {
	embedder        domain.Embedder
	index           searcher
	perVariantK     int
	maxContextChars int
	logger          *zap.Logger
}

// New creates a retriever. perVariantK is the KNN depth per query variant;
// maxContextChars bounds the total text returned.
func New(embedder domain.Embedder, index searcher, perVariantK, maxContextChars int, logger *zap.Logger) *Retriever {
	return &Retriever{
		embedder:        embedder,
		index:           index,
		perVariantK:     perVariantK,
		maxContextChars: maxContextChars,
		logger:          logger,
	}
}

// Retrieve embeds each variant, searches the index for each in parallel,
// and returns the merged candidates sorted by score descending, truncated
// so the total chunk text stays within maxContextChars.
//
// A variant that fails to embed or search is logged and skipped; the
// merged result carries whatever the remaining variants produced. An empty
// index yields an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, variants []string) ([]domain.ScoredChunk, error) {
	if len(variants) == 0 {
		return nil, nil
	}

	// One result slot per variant. Goroutines write only their own slot;
	// merging happens after Wait.
	hits := make([][]domain.ScoredChunk, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	for i, variant := range variants {
		g.Go(func() error {
			res, err := r.embedder.Embed(gctx, variant)
			if err != nil {
				r.reportVariantError("embed query variant", variant, err)
				return nil
			}

			found, err := r.index.SearchKNN(gctx, res.Embedding, r.perVariantK)
			if err != nil {
				r.reportVariantError("search query variant", variant, err)
				return nil
			}

			hits[i] = found
			return nil
		})
	}
	// Goroutines swallow their own errors, so Wait only synchronizes.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := mergeHits(hits)
	metrics.RetrievalCandidatesTotal.Observe(float64(len(merged)))

	return r.truncate(merged), nil
}

func (r *Retriever) reportVariantError(op, variant string, err error) {
	metrics.RetrievalVariantErrorsTotal.Inc()
	r.logger.Warn("Retrieval variant failed",
		zap.String("op", op),
		zap.String("variant", variant),
		zap.Error(err))
}

// mergeHits deduplicates by chunk ID keeping the maximum score, then sorts
// by score descending with chunk ID as the tie-break for determinism.
func mergeHits(hits [][]domain.ScoredChunk) []domain.ScoredChunk {
	best := make(map[string]domain.ScoredChunk)
	for _, variantHits := range hits {
		for _, sc := range variantHits {
			if prev, ok := best[sc.Chunk.ID]; !ok || sc.Score > prev.Score {
				best[sc.Chunk.ID] = sc
			}
		}
	}

	merged := make([]domain.ScoredChunk, 0, len(best))
	for _, sc := range best {
		merged = append(merged, sc)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Chunk.ID < merged[j].Chunk.ID
	})
	return merged
}

// truncate keeps the highest-scored chunks whose cumulative text length
// fits maxContextChars. The first chunk is kept even if it alone exceeds
// the budget, so a successful search never produces an empty context.
func (r *Retriever) truncate(merged []domain.ScoredChunk) []domain.ScoredChunk {
	if r.maxContextChars <= 0 {
		return merged
	}

	total := 0
	for i, sc := range merged {
		total += len(sc.Chunk.Text)
		if total > r.maxContextChars && i > 0 {
			return merged[:i]
		}
	}
	return merged
}
