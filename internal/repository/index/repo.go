// Package index persists chunk records and serves nearest-neighbor lookups
// for one named collection.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/docqa/internal/db"
	"github.com/kailas-cloud/docqa/internal/domain"
)

// store is the consumer interface for the index repository (ISP).
//
//nolint:interfacebloat // index repo needs hash + kv + index management operations
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// HNSWConfig holds HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements the vector index contract for one collection.
type Repo struct {
	store      store
	collection string
	hnsw       HNSWConfig
}

// New creates an index repository for the named collection.
func New(s store, collection string) *Repo {
	return &Repo{store: s, collection: collection, hnsw: HNSWConfig{M: 32, EFConstruct: 400}}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// Collection returns the collection name.
func (r *Repo) Collection() string {
	return r.collection
}

func (r *Repo) keyPrefix() string {
	return domain.KeyPrefix + r.collection + ":"
}

func (r *Repo) recordKey(chunkID string) string {
	return r.keyPrefix() + chunkID
}

func (r *Repo) indexName() string {
	return r.keyPrefix() + "idx"
}

func (r *Repo) manifestKey() string {
	return r.keyPrefix() + "manifest"
}

// Exists reports whether the collection has been built: both its manifest
// and its search index must be present.
func (r *Repo) Exists(ctx context.Context) (bool, error) {
	if _, err := r.Manifest(ctx); err != nil {
		if errors.Is(err, domain.ErrNotBuilt) {
			return false, nil
		}
		return false, err
	}

	found, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", r.indexName(), err)
	}
	return found, nil
}

// EnsureIndex creates the search index for the collection. An index that
// already exists is fine: definitions are immutable per collection.
func (r *Repo) EnsureIndex(ctx context.Context, dimensions int) error {
	def := &db.IndexDefinition{
		Name:     r.indexName(),
		Prefixes: []string{r.keyPrefix()},
		Fields: []db.IndexField{
			{Name: fieldSource, Type: db.IndexFieldTag},
			{Name: fieldOffset, Type: db.IndexFieldNumeric},
			{
				Name:              fieldVector,
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         dimensions,
				VectorDistance:    db.DistanceCosine,
				VectorM:           r.hnsw.M,
				VectorEFConstruct: r.hnsw.EFConstruct,
			},
		},
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.indexName(), err)
	}
	return nil
}

// UpsertRecords stores chunk records, replacing any prior record with the
// same chunk ID. All vectors must share the given dimensionality.
func (r *Repo) UpsertRecords(ctx context.Context, records []domain.IndexRecord, dimensions int) error {
	if len(records) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(records))
	for i, rec := range records {
		if len(rec.Vector) != dimensions {
			return fmt.Errorf("%w: chunk %s has %d dimensions, want %d",
				domain.ErrVectorDimMismatch, rec.Chunk.ID, len(rec.Vector), dimensions)
		}
		items[i] = db.HashSetItem{
			Key:    r.recordKey(rec.Chunk.ID),
			Fields: recordFields(rec),
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(records), err)
	}
	return nil
}

// DeleteBySource removes every record that came from the given source,
// scoping the replace of a changed document and preventing stale entries.
func (r *Repo) DeleteBySource(ctx context.Context, source string) (int, error) {
	keys, err := r.store.Scan(ctx, r.keyPrefix()+"*")
	if err != nil {
		return 0, fmt.Errorf("scan records: %w", err)
	}

	deleted := 0
	for _, key := range keys {
		if r.isMetaKey(key) {
			continue
		}
		fields, err := r.store.HGetAll(ctx, key)
		if err != nil {
			return deleted, fmt.Errorf("read record %s: %w", key, err)
		}
		if fields[fieldSource] != source {
			continue
		}
		if err := r.store.Del(ctx, key); err != nil {
			return deleted, fmt.Errorf("delete record %s: %w", key, err)
		}
		deleted++
	}
	return deleted, nil
}

// Drop removes the search index, all chunk records, and the manifest.
func (r *Repo) Drop(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.indexName()); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", r.indexName(), err)
	}

	keys, err := r.store.Scan(ctx, r.keyPrefix()+"*")
	if err != nil {
		return fmt.Errorf("scan records: %w", err)
	}
	for _, key := range keys {
		if err := r.store.Del(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

// SearchKNN returns up to k chunks ranked by similarity to the vector.
// An unbuilt collection yields an empty result, not an error: the caller
// decides how to present "nothing retrieved".
func (r *Repo) SearchKNN(ctx context.Context, vector []float32, k int) ([]domain.ScoredChunk, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", domain.ErrInvalidArgument, k)
	}

	q := &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       vector,
		K:            k,
		ReturnFields: []string{fieldText, fieldSource, fieldPage, fieldOffset, scoreField},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("search knn %s: %w", r.collection, err)
	}

	prefix := r.keyPrefix()
	results := make([]domain.ScoredChunk, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		chunkID := strings.TrimPrefix(entry.Key, prefix)
		results = append(results, domain.ScoredChunk{
			Chunk: chunkFromFields(chunkID, entry.Fields),
			Score: entry.Score,
		})
	}
	return results, nil
}

// isMetaKey reports whether the key holds collection metadata rather than
// a chunk record.
func (r *Repo) isMetaKey(key string) bool {
	return key == r.manifestKey() || key == r.indexName()
}
