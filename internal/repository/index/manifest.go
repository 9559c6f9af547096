package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/docqa/internal/db"
	"github.com/kailas-cloud/docqa/internal/domain"
)

// Manifest is the versioned build record of a collection. Its presence is
// what makes the collection authoritative: ingestion is skipped while a
// valid manifest exists. The source checksum records what the index was
// built from so a stale index is at least detectable.
type Manifest struct {
	Dimensions     int    `json:"dimensions"`
	Model          string `json:"model"`
	ChunkSize      int    `json:"chunk_size"`
	ChunkOverlap   int    `json:"chunk_overlap"`
	SourceChecksum string `json:"source_checksum"`
	RecordCount    int    `json:"record_count"`
	BuiltAt        int64  `json:"built_at"` // unix seconds
}

// Manifest reads the collection manifest. Returns domain.ErrNotBuilt when
// absent and domain.ErrIndexCorruption when unreadable.
func (r *Repo) Manifest(ctx context.Context) (Manifest, error) {
	data, err := r.store.Get(ctx, r.manifestKey())
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return Manifest{}, domain.ErrNotBuilt
		}
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: unreadable manifest for %s: %w",
			domain.ErrIndexCorruption, r.collection, err)
	}
	return m, nil
}

// WriteManifest persists the build record, stamping BuiltAt.
func (r *Repo) WriteManifest(ctx context.Context, m Manifest) error {
	m.BuiltAt = time.Now().Unix()
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := r.store.Set(ctx, r.manifestKey(), data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ValidateManifest checks a persisted collection against the configured
// embedding dimension. A mismatch means the index was built with a different
// embedder and must not be silently reused.
func (r *Repo) ValidateManifest(ctx context.Context, dimensions int) error {
	m, err := r.Manifest(ctx)
	if err != nil {
		return err
	}
	if m.Dimensions != dimensions {
		return fmt.Errorf("%w: collection %s built with dimension %d, embedder configured for %d",
			domain.ErrIndexCorruption, r.collection, m.Dimensions, dimensions)
	}
	return nil
}
