package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kailas-cloud/docqa/internal/db"
)

// SearchKNN performs an exact cosine-similarity scan over the records
// covered by the index's key prefixes. Entries are returned sorted by
// non-increasing score, at most K of them.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	def, err := s.indexDefinition(ctx, q.IndexName)
	if err != nil {
		return nil, err
	}

	vectorField := vectorFieldName(def)
	if vectorField == "" {
		return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("index %s has no vector field", q.IndexName)}
	}

	keys, err := s.prefixKeys(ctx, def.Prefixes)
	if err != nil {
		return nil, err
	}

	entries := make([]db.SearchEntry, 0, len(keys))
	for _, key := range keys {
		fields, err := s.HGetAll(ctx, key)
		if err != nil {
			return nil, err
		}

		vec := bytesToVector(fields[vectorField])
		if vec == nil || len(vec) != len(q.Vector) {
			continue
		}

		score := max(0, cosineSimilarity(q.Vector, vec))
		entries = append(entries, db.SearchEntry{
			Key:    key,
			Score:  score,
			Fields: projectFields(fields, q.ReturnFields),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	if len(entries) > q.K {
		entries = entries[:q.K]
	}

	return &db.SearchResult{Total: len(entries), Entries: entries}, nil
}

func (s *Store) prefixKeys(ctx context.Context, prefixes []string) ([]string, error) {
	seen := make(map[string]bool)
	var keys []string
	for _, p := range prefixes {
		matched, err := s.Scan(ctx, p+"*")
		if err != nil {
			return nil, err
		}
		for _, k := range matched {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys) // deterministic scan order
	return keys, nil
}

func vectorFieldName(def *db.IndexDefinition) string {
	for _, f := range def.Fields {
		if f.Type == db.IndexFieldVector {
			if f.Alias != "" {
				return f.Alias
			}
			return f.Name
		}
	}
	return ""
}

func projectFields(fields map[string]string, returnFields []string) map[string]string {
	if len(returnFields) == 0 {
		return fields
	}
	out := make(map[string]string, len(returnFields))
	for _, f := range returnFields {
		if strings.HasPrefix(f, "__vector_score") {
			continue // synthesized by the search itself
		}
		if v, ok := fields[f]; ok {
			out[f] = v
		}
	}
	return out
}

func cosineSimilarity(a []float32, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
