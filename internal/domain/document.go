package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// KeyPrefix namespaces all keys written by docqa in a shared store.
const KeyPrefix = "docqa:"

// Document is a loaded source document: raw text plus provenance.
// Owned transiently by the ingestion path, never persisted as-is.
type Document struct {
	Source string // source identifier, usually a file path
	Page   int    // 1-based page number when the loader knows it, 0 otherwise
	Text   string
}

// Chunk is a bounded contiguous segment of a Document, the unit of
// embedding and retrieval.
type Chunk struct {
	ID     string
	Source string
	Page   int
	Offset int // character offset of the chunk start within the document
	Text   string
}

// ChunkID derives the stable chunk identifier from source provenance and
// offset. Identical input always yields the same ID, which is what makes
// upserts idempotent.
func ChunkID(source string, page, offset int) string {
	h := sha256.Sum256([]byte(source + ":" + strconv.Itoa(page) + ":" + strconv.Itoa(offset)))
	return hex.EncodeToString(h[:])
}

// IndexRecord is a chunk paired with its embedding vector, the unit the
// vector index stores.
type IndexRecord struct {
	Chunk  Chunk
	Vector []float32
}

// ScoredChunk is a retrieval hit: a chunk plus its similarity score
// (higher means more similar).
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}
