package domain

import "errors"

var (
	// ErrConfiguration signals an invalid configuration (chunk sizes, embedding dimensions).
	ErrConfiguration = errors.New("invalid configuration")
	// ErrIngestion signals a loader or document failure during corpus build.
	ErrIngestion = errors.New("ingestion failed")
	// ErrIndexCorruption signals unreadable or dimension-mismatched persisted index state.
	ErrIndexCorruption = errors.New("index corrupted")
	// ErrInvalidArgument signals an out-of-range argument on a query operation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrEmptyQuestion signals an empty or whitespace-only question.
	ErrEmptyQuestion = errors.New("empty question")
	// ErrNotBuilt signals a query against a collection that has not been ingested yet.
	ErrNotBuilt = errors.New("collection not built")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationFailure signals a generative model failure.
	ErrGenerationFailure = errors.New("generation failed")
)
