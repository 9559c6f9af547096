// Package answer turns a user question into a grounded answer: expand the
// question, retrieve supporting chunks, synthesize a reply.
package answer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// EmptyQuestionGuidance is returned for blank input without touching the
// model or the index.
const EmptyQuestionGuidance = "Please provide a question so I can search the document corpus for an answer."

// failureNotice is shown when synthesis itself fails. The pipeline
// promises a string for every question, including this case.
const failureNotice = "I could not generate an answer due to an internal error. Please try again."

type expander interface {
	Expand(ctx context.Context, question string) []string
}

type retriever interface {
	Retrieve(ctx context.Context, variants []string) ([]domain.ScoredChunk, error)
}

// Service is the query-time pipeline. Every stage degrades instead of
// failing: expansion falls back to the original question, retrieval skips
// broken variants, and synthesis errors become an apologetic string.
type Service struct {
	expander    expander
	retriever   retriever
	synthesizer *Synthesizer
	logger      *zap.Logger
}

// New wires the query-time pipeline.
func New(e expander, r retriever, s *Synthesizer, logger *zap.Logger) *Service {
	return &Service{expander: e, retriever: r, synthesizer: s, logger: logger}
}

// Answer runs the full pipeline and always returns a displayable string.
// A question that is empty after trimming whitespace short-circuits to
// EmptyQuestionGuidance with no model or index calls.
func (s *Service) Answer(ctx context.Context, question string) string {
	if strings.TrimSpace(question) == "" {
		return EmptyQuestionGuidance
	}

	variants := s.expander.Expand(ctx, question)

	chunks, err := s.retriever.Retrieve(ctx, variants)
	if err != nil {
		// Retrieve only errors on context cancellation. Synthesis would
		// fail on the same dead context, so answer plainly.
		s.logger.Warn("Retrieval aborted", zap.Error(err))
		return failureNotice
	}

	s.logger.Info("Retrieved context for question",
		zap.Int("variants", len(variants)),
		zap.Int("chunks", len(chunks)))

	return s.synthesizer.Synthesize(ctx, question, chunks)
}
