package answer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
)

const synthesisHeader = `Answer the question using the context passages below. If the context does not contain the answer, say so instead of guessing.`

// Synthesizer builds the grounding prompt and calls the generative model.
type Synthesizer struct {
	gen    domain.Generator
	logger *zap.Logger
}

// NewSynthesizer creates an answer synthesizer.
func NewSynthesizer(gen domain.Generator, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{gen: gen, logger: logger}
}

// Synthesize asks the model to answer the question from the given chunks
// and always returns a displayable string. The model is called even with
// no chunks: it then answers from the empty context, typically stating
// that nothing relevant was found.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, chunks []domain.ScoredChunk) string {
	reply, err := s.gen.Generate(ctx, buildPrompt(question, chunks))
	if err != nil {
		s.logger.Error("Answer synthesis failed", zap.Error(err))
		return failureNotice
	}
	return reply
}

// buildPrompt lays out the instruction, the retrieved passages in score
// order, and the question verbatim.
func buildPrompt(question string, chunks []domain.ScoredChunk) string {
	var b strings.Builder
	b.WriteString(synthesisHeader)
	b.WriteString("\n\nContext:\n")

	if len(chunks) == 0 {
		b.WriteString("(no relevant passages found)\n")
	}
	for i, sc := range chunks {
		fmt.Fprintf(&b, "\n[%d] (source: %s)\n%s\n", i+1, sc.Chunk.Source, sc.Chunk.Text)
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
