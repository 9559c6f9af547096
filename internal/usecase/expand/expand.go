// Package expand rewrites a user question into several alternative
// phrasings to widen vector search recall.
package expand

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
)

const promptTemplate = `You are a search query expander. Rewrite the question below into %d alternative phrasings that mean the same thing but use different wording. Output one phrasing per line, with no numbering, bullets, or commentary.

Question: %s`

// Expander produces query variants via a generative model. Expansion is
// best-effort: any failure degrades to searching with the original
// question alone.
type Expander struct {
	gen    domain.Generator
	n      int
	logger *zap.Logger
}

// New creates an expander that requests n paraphrases per question.
func New(gen domain.Generator, n int, logger *zap.Logger) *Expander {
	return &Expander{gen: gen, n: n, logger: logger}
}

// Expand returns the question followed by up to n distinct paraphrases.
// The original question is always the first element, and the result is
// never empty.
func (e *Expander) Expand(ctx context.Context, question string) []string {
	if e.n <= 0 {
		return []string{question}
	}

	raw, err := e.gen.Generate(ctx, fmt.Sprintf(promptTemplate, e.n, question))
	if err != nil {
		e.logger.Warn("Query expansion failed, searching with original question",
			zap.Error(err))
		return []string{question}
	}

	variants := parseVariants(raw, question, e.n)
	if len(variants) == 0 {
		e.logger.Warn("Query expansion returned no usable variants",
			zap.String("raw", raw))
	}

	return append([]string{question}, variants...)
}

// parseVariants extracts up to n paraphrases from the model output.
// Models ignore formatting instructions often enough that numbering and
// bullets are stripped defensively, and lines duplicating the original
// question or each other (case-insensitive) are dropped.
func parseVariants(raw, original string, n int) []string {
	seen := map[string]struct{}{
		strings.ToLower(strings.TrimSpace(original)): {},
	}

	var variants []string
	for _, line := range strings.Split(raw, "\n") {
		v := cleanVariant(line)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		variants = append(variants, v)
		if len(variants) == n {
			break
		}
	}
	return variants
}

// cleanVariant trims a line and strips list markers: "1. ", "2) ", "- ",
// "* ", "• ".
func cleanVariant(line string) string {
	s := strings.TrimSpace(line)

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		s = s[i+1:]
	}

	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return r == '-' || r == '*' || r == '•' || unicode.IsSpace(r)
	})

	return strings.TrimSpace(s)
}
