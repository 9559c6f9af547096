package domain

import "context"

// Generator is the generative model boundary. The pipeline treats it as a
// black box: one prompt in, one completion out, no streaming.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
