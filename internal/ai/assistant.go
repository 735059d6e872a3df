package ai

import (
	"context"

	"github.com/spigell/resume-match/internal/scoring"
)

// Rewriter produces rewrite suggestions for a scored payload.
type Rewriter interface {
	Rewrite(ctx context.Context, payload *scoring.Payload) (*scoring.RewriteResult, error)
}

// RewriterFunc adapts a function to Rewriter.
type RewriterFunc func(ctx context.Context, payload *scoring.Payload) (*scoring.RewriteResult, error)

func (f RewriterFunc) Rewrite(ctx context.Context, payload *scoring.Payload) (*scoring.RewriteResult, error) {
	return f(ctx, payload)
}
