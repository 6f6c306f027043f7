package providers

import (
	"context"
	"fmt"
	"strings"
)

// Provider is the generative text capability consumed by the drafting engine.
// Implementations perform a single completion per call; retry policy lives in
// the pipeline, never here.
type Provider interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Name() string
}

// LocalProvider is a deterministic offline stand-in used when no API key is
// configured. It emits a minimal but structurally valid letter so the
// pipeline can be exercised end to end without network access.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (l *LocalProvider) Generate(ctx context.Context, system, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("no prompt provided")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Dear Sir or Madam,\n\n")
	b.WriteString("I am writing to formally challenge the penalty charge notice described below.\n\n")
	b.WriteString(excerpt(prompt))
	b.WriteString("\n\nI respectfully request that the notice be cancelled.\n\nYours faithfully,\n")
	return b.String(), nil
}

func (l *LocalProvider) Name() string {
	return "local"
}

func excerpt(prompt string) string {
	const max = 400
	trimmed := strings.TrimSpace(prompt)
	if len(trimmed) <= max {
		return trimmed
	}
	return trimmed[:max]
}
