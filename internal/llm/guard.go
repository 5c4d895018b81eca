package llm

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/timeout"
)

// GuardProvider bounds every Generate call by d. A call that runs over is
// cancelled and fails with timeout.ErrExceeded. There is no retry.
func GuardProvider(p Provider, d time.Duration) Provider {
	if p == nil || d <= 0 {
		return p
	}
	return &guardedProvider{next: p, policy: timeout.New[string](d)}
}

type guardedProvider struct {
	next   Provider
	policy timeout.Timeout[string]
}

func (g *guardedProvider) IsConfigured() bool {
	return g.next.IsConfigured()
}

func (g *guardedProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return failsafe.With[string](g.policy).WithContext(ctx).
		GetWithExecution(func(exec failsafe.Execution[string]) (string, error) {
			return g.next.Generate(exec.Context(), prompt, maxTokens)
		})
}

// GuardEmbedder bounds every Embed call by d, like GuardProvider.
func GuardEmbedder(e Embedder, d time.Duration) Embedder {
	if e == nil || d <= 0 {
		return e
	}
	return &guardedEmbedder{next: e, policy: timeout.New[[][]float64](d)}
}

type guardedEmbedder struct {
	next   Embedder
	policy timeout.Timeout[[][]float64]
}

func (g *guardedEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return failsafe.With[[][]float64](g.policy).WithContext(ctx).
		GetWithExecution(func(exec failsafe.Execution[[][]float64]) ([][]float64, error) {
			return g.next.Embed(exec.Context(), texts)
		})
}
