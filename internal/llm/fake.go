package llm

import (
	"context"
	"fmt"
)

// Fake is a deterministic Client for tests and offline operation. It
// never calls out to a network and always reports Available.
type Fake struct {
	ExpandFn      func(query string, n int) []string
	HypothesizeFn func(query string) string
}

// NewFake builds a Fake with reasonable default behavior: Expand
// returns min(n, 3) syntactic rewordings, Hypothesize returns a templated
// pseudo-answer.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Expand(ctx context.Context, query string, n int) ([]string, error) {
	if f.ExpandFn != nil {
		return f.ExpandFn(query, n), nil
	}
	variations := make([]string, 0, n)
	templates := []string{"how to %s", "what is %s", "explain %s"}
	for i := 0; i < n && i < len(templates); i++ {
		variations = append(variations, fmt.Sprintf(templates[i], query))
	}
	return variations, nil
}

func (f *Fake) Hypothesize(ctx context.Context, query string) (string, error) {
	if f.HypothesizeFn != nil {
		return f.HypothesizeFn(query), nil
	}
	return fmt.Sprintf("This document explains %s in detail, covering the relevant implementation and its rationale.", query), nil
}

func (f *Fake) Available(ctx context.Context) bool { return true }

var _ Client = (*Fake)(nil)
