// Package embedding turns text into fixed-dimension vectors, degrading to
// well-typed fallback vectors when the real model is unreachable.
package embedding

import (
	"context"
	"log"
	"math/rand/v2"
)

// Client is the embedding backend. A nil client puts the provider into
// degraded mode permanently.
type Client interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Result is an embedding outcome. The vector always has the provider's
// advertised dimension; Degraded marks vectors from the fallback generator,
// which are not semantically meaningful and must never feed confidence
// scoring as if they were.
type Result struct {
	Vector   []float32
	Degraded bool
}

// Provider generates embeddings of a fixed dimension.
type Provider struct {
	client    Client
	dimension int
}

// NewProvider creates a Provider. client may be nil, in which case every
// embedding comes from the fallback generator and Available reports false.
func NewProvider(client Client, dimension int) *Provider {
	if dimension <= 0 {
		dimension = 1536
	}
	return &Provider{client: client, dimension: dimension}
}

// Dimension returns the fixed vector dimension.
func (p *Provider) Dimension() int {
	return p.dimension
}

// Available reports whether real embeddings are being produced.
func (p *Provider) Available() bool {
	return p.client != nil
}

// Embed returns a vector for text. Callers never need a nil check: on any
// backend failure the result is a fallback vector of the correct dimension
// with Degraded set.
func (p *Provider) Embed(ctx context.Context, text string) Result {
	results := p.EmbedMany(ctx, []string{text})
	return results[0]
}

// EmbedMany returns one Result per input text, in order.
func (p *Provider) EmbedMany(ctx context.Context, texts []string) []Result {
	if p.client == nil {
		return p.fallbackResults(len(texts))
	}

	embeddings, err := p.client.CreateEmbeddings(ctx, texts)
	if err != nil {
		log.Printf("embedding: falling back to random vectors: %v", err)
		return p.fallbackResults(len(texts))
	}

	results := make([]Result, len(embeddings))
	for i, e := range embeddings {
		results[i] = Result{Vector: e}
	}
	return results
}

func (p *Provider) fallbackResults(n int) []Result {
	results := make([]Result, n)
	for i := range results {
		results[i] = Result{Vector: p.randomVector(), Degraded: true}
	}
	return results
}

func (p *Provider) randomVector() []float32 {
	v := make([]float32, p.dimension)
	for i := range v {
		v[i] = rand.Float32()
	}
	return v
}
