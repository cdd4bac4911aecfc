// Package embedding implements the Embedder: a provider-agnostic
// text-to-vector component with an on-disk content-addressed cache, built
// around a low-level Provider interface (remote HTTP clients, a local
// model, or a test stub) dispatched by a factory, a sum type rather than
// open-coded string checks scattered through callers.
package embedding

import (
	"fmt"

	"github.com/ehrlich-b/kgraph/internal/kgerrors"
)

// Provider is the low-level text->vector operation a concrete backend
// implements: remote API, local model, or test stub.
type Provider interface {
	Embed(texts []string) ([][]float32, error)
	Dims() int
	Name() string // unique key for caching, e.g. "openai-3small-512"
}

// TaskType distinguishes document embeddings (stored, searched against)
// from query embeddings (used once per retrieval call); some providers
// use different instructions for each.
type TaskType string

const (
	TaskDocument TaskType = "doc"
	TaskQuery    TaskType = "query"
)

// Embedder wraps a Provider with a task-aware embed_document/embed_query/embed_batch surface.
type Embedder struct {
	provider Provider
}

// New wraps a Provider as an Embedder.
func New(p Provider) *Embedder {
	return &Embedder{provider: p}
}

// Dims returns the provider's vector dimensionality.
func (e *Embedder) Dims() int { return e.provider.Dims() }

// Name returns the provider's cache-key identifier.
func (e *Embedder) Name() string { return e.provider.Name() }

// EmbedDocument embeds text for storage. A non-empty context is prepended
// as "{context}: {text}" before embedding.
func (e *Embedder) EmbedDocument(text, context string) ([]float32, error) {
	vecs, err := e.provider.Embed([]string{withContext(text, context)})
	if err != nil {
		return nil, fmt.Errorf("embedding: embed_document: %w", err)
	}
	if len(vecs) != 1 {
		return nil, kgerrors.Wrap(kgerrors.Transient, "provider returned %d vectors for 1 input", len(vecs))
	}
	return vecs[0], nil
}

// EmbedQuery embeds a query string, with no context prefix.
func (e *Embedder) EmbedQuery(text string) ([]float32, error) {
	vecs, err := e.provider.Embed([]string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding: embed_query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, kgerrors.Wrap(kgerrors.Transient, "provider returned %d vectors for 1 input", len(vecs))
	}
	return vecs[0], nil
}

// EmbedBatch embeds a batch of documents. contexts, if non-nil, must be
// equal in length to texts. Batch calls are all-or-nothing: any provider
// error fails the whole batch.
func (e *Embedder) EmbedBatch(texts []string, contexts []string) ([][]float32, error) {
	if contexts != nil && len(contexts) != len(texts) {
		return nil, kgerrors.Wrap(kgerrors.Invalid, "contexts length %d != texts length %d", len(contexts), len(texts))
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		ctx := ""
		if contexts != nil {
			ctx = contexts[i]
		}
		inputs[i] = withContext(t, ctx)
	}
	vecs, err := e.provider.Embed(inputs)
	if err != nil {
		return nil, fmt.Errorf("embedding: embed_batch: %w", err)
	}
	return vecs, nil
}

func withContext(text, context string) string {
	if context == "" {
		return text
	}
	return context + ": " + text
}
