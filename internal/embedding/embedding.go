// Package embedding turns text into vectors through a configured provider.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// Providers accepted by New.
const (
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderDisabled = "disabled"
)

// Defaults applied when configuration leaves a field empty.
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultOpenAIModel = "text-embedding-3-small"
)

// batchSize bounds how many texts go into one provider request.
const batchSize = 64

// ErrDisabled is returned by New when semantic search is turned off.
var ErrDisabled = errors.New("embedding: provider disabled")

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider  string
	Model     string
	ServerURL string
	APIKey    string
}

// New builds the embedder named by cfg.Provider.
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case ProviderOllama, "":
		return NewOllama(cfg.ServerURL, cfg.Model)
	case ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.ServerURL, cfg.Model)
	case ProviderDisabled:
		return nil, ErrDisabled
	}
	return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding: expected 1 vector, got %d", len(vecs))
	}
	return vecs[0], nil
}

// batched calls fn on consecutive slices of at most size texts and
// concatenates the results, checking that every batch is answered in full.
func batched(ctx context.Context, texts []string, size int, fn func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		vecs, err := fn(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedding: provider returned %d vectors for %d texts", len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}
