package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms/ollama"
)

// Ollama embeds through a local Ollama server.
type Ollama struct {
	llm   *ollama.LLM
	model string
}

// NewOllama connects to serverURL (DefaultOllamaURL when empty) using model.
func NewOllama(serverURL, model string) (*Ollama, error) {
	if serverURL == "" {
		serverURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
		ollama.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
	)
	if err != nil {
		return nil, fmt.Errorf("embedding: ollama client: %w", err)
	}
	return &Ollama{llm: llm, model: model}, nil
}

// Embed implements Embedder.
func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return batched(ctx, texts, batchSize, func(ctx context.Context, batch []string) ([][]float32, error) {
		vecs, err := o.llm.CreateEmbedding(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embedding: ollama %s: %w", o.model, err)
		}
		return vecs, nil
	})
}
