package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAI embeds through the OpenAI embeddings API or a compatible server.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI returns an OpenAI embedder. baseURL may be empty for the
// public API.
func NewOpenAI(apiKey, baseURL, model string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("embedding: openai api key is empty")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// Embed implements Embedder.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return batched(ctx, texts, batchSize, func(ctx context.Context, batch []string) ([][]float32, error) {
		resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(o.model),
		})
		if err != nil {
			return nil, fmt.Errorf("embedding: openai %s: %w", o.model, err)
		}
		vecs := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(vecs) {
				return nil, fmt.Errorf("embedding: openai returned index %d for %d inputs", d.Index, len(batch))
			}
			vecs[d.Index] = d.Embedding
		}
		for i, v := range vecs {
			if v == nil {
				return nil, fmt.Errorf("embedding: openai returned no vector for input %d", i)
			}
		}
		return vecs, nil
	})
}
