package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviders(t *testing.T) {
	_, err := New(Config{Provider: ProviderDisabled})
	require.ErrorIs(t, err, ErrDisabled)

	_, err = New(Config{Provider: "carrier-pigeon"})
	require.Error(t, err)

	_, err = New(Config{Provider: ProviderOpenAI})
	require.Error(t, err, "openai needs a key")

	e, err := New(Config{Provider: ProviderOpenAI, APIKey: "sk-test"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, e)

	e, err = New(Config{Provider: ProviderOllama})
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, e)
}

func TestBatched(t *testing.T) {
	texts := []string{"a", "b", "c", "d", "e"}
	var calls [][]string
	got, err := batched(context.Background(), texts, 2, func(_ context.Context, batch []string) ([][]float32, error) {
		calls = append(calls, batch)
		out := make([][]float32, len(batch))
		for i, s := range batch {
			out[i] = []float32{float32(s[0])}
		}
		return out, nil
	})
	require.NoError(t, err)
	assert.Len(t, calls, 3)
	require.Len(t, got, 5)
	assert.Equal(t, []float32{'e'}, got[4])

	_, err = batched(context.Background(), texts, 10, func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	})
	require.Error(t, err)

	boom := errors.New("boom")
	_, err = batched(context.Background(), texts, 10, func(context.Context, []string) ([][]float32, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestOpenAIEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		type datum struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]datum, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, datum{Object: "embedding", Index: i, Embedding: []float32{float32(i), 1}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "m"})
	}))
	defer srv.Close()

	e, err := NewOpenAI("sk-test", srv.URL, "m")
	require.NoError(t, err)
	vecs, err := e.Embed(context.Background(), []string{"x", "y", "z"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{0, 1}, vecs[0])
	assert.Equal(t, []float32{2, 1}, vecs[2])

	one, err := EmbedOne(context.Background(), e, "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, one)
}
