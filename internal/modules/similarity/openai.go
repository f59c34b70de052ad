package similarity

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const embeddingBatchSize = 64

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint. A
// self-hosted LaBSE or multilingual model server works through BaseURL.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates an embedder. An empty baseURL uses the OpenAI API.
func NewOpenAIEmbedder(baseURL, apiKey, model string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Name identifies the strategy
func (e *OpenAIEmbedder) Name() string { return "openai:" + e.model }

// Fit embeds the corpus; the remote model has no corpus state, so the
// embedder is its own Encoder
func (e *OpenAIEmbedder) Fit(ctx context.Context, texts []string) (Encoder, []Vector, error) {
	vectors, err := e.Embed(ctx, texts)
	if err != nil {
		return nil, nil, err
	}
	return e, vectors, nil
}

// Embed sends texts in batches and normalizes the returned vectors
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	vectors := make([]Vector, len(texts))
	for start := 0; start < len(texts); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[start:end],
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings for batch %d-%d: %w", start, end, err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("embeddings batch %d-%d: expected %d vectors, got %d", start, end, end-start, len(resp.Data))
		}

		for i, item := range resp.Data {
			idx := i
			if item.Index >= 0 && item.Index < end-start {
				idx = item.Index
			}
			vectors[start+idx] = denseVector(item.Embedding)
		}
	}
	return vectors, nil
}
