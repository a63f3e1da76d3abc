package cortex

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiEmbedder generates embeddings using the Gemini embedding models.
// Vectors are sized to match the store's vector columns.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
	taskType   string
}

// NewGeminiEmbedder builds an embedder on top of an existing Gemini adapter.
func NewGeminiEmbedder(g *Gemini, model string, dimensions int) (*GeminiEmbedder, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("gemini client is required")
	}
	if model == "" {
		model = "text-embedding-004"
	}
	if dimensions <= 0 {
		dimensions = 768
	}
	return &GeminiEmbedder{
		client:     g.client,
		model:      model,
		dimensions: dimensions,
		taskType:   "SEMANTIC_SIMILARITY",
	}, nil
}

// Embed generates an embedding for a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: e.taskType,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("embed failed: %w", err)
	}

	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: e.taskType,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("batch embed failed: %w", err)
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

// Dimensions returns the dimensionality of the produced vectors.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dimensions
}

// Name returns the embedder identifier.
func (e *GeminiEmbedder) Name() string {
	return fmt.Sprintf("genai:%s", e.model)
}
