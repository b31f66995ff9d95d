package genai

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
)

// EmbedTexts embeds texts in a single provider round trip and returns one
// vector per input, in input order. The provider must return exactly
// len(texts) embeddings; anything else is reported as an upstream failure.
func EmbedTexts(ctx context.Context, embedder ai.Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	resp, err := embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %v", ErrUpstream, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: embed returned %d vectors for %d inputs",
			ErrUpstream, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Embedding
	}
	return vectors, nil
}

// EmbedText embeds a single text.
func EmbedText(ctx context.Context, embedder ai.Embedder, text string) ([]float32, error) {
	vectors, err := EmbedTexts(ctx, embedder, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
