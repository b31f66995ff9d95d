package testutil

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockSetup bundles a Genkit instance with registered mock model and
// embedder for pipeline tests.
type MockSetup struct {
	Genkit   *genkit.Genkit
	LLM      *MockLLM
	Embedder *MockEmbedder

	// AIEmbedder is the Genkit-registered handle for Embedder.
	AIEmbedder ai.Embedder
}

// SetupMocks initializes Genkit and registers a mock model (fallback
// response) and a dim-dimensional mock embedder.
func SetupMocks(t *testing.T, dim int, fallback string) *MockSetup {
	t.Helper()

	g := genkit.Init(context.Background())
	if g == nil {
		t.Fatal("initializing genkit")
	}

	llm := NewMockLLM(fallback)
	llm.RegisterModel(g)

	embedder := NewMockEmbedder(dim)
	aiEmbedder := embedder.RegisterEmbedder(g)

	return &MockSetup{
		Genkit:     g,
		LLM:        llm,
		Embedder:   embedder,
		AIEmbedder: aiEmbedder,
	}
}
