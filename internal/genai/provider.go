// Package genai wraps Genkit model and embedder access behind a small
// surface the rest of the application uses: provider initialization,
// batch embedding, and text generation with retry and rate limiting.
package genai

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	"github.com/docquery/docquery/internal/log"
)

// ErrUpstream indicates the model provider failed after retries were
// exhausted. Handlers map it to a gateway error rather than a client error.
var ErrUpstream = errors.New("upstream model failure")

// ProviderConfig selects and configures the AI provider plugin.
type ProviderConfig struct {
	Provider      string // "ollama", "openai", or "gemini"
	ModelName     string
	EmbedderModel string
	OllamaHost    string
}

// Init initializes Genkit with the configured provider plugin.
// Ollama requires explicit model and embedder registration; the hosted
// providers register their catalogs during Init.
func Init(ctx context.Context, cfg ProviderConfig, logger log.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "gemini"
	}

	var g *genkit.Genkit

	switch provider {
	case "ollama":
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case "openai":
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized genkit with openai provider", "model", cfg.ModelName)

	case "gemini":
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)

	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	return g, nil
}

// Embedder looks up the embedder registered by the provider plugin.
// Each provider keys embedders differently: ollama by server address,
// openai by model name, gemini via its own constructor.
func Embedder(g *genkit.Genkit, cfg ProviderConfig) ai.Embedder {
	switch cfg.Provider {
	case "ollama":
		return ollama.Embedder(g, cfg.OllamaHost)
	case "openai":
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}
