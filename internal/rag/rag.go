// Package rag orchestrates a retrieval-augmented query: embed the
// question, retrieve top-k chunks, assemble a grounded prompt from system
// instructions plus context plus session history, generate an answer, and
// record the exchange in session memory. The streaming variant delivers
// the same pipeline as an ordered event sequence.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/docquery/docquery/internal/genai"
	"github.com/docquery/docquery/internal/index"
	"github.com/docquery/docquery/internal/log"
	"github.com/docquery/docquery/internal/memory"
)

// ErrValidation indicates a malformed request the caller must fix.
var ErrValidation = errors.New("invalid request")

// DefaultTopK is the retrieval depth when the request does not supply one.
const DefaultTopK = 4

// systemPrompt grounds the model in the retrieved context. The context
// section is appended per query.
const systemPrompt = `You are a helpful assistant that answers questions using the provided context.
Base your answers on the context below. If the context does not contain
the answer, say so instead of guessing. Cite content from the context
where relevant.`

// Generator produces model completions. Satisfied by *genai.Generator.
type Generator interface {
	Generate(ctx context.Context, system string, messages []*ai.Message) (string, error)
	GenerateStream(ctx context.Context, system string, messages []*ai.Message, onToken func(ctx context.Context, token string) error) (string, error)
}

// QueryRequest is one question against a session.
type QueryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"sessionId"`
	K         int    `json:"k,omitempty"`
}

// Source is a retrieved chunk cited in an answer.
type Source struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueryResult is a completed answer with its citations.
type QueryResult struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	SessionID string   `json:"sessionId"`
}

// Config contains required parameters for a Service.
type Config struct {
	Embedder  ai.Embedder
	Index     index.Index
	Memory    *memory.Store
	Generator Generator
	Logger    log.Logger

	TopK int // zero uses DefaultTopK
}

// Service runs RAG queries. It is safe for concurrent use; per-session
// ordering is enforced by the memory store.
type Service struct {
	embedder  ai.Embedder
	index     index.Index
	memory    *memory.Store
	generator Generator
	logger    log.Logger
	topK      int
}

// New creates a Service from cfg.
func New(cfg Config) (*Service, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("index is required")
	}
	if cfg.Memory == nil {
		return nil, errors.New("memory store is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	return &Service{
		embedder:  cfg.Embedder,
		index:     cfg.Index,
		memory:    cfg.Memory,
		generator: cfg.Generator,
		logger:    cfg.Logger,
		topK:      topK,
	}, nil
}

func (s *Service) validate(req QueryRequest) error {
	if strings.TrimSpace(req.Question) == "" {
		return fmt.Errorf("%w: question is required", ErrValidation)
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return fmt.Errorf("%w: sessionId is required", ErrValidation)
	}
	if req.K < 0 {
		return fmt.Errorf("%w: k must be positive", ErrValidation)
	}
	return nil
}

// prepare runs the shared front half of a query: retrieval and prompt
// assembly. The returned messages hold the prior transcript plus the new
// question; history reflects state before the question is appended.
func (s *Service) prepare(ctx context.Context, req QueryRequest) ([]Source, []*ai.Message, string, error) {
	k := req.K
	if k == 0 {
		k = s.topK
	}

	queryVec, err := genai.EmbedText(ctx, s.embedder, req.Question)
	if err != nil {
		return nil, nil, "", fmt.Errorf("embedding question: %w", err)
	}

	hits, err := s.index.Search(ctx, queryVec, k)
	if err != nil {
		return nil, nil, "", fmt.Errorf("searching index: %w", err)
	}

	sources := make([]Source, len(hits))
	contextParts := make([]string, len(hits))
	for i, hit := range hits {
		sources[i] = Source{Content: hit.Chunk.Text, Metadata: hit.Chunk.Metadata}
		contextParts[i] = hit.Chunk.Text
	}

	// An empty index yields empty context; generation still proceeds and
	// the model answers from the system instruction alone.
	system := systemPrompt + "\n\nContext:\n" + strings.Join(contextParts, "\n\n")

	history := s.memory.History(req.SessionID)
	messages := make([]*ai.Message, 0, len(history)+1)
	for _, turn := range history {
		switch turn.Role {
		case memory.RoleUser:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(turn.Text)))
		case memory.RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(turn.Text)))
		}
	}
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(req.Question)))

	return sources, messages, system, nil
}

// Query answers req and records the exchange. On any failure the session
// transcript is left untouched, so the whole query is safe to retry.
func (s *Service) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	sources, messages, system, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	answer, err := s.generator.Generate(ctx, system, messages)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	s.memory.AppendExchange(req.SessionID, req.Question, answer)

	s.logger.Info("query answered",
		"session_id", req.SessionID,
		"sources", len(sources),
	)

	return &QueryResult{
		Answer:    answer,
		Sources:   sources,
		SessionID: req.SessionID,
	}, nil
}
