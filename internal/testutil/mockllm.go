// Package testutil provides shared test infrastructure: a deterministic
// Genkit-registered mock model and embedder, and a pgvector container
// helper for integration tests.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockLLM provides deterministic model responses for testing. It matches
// the last user message against registered substring patterns and returns
// the corresponding response; patterns are checked in registration order.
//
// When a stream callback is present the response is delivered word by
// word so streaming consumers see multiple chunks.
//
// Thread-safe for concurrent use.
type MockLLM struct {
	mu              sync.Mutex
	responses       []mockRule
	fallback        string
	failWith        error
	failOnce        error
	failAfterStream error
	calls           []MockCall
}

type mockRule struct {
	pattern  string
	response string
}

// MockCall records a single call to the mock model.
type MockCall struct {
	UserMessage string
	Response    string
}

// NewMockLLM creates a mock model with the given fallback response,
// returned when no pattern matches.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern-response pair. Matching is
// case-insensitive; first match wins.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// FailWith makes every subsequent call return err. Pass nil to restore
// normal responses.
func (m *MockLLM) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// FailOnce makes only the next call return err, before any chunk is
// streamed. Later calls behave normally. Use to exercise retry paths.
func (m *MockLLM) FailOnce(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOnce = err
}

// FailAfterStream makes only the next call stream its full response and
// then return err, simulating a provider that drops the connection after
// delivering chunks. Later calls behave normally.
func (m *MockLLM) FailAfterStream(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfterStream = err
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// ModelName is the provider-qualified name the mock registers under.
const ModelName = "mock/test-model"

// RegisterModel registers the mock as a Genkit model under ModelName.
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, ModelName, &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			SystemRole: true,
		},
	}, m.generate)
}

func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Text()
			break
		}
	}

	m.mu.Lock()
	if err := m.failWith; err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := m.failOnce; err != nil {
		m.failOnce = nil
		m.mu.Unlock()
		return nil, err
	}
	failAfterStream := m.failAfterStream
	m.failAfterStream = nil

	responseText := m.fallback
	lower := strings.ToLower(userText)
	for _, rule := range m.responses {
		if strings.Contains(lower, rule.pattern) {
			responseText = rule.response
			break
		}
	}

	m.calls = append(m.calls, MockCall{
		UserMessage: userText,
		Response:    responseText,
	})
	m.mu.Unlock()

	if cb != nil {
		for _, chunk := range streamChunks(responseText) {
			if err := cb(ctx, &ai.ModelResponseChunk{
				Content: []*ai.Part{ai.NewTextPart(chunk)},
			}); err != nil {
				return nil, err
			}
		}
	}

	if failAfterStream != nil {
		return nil, failAfterStream
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		},
	}, nil
}

// streamChunks splits text into word-sized chunks whose concatenation is
// exactly text.
func streamChunks(text string) []string {
	var chunks []string
	start := 0
	for i, r := range text {
		if r == ' ' && i > start {
			chunks = append(chunks, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}
