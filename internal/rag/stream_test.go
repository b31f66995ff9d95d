package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/docquery/docquery/internal/memory"
	"github.com/docquery/docquery/internal/rag"
)

func collectEvents(t *testing.T, env *testEnv, req rag.QueryRequest) []rag.Event {
	t.Helper()
	var events []rag.Event
	err := env.service.QueryStream(context.Background(), req, func(ev rag.Event) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("QueryStream: %v", err)
	}
	return events
}

func TestStreamEventOrdering(t *testing.T) {
	env := newEnv(t)
	env.ingestTexts(t, "The sky is blue.")
	env.mocks.LLM.AddResponse("sky", "It is blue because of Rayleigh scattering.")

	events := collectEvents(t, env, rag.QueryRequest{
		Question:  "Why is the sky blue?",
		SessionID: "s1",
	})

	if len(events) < 3 {
		t.Fatalf("got %d events, want sources, tokens, done", len(events))
	}
	if events[0].Type != rag.EventSources {
		t.Fatalf("first event = %s, want sources", events[0].Type)
	}
	if len(events[0].Sources) == 0 {
		t.Fatal("sources event carries no sources")
	}

	last := events[len(events)-1]
	if last.Type != rag.EventDone {
		t.Fatalf("last event = %s, want done", last.Type)
	}
	if last.SessionID != "s1" {
		t.Fatalf("done sessionId = %q", last.SessionID)
	}

	for _, ev := range events[1 : len(events)-1] {
		if ev.Type != rag.EventToken {
			t.Fatalf("middle event = %s, want token", ev.Type)
		}
		if ev.Token == "" {
			t.Fatal("empty token event")
		}
	}
}

// TestStreamTokensConcatenateToStoredAnswer verifies the answer recorded in
// session memory is exactly the concatenation of the emitted tokens.
func TestStreamTokensConcatenateToStoredAnswer(t *testing.T) {
	env := newEnv(t)
	env.mocks.LLM.AddResponse("capital", "Paris is the capital of France.")

	var full strings.Builder
	sawDone := false
	err := env.service.QueryStream(context.Background(), rag.QueryRequest{
		Question:  "What is the capital of France?",
		SessionID: "s1",
	}, func(ev rag.Event) error {
		switch ev.Type {
		case rag.EventToken:
			full.WriteString(ev.Token)
		case rag.EventDone:
			// Memory must already hold the exchange when done arrives.
			if env.memory.Len("s1") != 2 {
				t.Errorf("transcript has %d turns at done, want 2", env.memory.Len("s1"))
			}
			sawDone = true
		}
		return nil
	})
	if err != nil {
		t.Fatalf("QueryStream: %v", err)
	}
	if !sawDone {
		t.Fatal("no done event")
	}
	if full.String() != "Paris is the capital of France." {
		t.Fatalf("concatenated tokens = %q", full.String())
	}

	history := env.memory.History("s1")
	if history[1].Role != memory.RoleAssistant || history[1].Text != full.String() {
		t.Fatalf("stored answer = %+v, want concatenated tokens", history[1])
	}
}

func TestStreamGenerationFailureEmitsErrorEvent(t *testing.T) {
	env := newEnv(t)
	env.mocks.LLM.FailWith(errors.New("model exploded"))

	events := collectEvents(t, env, rag.QueryRequest{
		Question:  "anything",
		SessionID: "s1",
	})

	last := events[len(events)-1]
	if last.Type != rag.EventError {
		t.Fatalf("last event = %s, want error", last.Type)
	}
	if last.Error == "" {
		t.Fatal("error event carries no message")
	}
	for _, ev := range events {
		if ev.Type == rag.EventDone {
			t.Fatal("done event after failed generation")
		}
	}
	if env.memory.Len("s1") != 0 {
		t.Fatalf("transcript has %d turns after failure, want 0", env.memory.Len("s1"))
	}
}

// TestStreamTransientFailureAfterTokensNotReplayed covers a provider that
// streams a full answer and then fails with a retryable error. The stream
// must end with an error event, tokens must not be delivered twice, and
// the transcript must stay untouched.
func TestStreamTransientFailureAfterTokensNotReplayed(t *testing.T) {
	env := newEnv(t)
	env.mocks.LLM.AddResponse("greet", "Hello world.")
	env.mocks.LLM.FailAfterStream(errors.New("503 service unavailable"))

	var tokens []string
	var last rag.Event
	err := env.service.QueryStream(context.Background(), rag.QueryRequest{
		Question:  "greet me",
		SessionID: "s1",
	}, func(ev rag.Event) error {
		if ev.Type == rag.EventToken {
			tokens = append(tokens, ev.Token)
		}
		last = ev
		return nil
	})
	if err != nil {
		t.Fatalf("QueryStream: %v", err)
	}

	if last.Type != rag.EventError {
		t.Fatalf("last event = %s, want error", last.Type)
	}
	want := []string{"Hello ", "world."}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %q, want %q delivered exactly once", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("tokens = %q, want %q delivered exactly once", tokens, want)
		}
	}
	if calls := env.mocks.LLM.Calls(); len(calls) != 1 {
		t.Fatalf("model called %d times, want 1", len(calls))
	}
	if env.memory.Len("s1") != 0 {
		t.Fatalf("transcript has %d turns after failed stream, want 0", env.memory.Len("s1"))
	}
}

func TestStreamValidationFailureEmitsErrorEvent(t *testing.T) {
	env := newEnv(t)

	events := collectEvents(t, env, rag.QueryRequest{SessionID: "s1"})
	if len(events) != 1 || events[0].Type != rag.EventError {
		t.Fatalf("events = %+v, want a single error event", events)
	}
}

// TestStreamEmitFailurePropagates verifies a dead consumer aborts the
// stream and surfaces the emit error to the caller.
func TestStreamEmitFailurePropagates(t *testing.T) {
	env := newEnv(t)
	env.mocks.LLM.AddResponse("q", "some longer answer with several words")

	emitErr := errors.New("client gone")
	tokens := 0
	err := env.service.QueryStream(context.Background(), rag.QueryRequest{
		Question:  "q",
		SessionID: "s1",
	}, func(ev rag.Event) error {
		if ev.Type == rag.EventToken {
			tokens++
			if tokens == 2 {
				return emitErr
			}
		}
		return nil
	})
	if !errors.Is(err, emitErr) {
		t.Fatalf("expected emit error, got %v", err)
	}
	if env.memory.Len("s1") != 0 {
		t.Fatalf("transcript has %d turns after aborted stream, want 0", env.memory.Len("s1"))
	}
}
