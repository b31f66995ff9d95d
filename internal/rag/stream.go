package rag

import (
	"context"
	"strings"
)

// EventType tags a streaming event.
type EventType string

const (
	EventSources EventType = "sources"
	EventToken   EventType = "token"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// Event is one element of a streamed query response. A well-formed stream
// is: one sources event, zero or more token events, then exactly one of
// done or error.
type Event struct {
	Type      EventType `json:"type"`
	Sources   []Source  `json:"sources,omitempty"`
	Token     string    `json:"token,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// QueryStream answers req as an event stream delivered through emit.
// Sources are emitted before generation starts so clients can render
// citations while waiting for tokens. Memory is updated with the full
// concatenated answer before the done event; a failed generation emits an
// error event instead and leaves the transcript untouched, so a truncated
// answer never enters conversational context.
//
// QueryStream returns an error only when emit itself fails (the consumer
// is gone); pipeline failures are delivered as error events.
func (s *Service) QueryStream(ctx context.Context, req QueryRequest, emit func(Event) error) error {
	if err := s.validate(req); err != nil {
		return emit(Event{Type: EventError, Error: err.Error()})
	}

	sources, messages, system, err := s.prepare(ctx, req)
	if err != nil {
		s.logger.Warn("stream query failed before generation",
			"session_id", req.SessionID, "error", err)
		return emit(Event{Type: EventError, Error: err.Error()})
	}

	if err := emit(Event{Type: EventSources, Sources: sources}); err != nil {
		return err
	}

	var full strings.Builder
	var emitErr error
	_, err = s.generator.GenerateStream(ctx, system, messages, func(ctx context.Context, token string) error {
		if token == "" {
			return nil
		}
		if err := emit(Event{Type: EventToken, Token: token}); err != nil {
			emitErr = err
			return err
		}
		full.WriteString(token)
		return nil
	})
	if emitErr != nil {
		return emitErr
	}
	if err != nil {
		s.logger.Warn("stream generation failed, partial answer discarded",
			"session_id", req.SessionID, "error", err)
		return emit(Event{Type: EventError, Error: err.Error()})
	}

	s.memory.AppendExchange(req.SessionID, req.Question, full.String())

	s.logger.Info("stream query answered",
		"session_id", req.SessionID,
		"sources", len(sources),
	)

	return emit(Event{Type: EventDone, SessionID: req.SessionID})
}
