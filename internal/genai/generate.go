package genai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/docquery/docquery/internal/log"
)

// RetryConfig configures retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns defaults tuned for LLM API latencies.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups transient error substrings by category.
// Matched case-insensitively against err.Error().
//
// NOTE: string matching is used because Genkit and the provider SDKs do
// not expose typed errors for transient failures. Re-evaluate if Genkit
// adds structured error types.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},
	{"500", "502", "503", "504", "unavailable"},
	{"connection reset", "timeout", "temporary"},
}

func retryableError(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(lower, sub) {
				return true
			}
		}
	}
	return false
}

// GeneratorConfig contains required parameters for a Generator.
type GeneratorConfig struct {
	Genkit *genkit.Genkit
	Logger log.Logger

	// ModelName is the provider-qualified model name
	// (e.g. "ollama/llama3.3", "googleai/gemini-2.5-flash").
	ModelName string

	// Timeout bounds a single Generate call including retries.
	// Zero disables the bound.
	Timeout time.Duration

	Retry   RetryConfig   // zero-value uses defaults
	Limiter *rate.Limiter // nil = no rate limiting
}

// Generator produces model completions with per-attempt rate limiting and
// exponential backoff on transient provider errors. It is safe for
// concurrent use; all configuration is captured at construction.
type Generator struct {
	g         *genkit.Genkit
	modelName string
	timeout   time.Duration
	retry     RetryConfig
	limiter   *rate.Limiter
	logger    log.Logger
}

// NewGenerator creates a Generator from cfg.
func NewGenerator(cfg GeneratorConfig) *Generator {
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}
	return &Generator{
		g:         cfg.Genkit,
		modelName: cfg.ModelName,
		timeout:   cfg.Timeout,
		retry:     retry,
		limiter:   cfg.Limiter,
		logger:    cfg.Logger,
	}
}

// Generate runs a completion for the given system prompt and messages and
// returns the final text.
func (gen *Generator) Generate(ctx context.Context, system string, messages []*ai.Message) (string, error) {
	return gen.generate(ctx, system, messages, nil)
}

// GenerateStream runs a completion, invoking onToken for each text chunk as
// it arrives, and returns the complete text. If onToken returns an error the
// stream is aborted and that error is returned.
func (gen *Generator) GenerateStream(ctx context.Context, system string, messages []*ai.Message, onToken func(ctx context.Context, token string) error) (string, error) {
	return gen.generate(ctx, system, messages, onToken)
}

func (gen *Generator) generate(ctx context.Context, system string, messages []*ai.Message, onToken func(ctx context.Context, token string) error) (string, error) {
	if gen.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, gen.timeout)
		defer cancel()
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(gen.modelName),
		ai.WithMessages(messages...),
	}
	if system != "" {
		opts = append(opts, ai.WithSystem(system))
	}

	var streamed bool
	if onToken != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			streamed = true
			return onToken(ctx, chunk.Text())
		}))
	}

	resp, err := gen.executeWithRetry(ctx, opts, &streamed)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// executeWithRetry rate limits each attempt and backs off exponentially on
// transient errors. Once any stream chunk has been delivered the attempt is
// never retried, transient or not: the consumer has already seen those
// tokens and a retry would replay them. Stream callback errors never look
// transient, so an aborted stream fails on the first attempt either way.
func (gen *Generator) executeWithRetry(ctx context.Context, opts []ai.GenerateOption, streamed *bool) (*ai.ModelResponse, error) {
	var lastErr error
	delay := gen.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= gen.retry.MaxRetries; attempt++ {
		if gen.limiter != nil {
			if err := gen.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := genkit.Generate(ctx, gen.g, opts...)
		if err == nil {
			gen.logger.Debug("generate succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return resp, nil
		}
		lastErr = err

		if !retryableError(err) || *streamed {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		if attempt == gen.retry.MaxRetries {
			break
		}

		gen.logger.Debug("retrying after transient error",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("generate canceled during backoff: %w", ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if delay > gen.retry.MaxInterval {
			delay = gen.retry.MaxInterval
		}
	}

	return nil, fmt.Errorf("%w: %d attempts: %v", ErrUpstream, gen.retry.MaxRetries+1, lastErr)
}
