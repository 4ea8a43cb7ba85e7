// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"

	"github.com/pdiddy/filing-engine/pkg/types"
)

const defaultRetryDelay = 2 * time.Second

// OpenAI completes prompts with the OpenAI chat completions API. The SDK's
// own retries are disabled; retries happen here only when MaxRetries > 0.
type OpenAI struct {
	client     openai.Client
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewOpenAI builds a client from cfg. Extra request options are applied
// last, so tests can point the client at an httptest server.
func NewOpenAI(cfg types.AIConfig, log zerolog.Logger, extra ...option.RequestOption) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = types.DefaultTimeout
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{}),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)

	return &OpenAI{
		client:     openai.NewClient(opts...),
		timeout:    timeout,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		log:        log,
	}, nil
}

// Complete sends req and returns the first choice's content. Each attempt
// runs under the configured timeout.
func (c *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	log := c.log.With().
		Str("req_id", uuid.NewString()).
		Str("model", req.Model).
		Str("document", req.Document).
		Logger()

	var (
		out     string
		attempt int
	)
	err := retry.Do(
		func() error {
			attempt++
			log.Debug().Int("attempt", attempt).Int("prompt_chars", len(req.Prompt)).Msg("llm.complete.start")

			start := time.Now()
			text, err := c.completeOnce(ctx, req)
			if err != nil {
				log.Warn().Err(err).Int("attempt", attempt).Dur("latency", time.Since(start)).Msg("llm.complete.error")
				return err
			}
			log.Debug().Int("attempt", attempt).Dur("latency", time.Since(start)).Int("chars", len(text)).Msg("llm.complete.done")
			out = text
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries+1)),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

func (c *OpenAI) completeOnce(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s: %w", ErrTimeout, c.timeout, context.DeadlineExceeded)
		}
		return "", mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// mapOpenAIError turns SDK API errors into readable messages while
// keeping the SDK error in the chain.
func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return fmt.Errorf("OpenAI API error (status %d): %s: %w", apiErr.StatusCode, apiErr.Message, err)
		}
		return fmt.Errorf("OpenAI API error (status %d): %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("calling OpenAI API: %w", err)
}

// retryable reports whether a failed attempt is worth repeating. Client
// errors other than rate limiting and request timeouts are final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode >= http.StatusInternalServerError:
			return true
		}
		return false
	}
	return true
}
