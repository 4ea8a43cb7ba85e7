// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm is the language-model service handle shared by the
// extraction and summary stages. Components receive a Service explicitly
// so tests can substitute canned responses.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrTimeout is returned when a single model call exceeds its deadline.
	ErrTimeout = errors.New("model call timed out")

	// ErrEmptyResponse is returned when the model produced no choices.
	ErrEmptyResponse = errors.New("model returned no choices")

	// ErrMissingAPIKey is returned when a client is built without credentials.
	ErrMissingAPIKey = errors.New("API key is required: set OPENAI_API_KEY or .secrets/openai-api-key")
)

// Request is one chat completion: a system instruction and a user prompt.
type Request struct {
	Model  string
	System string
	Prompt string

	// Temperature is sent when non-nil; nil leaves the service default.
	Temperature *float64

	// Document attributes the call's log lines to a filing.
	Document string
}

// Service completes a prompt and returns the model's text.
type Service interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Func adapts an ordinary function to the Service interface.
type Func func(ctx context.Context, req Request) (string, error)

// Complete calls f(ctx, req).
func (f Func) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Temperature returns a pointer suitable for Request.Temperature.
func Temperature(t float64) *float64 {
	return &t
}
