// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract turns the text of a filing into a structured record of
// its label/value pairs using a language model.
//
// Extraction fails hard: any problem with the model call or its output is
// an ExtractionError and the document is skipped. There is no retry here;
// bounded retries are a property of the llm.Service.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/filing-engine/internal/llm"
	"github.com/pdiddy/filing-engine/pkg/types"
)

// Stage names the step of extraction that failed.
type Stage string

const (
	StageRequest  Stage = "request"
	StageEmpty    Stage = "empty"
	StageParse    Stage = "parse"
	StageValidate Stage = "validate"
)

// ExtractionError reports a failed structured extraction.
type ExtractionError struct {
	Stage Stage
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("structured extraction failed (%s): %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extractor requests a structured record from the model for one document.
type Extractor struct {
	service       llm.Service
	model         string
	normalizeKeys bool
	log           zerolog.Logger
}

// New returns an Extractor that calls svc with the model named in cfg.
func New(svc llm.Service, cfg types.ExtractionConfig, log zerolog.Logger) *Extractor {
	model := cfg.Model
	if model == "" {
		model = types.DefaultModel
	}
	return &Extractor{
		service:       svc,
		model:         model,
		normalizeKeys: cfg.NormalizeKeys,
		log:           log,
	}
}

// Extract sends the document's form text to the model at temperature 0
// and recovers a record from the reply. Every failure is an *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, doc types.Document) (*types.Record, error) {
	prompt, err := renderPrompt(doc.FormText)
	if err != nil {
		return nil, &ExtractionError{Stage: StageRequest, Err: fmt.Errorf("rendering prompt: %w", err)}
	}

	start := time.Now()
	output, err := e.service.Complete(ctx, llm.Request{
		Model:       e.model,
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: llm.Temperature(0),
		Document:    doc.ID,
	})
	if err != nil {
		return nil, &ExtractionError{Stage: StageRequest, Err: err}
	}

	rec, err := RecoverJSON(output)
	if err != nil {
		e.log.Debug().Str("document", doc.ID).Str("output", truncate(output, 200)).Msg("unparseable extraction output")
		return nil, err
	}

	if e.normalizeKeys {
		rec = NormalizeKeys(rec)
	}

	e.log.Debug().
		Str("document", doc.ID).
		Int("fields", rec.Len()).
		Dur("latency", time.Since(start)).
		Msg("structured data extracted")
	return rec, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
