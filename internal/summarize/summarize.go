// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package summarize writes plain-language summaries of a filing's
// attachments and of the filing as a whole.
//
// Summaries fail soft. When a model call fails, the summarizer still
// returns text, "Error generating ...: <cause>", together with a
// *SummaryError, and the caller persists that text in place of the
// summary. A failed summary never causes a document to be skipped.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/filing-engine/internal/llm"
	"github.com/pdiddy/filing-engine/pkg/types"
)

// Kind names the summary a SummaryError belongs to.
type Kind string

const (
	KindAttachment Kind = "attachment summary"
	KindReport     Kind = "summary"
)

// ErrEmptySummary is the cause of a SummaryError for a blank model reply.
var ErrEmptySummary = errors.New("model returned an empty summary")

// SummaryError reports a failed summary. Its message is the text written
// to the artifact in place of the summary.
type SummaryError struct {
	Kind Kind
	Err  error
}

func (e *SummaryError) Error() string {
	return fmt.Sprintf("Error generating %s: %v", e.Kind, e.Err)
}

func (e *SummaryError) Unwrap() error {
	return e.Err
}

// Summarizer produces attachment and report summaries through a model.
type Summarizer struct {
	service llm.Service
	model   string
	form    string
	log     zerolog.Logger
}

// New returns a Summarizer that calls svc with the settings in cfg.
func New(svc llm.Service, cfg types.SummaryConfig, log zerolog.Logger) *Summarizer {
	model := cfg.Model
	if model == "" {
		model = types.DefaultModel
	}
	form := cfg.FormDescription
	if form == "" {
		form = types.DefaultFormDescription
	}
	return &Summarizer{service: svc, model: model, form: form, log: log}
}

// Attachments summarizes the attachment pages of document id, focusing
// on dates, named parties, and resolutions or consents. Blank text
// returns "" without calling the model.
func (s *Summarizer) Attachments(ctx context.Context, id, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	prompt, err := renderAttachmentPrompt(text)
	if err != nil {
		return s.fail(id, KindAttachment, fmt.Errorf("rendering prompt: %w", err))
	}
	return s.complete(ctx, id, KindAttachment, attachmentSystemPrompt, prompt)
}

// Report summarizes a filing in 3-5 lines from its record and, when
// present, its attachment summary.
func (s *Summarizer) Report(ctx context.Context, id string, rec *types.Record, attachmentSummary string) (string, error) {
	prompt, err := renderReportPrompt(s.form, rec, attachmentSummary)
	if err != nil {
		return s.fail(id, KindReport, fmt.Errorf("rendering prompt: %w", err))
	}
	return s.complete(ctx, id, KindReport, reportSystemPrompt, prompt)
}

func (s *Summarizer) complete(ctx context.Context, id string, kind Kind, system, prompt string) (string, error) {
	out, err := s.service.Complete(ctx, llm.Request{
		Model:    s.model,
		System:   system,
		Prompt:   prompt,
		Document: id,
	})
	if err != nil {
		return s.fail(id, kind, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return s.fail(id, kind, ErrEmptySummary)
	}
	return out, nil
}

func (s *Summarizer) fail(id string, kind Kind, cause error) (string, error) {
	err := &SummaryError{Kind: kind, Err: cause}
	s.log.Warn().Str("document", id).Str("kind", string(kind)).Err(cause).Msg("summary failed")
	return err.Error(), err
}
