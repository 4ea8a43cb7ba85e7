// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data types for filing-engine: the
// document and record models, batch reports, and stage configuration.
package types

import (
	"strings"
	"time"
)

// Document is one input PDF and the text read from it.
type Document struct {
	// ID is the base filename without extension; artifacts are named after it.
	ID string `json:"id" yaml:"id"`

	// Path is the PDF location on disk.
	Path string `json:"path" yaml:"path"`

	// PageCount is the number of pages in the PDF.
	PageCount int `json:"page_count" yaml:"page_count"`

	// RawText is the text of every page.
	RawText string `json:"-" yaml:"-"`

	// FormText is the text handed to structured extraction.
	FormText string `json:"-" yaml:"-"`

	// AttachmentText is the text of pages 2..N; empty for one-page PDFs.
	AttachmentText string `json:"-" yaml:"-"`
}

// HasAttachments reports whether the attachment pages carry any text.
func (d Document) HasAttachments() bool {
	return strings.TrimSpace(d.AttachmentText) != ""
}

// DocumentState is a document's position in the processing lifecycle.
type DocumentState string

const (
	StateDiscovered            DocumentState = "discovered"
	StateTextExtracted         DocumentState = "text_extracted"
	StateStructuredExtracted   DocumentState = "structured_extracted"
	StateAttachmentsSummarized DocumentState = "attachments_summarized"
	StateSummarized            DocumentState = "summarized"
	StatePersisted             DocumentState = "persisted"
	StateSkipped               DocumentState = "skipped"
	StateKept                  DocumentState = "kept"
)

// Artifacts lists the files written for one document.
type Artifacts struct {
	Record            string `json:"record" yaml:"record"`
	AttachmentSummary string `json:"attachment_summary,omitempty" yaml:"attachment_summary,omitempty"`
	Summary           string `json:"summary" yaml:"summary"`
}

// DocumentReport is the outcome of processing one document.
type DocumentReport struct {
	ID          string        `json:"id" yaml:"id"`
	Path        string        `json:"path" yaml:"path"`
	State       DocumentState `json:"state" yaml:"state"`
	Error       string        `json:"error,omitempty" yaml:"error,omitempty"`
	PageCount   int           `json:"page_count,omitempty" yaml:"page_count,omitempty"`
	Fields      int           `json:"fields,omitempty" yaml:"fields,omitempty"`
	Artifacts   *Artifacts    `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Attachments []string      `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	Warnings    []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// RunReport is the outcome of one batch run, written as run-report.yaml.
type RunReport struct {
	RunID      string           `json:"run_id" yaml:"run_id"`
	Model      string           `json:"model,omitempty" yaml:"model,omitempty"`
	StartedAt  time.Time        `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time        `json:"finished_at" yaml:"finished_at"`
	Processed  int              `json:"processed" yaml:"processed"`
	Skipped    int              `json:"skipped" yaml:"skipped"`
	Kept       int              `json:"kept" yaml:"kept"`
	Documents  []DocumentReport `json:"documents" yaml:"documents"`
}
