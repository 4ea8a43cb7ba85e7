// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package batch drives filings through text extraction, structured
// extraction, and summarization, and persists the artifacts for each one.
//
// A document that cannot be read or whose structured extraction fails is
// skipped and the batch continues. Summary failures are recorded as
// warnings; the error text is persisted in place of the summary.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.yaml.in/yaml/v3"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/filing-engine/internal/extract"
	"github.com/pdiddy/filing-engine/internal/pdftext"
	"github.com/pdiddy/filing-engine/pkg/types"
)

const (
	defaultPattern = "*.pdf"
	runReportFile  = "run-report.yaml"
)

// ErrDuplicateID is the cause of a skip for an input whose base name
// matches an earlier input, since both would write the same artifacts.
var ErrDuplicateID = errors.New("duplicate document name")

// attachmentKeys are the record keys under which a form lists its attachments.
var attachmentKeys = []string{"attachments", "list_of_attachments", "attached_documents"}

// TextSource loads the text of a PDF.
type TextSource interface {
	Load(path string) (types.Document, error)
}

// RecordExtractor produces the structured record for a document.
type RecordExtractor interface {
	Extract(ctx context.Context, doc types.Document) (*types.Record, error)
}

// Summarizer produces the attachment and report summaries. Both methods
// return text to persist even when they also return an error.
type Summarizer interface {
	Attachments(ctx context.Context, id, text string) (string, error)
	Report(ctx context.Context, id string, rec *types.Record, attachmentSummary string) (string, error)
}

// Summary holds counts from a batch run.
type Summary struct {
	Processed int
	Skipped   int
	Kept      int
	Reports   []types.DocumentReport
}

// Total returns the number of documents handled.
func (s Summary) Total() int {
	return s.Processed + s.Skipped + s.Kept
}

// HasFailures reports whether any document was skipped.
func (s Summary) HasFailures() bool {
	return s.Skipped > 0
}

// Runner processes documents with the configured stages.
type Runner struct {
	text       TextSource
	extractor  RecordExtractor
	summarizer Summarizer
	cfg        types.BatchConfig
	log        zerolog.Logger
}

// NewRunner returns a Runner. Empty config fields take their defaults.
func NewRunner(text TextSource, extractor RecordExtractor, summarizer Summarizer, cfg types.BatchConfig, log zerolog.Logger) *Runner {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.OnExisting == "" {
		cfg.OnExisting = types.ExistingOverwrite
	}
	return &Runner{
		text:       text,
		extractor:  extractor,
		summarizer: summarizer,
		cfg:        cfg,
		log:        log,
	}
}

// Discover expands inputs into a sorted, de-duplicated list of PDF paths.
// Files are taken as given; directories are scanned (not recursively)
// for names matching pattern, ignoring case.
func Discover(inputs []string, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = defaultPattern
	}
	pattern = strings.ToLower(pattern)
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("reading input %s: %w", in, err)
		}
		if !info.IsDir() {
			add(filepath.Clean(in))
			continue
		}

		entries, err := os.ReadDir(in)
		if err != nil {
			return nil, fmt.Errorf("reading input directory %s: %w", in, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if ok, _ := filepath.Match(pattern, strings.ToLower(entry.Name())); ok {
				add(filepath.Join(in, entry.Name()))
			}
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// Run processes every path and writes progress lines to w, followed by a
// batch summary line. It writes run-report.yaml to the output directory.
// With Concurrency > 1 each document's lines are written together.
func (r *Runner) Run(ctx context.Context, paths []string, w io.Writer) (Summary, error) {
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("creating output directory: %w", err)
	}

	report := types.RunReport{
		RunID:     uuid.NewString(),
		Model:     r.cfg.Model,
		StartedAt: time.Now().UTC(),
	}
	r.log.Info().Str("run_id", report.RunID).Int("documents", len(paths)).Int("concurrency", r.cfg.Concurrency).Msg("batch started")

	dups := duplicates(paths)
	reports := make([]types.DocumentReport, len(paths))
	if r.cfg.Concurrency == 1 {
		for i, path := range paths {
			reports[i] = r.process(ctx, i, path, dups, w)
		}
	} else {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.Concurrency)
		for i, path := range paths {
			g.Go(func() error {
				var buf strings.Builder
				reports[i] = r.process(gctx, i, path, dups, &buf)
				mu.Lock()
				defer mu.Unlock()
				_, err := io.WriteString(w, buf.String())
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return Summary{}, fmt.Errorf("writing progress: %w", err)
		}
	}

	summary := Summary{Reports: reports}
	for _, rep := range reports {
		switch rep.State {
		case types.StatePersisted:
			summary.Processed++
		case types.StateKept:
			summary.Kept++
		default:
			summary.Skipped++
		}
	}

	fmt.Fprintf(w, "\nBatch summary: %d processed, %d skipped, %d kept (total: %d)\n",
		summary.Processed, summary.Skipped, summary.Kept, summary.Total())

	report.FinishedAt = time.Now().UTC()
	report.Processed = summary.Processed
	report.Skipped = summary.Skipped
	report.Kept = summary.Kept
	report.Documents = reports
	if err := writeRunReport(filepath.Join(r.cfg.OutputDir, runReportFile), report); err != nil {
		return summary, err
	}

	r.log.Info().
		Str("run_id", report.RunID).
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("kept", summary.Kept).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("batch finished")

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// ProcessDocument takes one PDF from discovery to persisted artifacts.
// It never returns an error: failures are recorded in the report with
// state skipped.
func (r *Runner) ProcessDocument(ctx context.Context, path string, w io.Writer) types.DocumentReport {
	id := pdftext.DocumentID(path)
	log := r.log.With().Str("document", id).Logger()
	rep := types.DocumentReport{ID: id, Path: path, State: types.StateDiscovered}

	skip := func(err error) types.DocumentReport {
		return r.skip(w, rep, err)
	}

	if err := ctx.Err(); err != nil {
		return skip(err)
	}

	if r.cfg.OnExisting == types.ExistingSkipUnchanged {
		arts := artifactPaths(r.cfg.OutputDir, id, false)
		changed, err := hasChanged(path, arts.Summary)
		if err != nil {
			return skip(err)
		}
		if !changed {
			if arts, err = existingArtifacts(r.cfg.OutputDir, id); err != nil {
				return skip(err)
			}
			rep.State = types.StateKept
			rep.Artifacts = &arts
			fmt.Fprintf(w, "kept %s\n", id)
			log.Debug().Msg("artifacts up to date")
			return rep
		}
	}

	fmt.Fprintf(w, "processing %s\n", id)

	doc, err := r.text.Load(path)
	if err != nil {
		return skip(err)
	}
	rep.State = types.StateTextExtracted
	rep.PageCount = doc.PageCount
	log.Debug().Int("pages", doc.PageCount).Bool("attachments", doc.HasAttachments()).Msg("text extracted")

	rec, err := r.extractor.Extract(ctx, doc)
	if err != nil {
		return skip(err)
	}
	rep.State = types.StateStructuredExtracted
	rep.Fields = rec.Len()

	rep.Attachments = listedAttachments(rec)
	if len(rep.Attachments) == 0 {
		fmt.Fprintf(w, "  no attachments listed in form\n")
	}
	for _, name := range rep.Attachments {
		fmt.Fprintf(w, "  attachment: %s\n", name)
	}

	var attachmentText, attachmentContext string
	if doc.HasAttachments() {
		text, err := r.summarizer.Attachments(ctx, id, doc.AttachmentText)
		attachmentText = text
		if err != nil {
			rep.Warnings = append(rep.Warnings, err.Error())
		} else {
			attachmentContext = text
		}
		rep.State = types.StateAttachmentsSummarized
	}

	finalText, err := r.summarizer.Report(ctx, id, rec, attachmentContext)
	if err != nil {
		rep.Warnings = append(rep.Warnings, err.Error())
	}
	rep.State = types.StateSummarized

	arts, err := r.persist(id, rec, doc.HasAttachments(), attachmentText, finalText)
	if err != nil {
		return skip(err)
	}
	rep.State = types.StatePersisted
	rep.Artifacts = &arts

	if r.cfg.Echo {
		echo(w, id, rec, doc.HasAttachments(), attachmentText, finalText)
	}

	fmt.Fprintf(w, "processed %s (%d fields, %d pages)\n", id, rep.Fields, rep.PageCount)
	log.Info().Int("fields", rep.Fields).Int("warnings", len(rep.Warnings)).Msg("document processed")
	return rep
}

// skip marks rep as skipped with err and reports it.
func (r *Runner) skip(w io.Writer, rep types.DocumentReport, err error) types.DocumentReport {
	rep.State = types.StateSkipped
	rep.Error = err.Error()
	fmt.Fprintf(w, "skipped %s: %v\n", rep.ID, err)
	r.log.Warn().Str("document", rep.ID).Str("stage", stageOf(err)).Err(err).Msg("document skipped")
	return rep
}

// duplicates maps the index of every path whose document ID was already
// claimed by an earlier path to that earlier path.
func duplicates(paths []string) map[int]string {
	owner := make(map[string]string, len(paths))
	dups := make(map[int]string)
	for i, p := range paths {
		id := pdftext.DocumentID(p)
		if first, ok := owner[id]; ok {
			dups[i] = first
			continue
		}
		owner[id] = p
	}
	return dups
}

// process runs document i unless its ID belongs to an earlier input.
func (r *Runner) process(ctx context.Context, i int, path string, dups map[int]string, w io.Writer) types.DocumentReport {
	if first, ok := dups[i]; ok {
		rep := types.DocumentReport{ID: pdftext.DocumentID(path), Path: path}
		return r.skip(w, rep, fmt.Errorf("%w: %s", ErrDuplicateID, first))
	}
	return r.ProcessDocument(ctx, path, w)
}

// listedAttachments returns the attachment names recorded in the form.
func listedAttachments(rec *types.Record) []string {
	for _, key := range attachmentKeys {
		if names := rec.Strings(key); len(names) > 0 {
			return names
		}
	}
	return nil
}

// stageOf names the failure class for log lines.
func stageOf(err error) string {
	var dre *pdftext.DocumentReadError
	var xe *extract.ExtractionError
	switch {
	case errors.As(err, &dre):
		return "text"
	case errors.As(err, &xe):
		return "extraction"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "persist"
}

func echo(w io.Writer, id string, rec *types.Record, hasAttachments bool, attachmentText, finalText string) {
	data, err := encodeRecord(rec)
	if err != nil {
		data = []byte(err.Error())
	}
	fmt.Fprintf(w, "--- %s: extracted data ---\n%s", id, data)
	if hasAttachments {
		fmt.Fprintf(w, "--- %s: attachment summary ---\n%s\n", id, attachmentText)
	}
	fmt.Fprintf(w, "--- %s: summary ---\n%s\n", id, finalText)
}

func writeRunReport(path string, report types.RunReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling run report: %w", err)
	}
	return writeArtifact(path, data)
}
