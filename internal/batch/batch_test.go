// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/filing-engine/internal/extract"
	"github.com/pdiddy/filing-engine/internal/llm"
	"github.com/pdiddy/filing-engine/internal/pdftext"
	"github.com/pdiddy/filing-engine/internal/pdftext/pdftexttest"
	"github.com/pdiddy/filing-engine/internal/summarize"
	"github.com/pdiddy/filing-engine/pkg/types"
)

// fakeHeader marks test fixtures that fileText accepts; pages are
// separated by form feeds.
const fakeHeader = "%FAKE-PDF\n"

// fileText reads fixture files written by writePDF and rejects anything else.
type fileText struct{}

func (fileText) Load(path string) (types.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Document{}, &pdftext.DocumentReadError{Path: path, Err: err}
	}
	s := string(data)
	if !strings.HasPrefix(s, fakeHeader) {
		return types.Document{}, &pdftext.DocumentReadError{Path: path, Err: errors.New("not a PDF file: invalid header")}
	}
	pages := strings.Split(strings.TrimPrefix(s, fakeHeader), "\f")
	doc := types.Document{
		ID:        pdftext.DocumentID(path),
		Path:      path,
		PageCount: len(pages),
		RawText:   strings.Join(pages, ""),
		FormText:  strings.Join(pages, ""),
	}
	if len(pages) > 1 {
		doc.AttachmentText = strings.Join(pages[1:], "")
	}
	return doc, nil
}

func writePDF(t *testing.T, dir, name string, pages ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(fakeHeader+strings.Join(pages, "\f")), 0o644))
	return path
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// cannedModel answers each prompt kind deterministically and records requests.
type cannedModel struct {
	mu          sync.Mutex
	requests    []llm.Request
	extractions atomic.Int32

	extractReply    func(req llm.Request) (string, error)
	attachmentReply func(req llm.Request) (string, error)
	reportReply     func(req llm.Request) (string, error)
}

func newCannedModel() *cannedModel {
	return &cannedModel{
		extractReply: func(req llm.Request) (string, error) {
			return "```json\n{\"company_name\": \"" + req.Document + " LIMITED\", \"form\": \"ADT-1\", \"attachments\": [\"Board resolution\", \"Consent letter\"]}\n```", nil
		},
		attachmentReply: func(req llm.Request) (string, error) {
			return "Attachments of " + req.Document, nil
		},
		reportReply: func(req llm.Request) (string, error) {
			return "Summary of " + req.Document, nil
		},
	}
}

func (m *cannedModel) Complete(_ context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	switch {
	case strings.Contains(req.System, "data extraction"):
		m.extractions.Add(1)
		return m.extractReply(req)
	case strings.Contains(req.Prompt, "Attachment Text:"):
		return m.attachmentReply(req)
	default:
		return m.reportReply(req)
	}
}

func (m *cannedModel) reportPrompt(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, req := range m.requests {
		if req.Document == id && strings.HasPrefix(req.Prompt, "Based on") {
			return req.Prompt
		}
	}
	return ""
}

func newTestRunner(model llm.Service, cfg types.BatchConfig) *Runner {
	return newRunnerWithText(fileText{}, model, cfg)
}

func newRunnerWithText(text TextSource, model llm.Service, cfg types.BatchConfig) *Runner {
	log := zerolog.Nop()
	return NewRunner(
		text,
		extract.New(model, types.ExtractionConfig{}, log),
		summarize.New(model, types.SummaryConfig{}, log),
		cfg,
		log,
	)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.pdf", "x")
	b := writeFile(t, dir, "B.PDF", "x")
	writeFile(t, dir, "notes.txt", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.pdf"), 0o755))
	writeFile(t, filepath.Join(dir, "nested.pdf"), "c.pdf", "x")

	other := t.TempDir()
	single := writeFile(t, other, "single.pdf", "x")

	tests := []struct {
		name    string
		inputs  []string
		pattern string
		want    []string
	}{
		{name: "directory scan ignores case and subdirectories", inputs: []string{dir}, want: []string{b, a}},
		{name: "explicit file", inputs: []string{single}, want: []string{single}},
		{name: "duplicates removed", inputs: []string{dir, a}, want: []string{b, a}},
		{name: "custom pattern", inputs: []string{dir}, pattern: "*.txt", want: []string{filepath.Join(dir, "notes.txt")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Discover(tt.inputs, tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiscoverMissingInput(t *testing.T) {
	_, err := Discover([]string{filepath.Join(t.TempDir(), "missing")}, "")
	assert.Error(t, err)
}

func TestRunTwoValidOneUnopenable(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			in := t.TempDir()
			out := filepath.Join(t.TempDir(), "output")
			writePDF(t, in, "acme.pdf", "FORM ADT-1\n", "BOARD RESOLUTION\n", "CONSENT LETTER\n")
			writePDF(t, in, "globex.pdf", "FORM ADT-1 single page\n")
			writeFile(t, in, "broken.pdf", "garbage bytes")

			paths, err := Discover([]string{in}, "")
			require.NoError(t, err)
			require.Len(t, paths, 3)

			model := newCannedModel()
			runner := newTestRunner(model, types.BatchConfig{OutputDir: out, Concurrency: concurrency})

			var buf bytes.Buffer
			summary, err := runner.Run(context.Background(), paths, &buf)
			require.NoError(t, err)

			assert.Equal(t, 2, summary.Processed)
			assert.Equal(t, 1, summary.Skipped)
			assert.True(t, summary.HasFailures())
			assert.Equal(t, 3, summary.Total())

			assert.Equal(t, []string{
				"acme.json",
				"acme_attachment_summary.txt",
				"acme_summary.txt",
				"globex.json",
				"globex_summary.txt",
				"run-report.yaml",
			}, listDir(t, out))

			output := buf.String()
			assert.Contains(t, output, "skipped broken: ")
			assert.Contains(t, output, "processed acme (3 fields, 3 pages)")
			assert.Contains(t, output, "  attachment: Board resolution\n")
			assert.True(t, strings.HasSuffix(output, "\nBatch summary: 2 processed, 1 skipped, 0 kept (total: 3)\n"), output)

			require.Len(t, summary.Reports, 3)
			assert.Equal(t, "acme", summary.Reports[0].ID)
			assert.Equal(t, types.StatePersisted, summary.Reports[0].State)
			assert.Equal(t, "broken", summary.Reports[1].ID)
			assert.Equal(t, types.StateSkipped, summary.Reports[1].State)
			assert.Equal(t, types.StatePersisted, summary.Reports[2].State)
		})
	}
}

func TestRunArtifacts(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	path := writePDF(t, in, "acme.pdf", "FORM\n", "RESOLUTION\n")

	model := newCannedModel()
	runner := newTestRunner(model, types.BatchConfig{OutputDir: out})
	_, err := runner.Run(context.Background(), []string{path}, &bytes.Buffer{})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, "acme.json"))
	require.NoError(t, err)
	assert.Equal(t, `{
    "company_name": "acme LIMITED",
    "form": "ADT-1",
    "attachments": [
        "Board resolution",
        "Consent letter"
    ]
}
`, string(data))

	att, err := os.ReadFile(filepath.Join(out, "acme_attachment_summary.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Attachments of acme", string(att))

	sum, err := os.ReadFile(filepath.Join(out, "acme_summary.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Summary of acme", string(sum))

	prompt := model.reportPrompt("acme")
	assert.Contains(t, prompt, `"company_name": "acme LIMITED"`)
	assert.Contains(t, prompt, "---\nAttachments of acme\n---")

	raw, err := os.ReadFile(filepath.Join(out, runReportFile))
	require.NoError(t, err)
	var report types.RunReport
	require.NoError(t, yaml.Unmarshal(raw, &report))
	assert.Equal(t, 1, report.Processed)
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Documents, 1)
	assert.Equal(t, []string{"Board resolution", "Consent letter"}, report.Documents[0].Attachments)
	assert.Equal(t, filepath.Join(out, "acme_attachment_summary.txt"), report.Documents[0].Artifacts.AttachmentSummary)
}

func TestExtractionFailureSkipsDocument(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	path := writePDF(t, in, "acme.pdf", "FORM\n", "RESOLUTION\n")

	model := newCannedModel()
	model.extractReply = func(llm.Request) (string, error) { return "I could not find any fields.", nil }

	runner := newTestRunner(model, types.BatchConfig{OutputDir: out})
	var buf bytes.Buffer
	summary, err := runner.Run(context.Background(), []string{path}, &buf)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, []string{"run-report.yaml"}, listDir(t, out))
	assert.Len(t, model.requests, 1, "no summaries after a failed extraction")
	assert.Contains(t, summary.Reports[0].Error, "structured extraction failed (parse)")
}

func TestSummaryFailuresAreNonFatal(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	path := writePDF(t, in, "acme.pdf", "FORM\n", "RESOLUTION\n")

	model := newCannedModel()
	model.attachmentReply = func(llm.Request) (string, error) { return "", errors.New("quota exceeded") }
	model.reportReply = func(llm.Request) (string, error) { return "", llm.ErrTimeout }

	runner := newTestRunner(model, types.BatchConfig{OutputDir: out})
	summary, err := runner.Run(context.Background(), []string{path}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	rep := summary.Reports[0]
	assert.Equal(t, types.StatePersisted, rep.State)
	assert.Len(t, rep.Warnings, 2)

	att, err := os.ReadFile(filepath.Join(out, "acme_attachment_summary.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Error generating attachment summary: quota exceeded", string(att))

	sum, err := os.ReadFile(filepath.Join(out, "acme_summary.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Error generating summary: model call timed out", string(sum))

	assert.NotContains(t, model.reportPrompt("acme"), "Error generating",
		"a failed attachment summary is not fed into the report prompt")
}

func TestSkipUnchanged(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	acme := writePDF(t, in, "acme.pdf", "FORM\n")
	writePDF(t, in, "globex.pdf", "FORM\n")
	past := time.Now().Add(-time.Hour)
	for _, name := range []string{"acme.pdf", "globex.pdf"} {
		require.NoError(t, os.Chtimes(filepath.Join(in, name), past, past))
	}

	paths, err := Discover([]string{in}, "")
	require.NoError(t, err)

	model := newCannedModel()
	cfg := types.BatchConfig{OutputDir: out, OnExisting: types.ExistingSkipUnchanged}

	first, err := newTestRunner(model, cfg).Run(context.Background(), paths, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Processed)
	assert.Equal(t, int32(2), model.extractions.Load())

	var buf bytes.Buffer
	second, err := newTestRunner(model, cfg).Run(context.Background(), paths, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Kept)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, int32(2), model.extractions.Load(), "kept documents make no model calls")
	assert.Contains(t, buf.String(), "kept acme\n")

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(acme, future, future))

	third, err := newTestRunner(model, cfg).Run(context.Background(), paths, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, third.Processed)
	assert.Equal(t, 1, third.Kept)
}

func TestRerunKeepsKeySet(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	path := writePDF(t, in, "acme.pdf", "FORM\n", "RESOLUTION\n")

	keys := func() []string {
		data, err := os.ReadFile(filepath.Join(out, "acme.json"))
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		var ks []string
		for k := range m {
			ks = append(ks, k)
		}
		sort.Strings(ks)
		return ks
	}

	runner := newTestRunner(newCannedModel(), types.BatchConfig{OutputDir: out})
	_, err := runner.Run(context.Background(), []string{path}, &bytes.Buffer{})
	require.NoError(t, err)
	firstKeys := keys()

	_, err = runner.Run(context.Background(), []string{path}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, firstKeys, keys())
	assert.Equal(t, []string{"attachments", "company_name", "form"}, firstKeys)
}

func TestDuplicateDocumentNames(t *testing.T) {
	a := writePDF(t, t.TempDir(), "filing.pdf", "FORM A\n")
	b := writePDF(t, t.TempDir(), "filing.pdf", "FORM B\n")
	out := t.TempDir()

	runner := newTestRunner(newCannedModel(), types.BatchConfig{OutputDir: out})
	summary, err := runner.Run(context.Background(), []string{a, b}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, a, summary.Reports[0].Path)
	assert.Contains(t, summary.Reports[1].Error, ErrDuplicateID.Error())
}

func TestEchoPrintsArtifacts(t *testing.T) {
	in := t.TempDir()
	path := writePDF(t, in, "acme.pdf", "FORM\n")

	runner := newTestRunner(newCannedModel(), types.BatchConfig{OutputDir: t.TempDir(), Echo: true})
	var buf bytes.Buffer
	_, err := runner.Run(context.Background(), []string{path}, &buf)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "--- acme: extracted data ---\n{\n    \"company_name\"")
	assert.Contains(t, output, "--- acme: summary ---\nSummary of acme\n")
	assert.NotContains(t, output, "attachment summary ---", "single-page filings have no attachment summary")
}

func TestCancelledRunSkipsRemaining(t *testing.T) {
	in := t.TempDir()
	path := writePDF(t, in, "acme.pdf", "FORM\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := newTestRunner(newCannedModel(), types.BatchConfig{OutputDir: t.TempDir()})
	summary, err := runner.Run(ctx, []string{path}, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Skipped)
}

func TestRunReadsPDFFiles(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	pdftexttest.WriteFile(t, in, "acme.pdf", "FORM ADT-1 ACME LIMITED", "BOARD RESOLUTION", "CONSENT LETTER")
	pdftexttest.WriteFile(t, in, "globex.pdf", "FORM ADT-1 GLOBEX LIMITED")
	writeFile(t, in, "broken.pdf", "garbage bytes")

	paths, err := Discover([]string{in}, "")
	require.NoError(t, err)

	model := newCannedModel()
	runner := newRunnerWithText(pdftext.Source{}, model, types.BatchConfig{OutputDir: out, Concurrency: 2})
	summary, err := runner.Run(context.Background(), paths, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, summary.Reports, 3)
	assert.Equal(t, 3, summary.Reports[0].PageCount)
	assert.Equal(t, "broken", summary.Reports[1].ID)
	assert.Equal(t, types.StateSkipped, summary.Reports[1].State)
	assert.Equal(t, 1, summary.Reports[2].PageCount)

	assert.Equal(t, []string{
		"acme.json",
		"acme_attachment_summary.txt",
		"acme_summary.txt",
		"globex.json",
		"globex_summary.txt",
		"run-report.yaml",
	}, listDir(t, out))

	var attachmentPrompts, extractPrompts []llm.Request
	for _, req := range model.requests {
		switch {
		case strings.Contains(req.Prompt, "Attachment Text:"):
			attachmentPrompts = append(attachmentPrompts, req)
		case strings.Contains(req.System, "data extraction"):
			extractPrompts = append(extractPrompts, req)
		}
	}
	require.Len(t, attachmentPrompts, 1, "single-page filings have no attachments")
	assert.Equal(t, "acme", attachmentPrompts[0].Document)
	assert.Contains(t, attachmentPrompts[0].Prompt, "---\nBOARD RESOLUTIONCONSENT LETTER\n---")

	require.Len(t, extractPrompts, 2)
	var forms []string
	for _, req := range extractPrompts {
		forms = append(forms, req.Prompt)
	}
	assert.Contains(t, strings.Join(forms, "\n"), "---\nFORM ADT-1 GLOBEX LIMITED\n---")
}

func TestKeptReportListsAttachmentSummary(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writePDF(t, in, "acme.pdf", "FORM\n", "RESOLUTION\n")
	writePDF(t, in, "globex.pdf", "FORM\n")
	past := time.Now().Add(-time.Hour)
	for _, name := range []string{"acme.pdf", "globex.pdf"} {
		require.NoError(t, os.Chtimes(filepath.Join(in, name), past, past))
	}

	paths, err := Discover([]string{in}, "")
	require.NoError(t, err)

	cfg := types.BatchConfig{OutputDir: out, OnExisting: types.ExistingSkipUnchanged}
	_, err = newTestRunner(newCannedModel(), cfg).Run(context.Background(), paths, &bytes.Buffer{})
	require.NoError(t, err)

	second, err := newTestRunner(newCannedModel(), cfg).Run(context.Background(), paths, &bytes.Buffer{})
	require.NoError(t, err)
	require.Equal(t, 2, second.Kept)

	raw, err := os.ReadFile(filepath.Join(out, runReportFile))
	require.NoError(t, err)
	var report types.RunReport
	require.NoError(t, yaml.Unmarshal(raw, &report))
	require.Len(t, report.Documents, 2)

	acme := report.Documents[0].Artifacts
	require.NotNil(t, acme)
	assert.Equal(t, types.StateKept, report.Documents[0].State)
	assert.Equal(t, filepath.Join(out, "acme_attachment_summary.txt"), acme.AttachmentSummary)
	assert.Equal(t, filepath.Join(out, "acme_summary.txt"), acme.Summary)

	globex := report.Documents[1].Artifacts
	require.NotNil(t, globex)
	assert.Empty(t, globex.AttachmentSummary)
}

func TestRerunWithoutAttachmentsRemovesStaleSummary(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	path := writePDF(t, in, "acme.pdf", "FORM\n", "RESOLUTION\n")

	runner := newTestRunner(newCannedModel(), types.BatchConfig{OutputDir: out})
	_, err := runner.Run(context.Background(), []string{path}, &bytes.Buffer{})
	require.NoError(t, err)
	require.Contains(t, listDir(t, out), "acme_attachment_summary.txt")

	writePDF(t, in, "acme.pdf", "FORM\n")
	summary, err := runner.Run(context.Background(), []string{path}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, []string{"acme.json", "acme_summary.txt", "run-report.yaml"}, listDir(t, out))
	require.NotNil(t, summary.Reports[0].Artifacts)
	assert.Empty(t, summary.Reports[0].Artifacts.AttachmentSummary)
}

func TestFailedWriteLeavesNoPartialSet(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	path := writePDF(t, in, "acme.pdf", "FORM\n", "RESOLUTION\n")

	// A directory where the summary belongs makes the last write fail.
	require.NoError(t, os.MkdirAll(filepath.Join(out, "acme_summary.txt", "keep"), 0o755))

	runner := newTestRunner(newCannedModel(), types.BatchConfig{OutputDir: out})
	summary, err := runner.Run(context.Background(), []string{path}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, types.StateSkipped, summary.Reports[0].State)
	assert.Equal(t, []string{"acme_summary.txt", "run-report.yaml"}, listDir(t, out),
		"record and attachment summary are removed when the set is incomplete")
}
