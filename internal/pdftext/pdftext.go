// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdftext reads the text layer of filing PDFs. It produces the
// whole-document text used for structured extraction and the text of the
// attachment pages (2..N) used for the attachment summary.
package pdftext

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/pdiddy/filing-engine/pkg/types"
)

// attachmentStartPage is the first page that belongs to the attachments.
// Page 1 is the form itself.
const attachmentStartPage = 2

// ErrNoText is the cause of a DocumentReadError for PDFs without a text layer.
var ErrNoText = errors.New("no extractable text layer")

// DocumentReadError reports a PDF that could not be opened or parsed.
type DocumentReadError struct {
	Path string
	Err  error
}

func (e *DocumentReadError) Error() string {
	return fmt.Sprintf("reading %s: %v", e.Path, e.Err)
}

func (e *DocumentReadError) Unwrap() error {
	return e.Err
}

// PageRange selects pages by 1-based inclusive bounds. To = 0 means the
// last page.
type PageRange struct {
	From int
	To   int
}

// AllPages selects every page of a document.
var AllPages = PageRange{From: 1}

// AttachmentPages selects pages 2..N.
var AttachmentPages = PageRange{From: attachmentStartPage}

// bounds clamps the range to a document of n pages. ok is false when the
// range selects no pages.
func (r PageRange) bounds(n int) (from, to int, ok bool) {
	from, to = r.From, r.To
	if from < 1 {
		from = 1
	}
	if to <= 0 || to > n {
		to = n
	}
	return from, to, from <= to
}

// pageSource is the part of a parsed PDF the extractor reads.
type pageSource interface {
	NumPage() int
	PageText(i int) (string, error)
}

// openPDF opens a PDF for reading. Package-level var for test substitution.
var openPDF = func(path string) (pageSource, io.Closer, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return &pdfReader{r: r}, f, nil
}

type pdfReader struct {
	r *pdf.Reader
}

func (p *pdfReader) NumPage() int {
	return p.r.NumPage()
}

func (p *pdfReader) PageText(i int) (string, error) {
	page := p.r.Page(i)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// withPages opens path, runs fn, and closes the file on every path.
// Open failures, read failures and parser panics become DocumentReadErrors.
func withPages(path string, fn func(src pageSource) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DocumentReadError{Path: path, Err: fmt.Errorf("malformed PDF: %v", r)}
		}
	}()

	src, closer, err := openPDF(path)
	if err != nil {
		return &DocumentReadError{Path: path, Err: err}
	}
	defer closer.Close()

	if err := fn(src); err != nil {
		var dre *DocumentReadError
		if errors.As(err, &dre) {
			return err
		}
		return &DocumentReadError{Path: path, Err: err}
	}
	return nil
}

// readPages returns the text of pages from..to (inclusive, 1-based).
func readPages(src pageSource, from, to int) ([]string, error) {
	pages := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		text, err := src.PageText(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// Extract returns the text of the selected pages concatenated in page
// order. A range past the end of the document yields the empty string.
func Extract(path string, pages PageRange) (string, error) {
	var text string
	err := withPages(path, func(src pageSource) error {
		from, to, ok := pages.bounds(src.NumPage())
		if !ok {
			return nil
		}
		texts, err := readPages(src, from, to)
		if err != nil {
			return err
		}
		text = strings.Join(texts, "")
		return nil
	})
	return text, err
}

// Source loads documents for the batch orchestrator.
type Source struct {
	// MaxPages caps the form text. Zero reads every page.
	MaxPages int
}

// Load reads the PDF at path once and fills in every text view of the document.
func (s Source) Load(path string) (types.Document, error) {
	return Load(path, s.MaxPages)
}

// Load reads the PDF at path once. FormText covers pages 1..maxPages
// (all pages when maxPages <= 0) and AttachmentText covers pages 2..N.
// A document whose form text is blank is a DocumentReadError wrapping ErrNoText.
func Load(path string, maxPages int) (types.Document, error) {
	doc := types.Document{
		ID:   DocumentID(path),
		Path: path,
	}

	err := withPages(path, func(src pageSource) error {
		n := src.NumPage()
		pages, err := readPages(src, 1, n)
		if err != nil {
			return err
		}
		doc.PageCount = n
		doc.RawText = strings.Join(pages, "")

		formEnd := n
		if maxPages > 0 && maxPages < n {
			formEnd = maxPages
		}
		doc.FormText = strings.Join(pages[:formEnd], "")

		if n >= attachmentStartPage {
			doc.AttachmentText = strings.Join(pages[attachmentStartPage-1:], "")
		}
		return nil
	})
	if err != nil {
		return types.Document{}, err
	}

	if strings.TrimSpace(doc.FormText) == "" {
		return types.Document{}, &DocumentReadError{Path: path, Err: ErrNoText}
	}
	return doc, nil
}

// DocumentID returns the base filename of path without its extension.
func DocumentID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
