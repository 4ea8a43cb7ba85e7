// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdftext

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Info describes a PDF's structure and text layer.
type Info struct {
	Path      string `json:"path" yaml:"path"`
	PageCount int    `json:"page_count" yaml:"page_count"`

	// Valid is false when relaxed structural validation reported a problem.
	// Text extraction may still succeed for such files.
	Valid           bool   `json:"valid" yaml:"valid"`
	ValidationError string `json:"validation_error,omitempty" yaml:"validation_error,omitempty"`

	// PageChars holds the non-whitespace character count of each page.
	PageChars []int `json:"page_chars" yaml:"page_chars"`
}

// TextPages returns the number of pages with any text.
func (i Info) TextPages() int {
	n := 0
	for _, c := range i.PageChars {
		if c > 0 {
			n++
		}
	}
	return n
}

// Inspect reports the page count and validation status of the PDF at
// path, and how much text each page yields.
func Inspect(path string) (Info, error) {
	info := Info{Path: path}

	f, err := os.Open(path)
	if err != nil {
		return info, &DocumentReadError{Path: path, Err: err}
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	n, err := api.PageCount(f, conf)
	if err != nil {
		return info, &DocumentReadError{Path: path, Err: fmt.Errorf("counting pages: %w", err)}
	}
	info.PageCount = n

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return info, &DocumentReadError{Path: path, Err: err}
	}
	if err := api.Validate(f, conf); err != nil {
		info.ValidationError = err.Error()
	} else {
		info.Valid = true
	}

	err = withPages(path, func(src pageSource) error {
		pages, err := readPages(src, 1, src.NumPage())
		if err != nil {
			return err
		}
		for _, text := range pages {
			info.PageChars = append(info.PageChars, countChars(text))
		}
		return nil
	})
	return info, err
}

func countChars(s string) int {
	return utf8.RuneCountInString(strings.Join(strings.Fields(s), ""))
}
