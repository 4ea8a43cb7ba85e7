package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/filing-engine/pkg/types"
)

const (
	exportLimit = 100000
	exportSheet = "Filings"
)

// ExportPath returns where an export with the given extension is written.
func (s *Store) ExportPath(ext string) string {
	return filepath.Join(s.dir, "export."+ext)
}

// ExportYAML writes matching filings to catalog/export.yaml.
func (s *Store) ExportYAML(ctx context.Context, opts QueryOptions) error {
	results, err := s.exportResults(ctx, opts)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(s.ExportPath("yaml"), data, 0o644)
}

// ExportJSON writes matching filings to catalog/export.json.
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions) error {
	results, err := s.exportResults(ctx, opts)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(s.ExportPath("json"), data, 0o644)
}

// ExportXLSX writes matching filings to catalog/export.xlsx: one row per
// filing, one column per flattened record key.
func (s *Store) ExportXLSX(ctx context.Context, opts QueryOptions) error {
	results, err := s.exportResults(ctx, opts)
	if err != nil {
		return err
	}

	records := make([]*types.Record, len(results))
	for i, r := range results {
		records[i] = r.Record
	}
	keys := types.FlatKeys(records)
	headers := append([]string{"Filing", "Summary", "Attachment Summary"}, keys...)

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	write := func(col, row int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(exportSheet, cell, v)
	}

	for i, h := range headers {
		if err := write(i+1, 1, h); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, r := range results {
		row := i + 2
		values := map[string]string{}
		for _, field := range r.Record.Flatten() {
			values[field.Key] = field.Value
		}
		cells := append([]string{r.ID, r.Summary, r.AttachmentSummary}, make([]string, len(keys))...)
		for j, k := range keys {
			cells[3+j] = values[k]
		}
		for col, v := range cells {
			if err := write(col+1, row, v); err != nil {
				return fmt.Errorf("writing %s: %w", r.ID, err)
			}
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 28)
	_ = f.SetColWidth(exportSheet, "B", "C", 60)

	if err := f.SaveAs(s.ExportPath("xlsx")); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func (s *Store) exportResults(ctx context.Context, opts QueryOptions) ([]Result, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = exportLimit
	}
	results, err := s.Search(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	if results == nil {
		results = []Result{}
	}
	return results, nil
}
