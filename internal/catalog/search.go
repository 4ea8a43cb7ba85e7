// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/filing-engine/pkg/types"
)

// ErrNotFound is returned by Get for an unknown filing ID.
var ErrNotFound = errors.New("filing not found")

// QueryOptions holds parameters for catalog queries.
type QueryOptions struct {
	// Query is an FTS5 search over summaries and field text.
	Query string

	// Key restricts results to filings with this flattened field key.
	Key string

	// Value restricts results to filings with a field equal to Value;
	// combined with Key, the same field must match both.
	Value string

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// IsEmpty reports whether the query has no search terms or filters.
func (q QueryOptions) IsEmpty() bool {
	return q.Query == "" && q.Key == "" && q.Value == ""
}

// Result is one cataloged filing.
type Result struct {
	ID                string        `json:"id" yaml:"id"`
	Summary           string        `json:"summary" yaml:"summary"`
	AttachmentSummary string        `json:"attachment_summary,omitempty" yaml:"attachment_summary,omitempty"`
	Record            *types.Record `json:"record" yaml:"record"`
	IndexedAt         string        `json:"indexed_at" yaml:"indexed_at"`
}

// Search queries the catalog. Full-text queries are ranked by relevance;
// filter-only queries are sorted by filing ID.
func (s *Store) Search(ctx context.Context, opts QueryOptions) ([]Result, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = opts.Query != ""
	)

	if useFTS {
		qb.WriteString(
			`SELECT f.id, f.record, f.summary, f.attachment_summary, f.indexed_at
			FROM filings_fts
			JOIN filings f ON f.rowid = filings_fts.rowid
			WHERE filings_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(
			`SELECT f.id, f.record, f.summary, f.attachment_summary, f.indexed_at
			FROM filings f
			WHERE 1=1`)
	}

	if opts.Key != "" || opts.Value != "" {
		qb.WriteString(` AND EXISTS (SELECT 1 FROM fields x WHERE x.filing_id = f.id`)
		if opts.Key != "" {
			qb.WriteString(` AND x.key = ?`)
			args = append(args, opts.Key)
		}
		if opts.Value != "" {
			qb.WriteString(` AND x.value = ?`)
			args = append(args, opts.Value)
		}
		qb.WriteString(`)`)
	}

	if useFTS {
		qb.WriteString(` ORDER BY filings_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY f.id`)
	}

	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// Get returns the cataloged filing with the given ID.
func (s *Store) Get(ctx context.Context, id string) (Result, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, record, summary, attachment_summary, indexed_at FROM filings WHERE id = ?`, id)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(sc scanner) (Result, error) {
	var (
		r          Result
		recordJSON string
	)
	if err := sc.Scan(&r.ID, &recordJSON, &r.Summary, &r.AttachmentSummary, &r.IndexedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("scanning row: %w", err)
	}
	r.Record = types.NewRecord()
	if err := json.Unmarshal([]byte(recordJSON), r.Record); err != nil {
		return Result{}, fmt.Errorf("decoding record %s: %w", r.ID, err)
	}
	return r, nil
}
