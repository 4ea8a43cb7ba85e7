// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog indexes processed filings in SQLite so records and
// summaries can be searched and exported across batch runs.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/filing-engine/pkg/types"
)

const (
	dbFile                  = "filings.db"
	recordSuffix            = ".json"
	summarySuffix           = "_summary.txt"
	attachmentSummarySuffix = "_attachment_summary.txt"
)

// Store manages the catalog SQLite database.
type Store struct {
	db         *sql.DB
	dir        string
	outputDir  string
	maxResults int
}

// NewStore opens or creates the catalog database at cfg.Dir/filings.db
// and creates the schema if it does not exist.
func NewStore(cfg types.CatalogConfig) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "catalog"
	}
	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = "output"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{
		db:         db,
		dir:        dir,
		outputDir:  outputDir,
		maxResults: maxResults,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS filings (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			record TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			attachment_summary TEXT NOT NULL DEFAULT '',
			field_text TEXT NOT NULL DEFAULT '',
			field_count INTEGER NOT NULL DEFAULT 0,
			indexed_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fields (
			filing_id TEXT NOT NULL REFERENCES filings(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (filing_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fields_key ON fields(key)`,
		`CREATE TABLE IF NOT EXISTS indexing_status (
			filing_id TEXT PRIMARY KEY,
			file_mod_time TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='filings_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE filings_fts USING fts5(
				summary, attachment_summary, field_text,
				content=filings, content_rowid=rowid)`,
			`CREATE TRIGGER filings_ai AFTER INSERT ON filings BEGIN
				INSERT INTO filings_fts(rowid, summary, attachment_summary, field_text)
				VALUES (new.rowid, new.summary, new.attachment_summary, new.field_text);
			END`,
			`CREATE TRIGGER filings_ad AFTER DELETE ON filings BEGIN
				INSERT INTO filings_fts(filings_fts, rowid, summary, attachment_summary, field_text)
				VALUES ('delete', old.rowid, old.summary, old.attachment_summary, old.field_text);
			END`,
			`CREATE TRIGGER filings_au AFTER UPDATE ON filings BEGIN
				INSERT INTO filings_fts(filings_fts, rowid, summary, attachment_summary, field_text)
				VALUES ('delete', old.rowid, old.summary, old.attachment_summary, old.field_text);
				INSERT INTO filings_fts(rowid, summary, attachment_summary, field_text)
				VALUES (new.rowid, new.summary, new.attachment_summary, new.field_text);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// IngestSummary holds counts from a catalog indexing run.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
}

// Total returns the number of filings processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// filing is one set of batch artifacts read from the output directory.
type filing struct {
	id                string
	record            *types.Record
	summary           string
	attachmentSummary string
}

// Ingest reads the record and summary artifacts from the output
// directory and indexes them. Filings whose artifacts have not changed
// since the last run are skipped. On any change it rewrites export.yaml.
func (s *Store) Ingest(ctx context.Context, w io.Writer) (IngestSummary, error) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("reading output directory %s: %w", s.outputDir, err)
	}

	var summary IngestSummary

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordSuffix) {
			continue
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		id := strings.TrimSuffix(name, recordSuffix)

		modTime, err := s.artifactModTime(id)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", id, err)
			summary.Failed++
			continue
		}

		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM indexing_status WHERE filing_id = ?`, id,
		).Scan(&storedModTime)

		if err == nil && storedModTime == modTime {
			fmt.Fprintf(w, "skipped %s\n", id)
			summary.Skipped++
			continue
		}

		isUpdate := err == nil

		f, err := s.readFiling(id)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", id, err)
			summary.Failed++
			continue
		}

		fields, err := s.ingestFiling(ctx, f, modTime)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", id, err)
			summary.Failed++
			continue
		}

		if isUpdate {
			fmt.Fprintf(w, "updated %s (%d fields)\n", id, fields)
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexing %s (%d fields)\n", id, fields)
			summary.Indexed++
		}
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)

	if summary.Indexed > 0 || summary.Updated > 0 {
		if err := s.ExportYAML(ctx, QueryOptions{}); err != nil {
			fmt.Fprintf(w, "warning: export.yaml write failed: %v\n", err)
		}
	}

	return summary, nil
}

// artifactModTime combines the modification times of a filing's record
// and summaries, so a change to any of them triggers re-indexing.
func (s *Store) artifactModTime(id string) (string, error) {
	var parts []string
	for _, suffix := range []string{recordSuffix, attachmentSummarySuffix, summarySuffix} {
		info, err := os.Stat(filepath.Join(s.outputDir, id+suffix))
		if errors.Is(err, os.ErrNotExist) && suffix != recordSuffix {
			parts = append(parts, "-")
			continue
		}
		if err != nil {
			return "", err
		}
		parts = append(parts, info.ModTime().UTC().Format(time.RFC3339Nano))
	}
	return strings.Join(parts, "|"), nil
}

func (s *Store) readFiling(id string) (*filing, error) {
	data, err := os.ReadFile(filepath.Join(s.outputDir, id+recordSuffix))
	if err != nil {
		return nil, err
	}
	rec := types.NewRecord()
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	f := &filing{id: id, record: rec}
	if f.summary, err = readOptional(filepath.Join(s.outputDir, id+summarySuffix)); err != nil {
		return nil, err
	}
	if f.attachmentSummary, err = readOptional(filepath.Join(s.outputDir, id+attachmentSummarySuffix)); err != nil {
		return nil, err
	}
	return f, nil
}

// readOptional returns the file's content, or "" if it does not exist.
func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ingestFiling replaces the catalog entry for one filing in a single
// transaction and returns the number of flattened fields stored.
func (s *Store) ingestFiling(ctx context.Context, f *filing, modTime string) (int, error) {
	recordJSON, err := f.record.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("encoding record: %w", err)
	}
	fields := f.record.Flatten()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Fields cascade with the filing row.
	if _, err := tx.ExecContext(ctx, `DELETE FROM filings WHERE id = ?`, f.id); err != nil {
		return 0, fmt.Errorf("deleting old filing: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO filings (id, record, summary, attachment_summary, field_text, field_count, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.id, string(recordJSON), f.summary, f.attachmentSummary,
		fieldText(fields), len(fields), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting filing: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fields (filing_id, position, key, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, field := range fields {
		if _, err := stmt.ExecContext(ctx, f.id, i, field.Key, field.Value); err != nil {
			return 0, fmt.Errorf("inserting field %s: %w", field.Key, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO indexing_status (filing_id, file_mod_time) VALUES (?, ?)
		 ON CONFLICT(filing_id) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
		f.id, modTime,
	)
	if err != nil {
		return 0, fmt.Errorf("updating indexing status: %w", err)
	}

	return len(fields), tx.Commit()
}

// fieldText renders flattened fields as searchable "key: value" lines.
func fieldText(fields []types.Field) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f.Key)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteByte('\n')
	}
	return b.String()
}
