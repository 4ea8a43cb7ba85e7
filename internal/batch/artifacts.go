package batch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"

	"github.com/pdiddy/filing-engine/pkg/types"
)

const (
	recordSuffix            = ".json"
	attachmentSummarySuffix = "_attachment_summary.txt"
	summarySuffix           = "_summary.txt"
)

// artifactPaths returns where the artifacts for document id live.
func artifactPaths(outDir, id string, withAttachments bool) types.Artifacts {
	arts := types.Artifacts{
		Record:  filepath.Join(outDir, id+recordSuffix),
		Summary: filepath.Join(outDir, id+summarySuffix),
	}
	if withAttachments {
		arts.AttachmentSummary = filepath.Join(outDir, id+attachmentSummarySuffix)
	}
	return arts
}

// existingArtifacts returns the artifact paths for id, including the
// attachment summary only when it is on disk.
func existingArtifacts(outDir, id string) (types.Artifacts, error) {
	arts := artifactPaths(outDir, id, true)
	if _, err := os.Stat(arts.AttachmentSummary); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return arts, fmt.Errorf("stat output %s: %w", arts.AttachmentSummary, err)
		}
		arts.AttachmentSummary = ""
	}
	return arts, nil
}

// persist writes the record and summaries for one document. The final
// summary is written last so its mtime marks a complete set. A document
// without attachment text loses any attachment summary from an earlier
// run. If a write fails, the artifacts written so far are removed so the
// output directory never holds a record beside summaries of another run.
func (r *Runner) persist(id string, rec *types.Record, withAttachments bool, attachmentText, finalText string) (types.Artifacts, error) {
	arts := artifactPaths(r.cfg.OutputDir, id, withAttachments)

	data, err := encodeRecord(rec)
	if err != nil {
		return arts, fmt.Errorf("encoding record: %w", err)
	}

	var written []string
	write := func(path string, data []byte) error {
		if err := writeArtifact(path, data); err != nil {
			for _, p := range written {
				_ = os.Remove(p)
			}
			return err
		}
		written = append(written, path)
		return nil
	}

	if err := write(arts.Record, data); err != nil {
		return arts, err
	}
	if withAttachments {
		if err := write(arts.AttachmentSummary, []byte(attachmentText)); err != nil {
			return arts, err
		}
	} else {
		stale := filepath.Join(r.cfg.OutputDir, id+attachmentSummarySuffix)
		if err := os.Remove(stale); err != nil && !errors.Is(err, fs.ErrNotExist) {
			_ = os.Remove(arts.Record)
			return arts, fmt.Errorf("removing stale %s: %w", stale, err)
		}
	}
	if err := write(arts.Summary, []byte(finalText)); err != nil {
		return arts, err
	}
	return arts, nil
}

// encodeRecord renders rec as JSON indented with four spaces.
func encodeRecord(rec *types.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeArtifact replaces path with data in one rename, so readers never
// see a partial artifact.
func writeArtifact(path string, data []byte) error {
	if err := atomicwriter.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// hasChanged reports whether the PDF is newer than its final summary.
// Returns true if the summary does not exist.
func hasChanged(pdfPath, summaryPath string) (bool, error) {
	pdfInfo, err := os.Stat(pdfPath)
	if err != nil {
		return false, fmt.Errorf("stat pdf %s: %w", pdfPath, err)
	}

	outInfo, err := os.Stat(summaryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("stat output %s: %w", summaryPath, err)
	}

	return pdfInfo.ModTime().After(outInfo.ModTime()), nil
}
