//go:build mage

// Package main contains Mage build targets for filing-engine developer tooling.
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// projectDirs lists the working directories the pipeline expects.
var projectDirs = []string{
	"input",
	"output",
	"catalog",
	".secrets",
}

const (
	binDir  = "bin"
	binName = "filing-engine"
	cmdPkg  = "./cmd/filing-engine"

	// buildTags enables FTS5 in go-sqlite3 for the catalog.
	buildTags = "sqlite_fts5"
)

// Init creates the project directory structure for the pipeline.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	fmt.Println("Project directories initialized. Put PDFs in input/ and the API key in .secrets/openai-api-key.")
	return nil
}

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		version = "dev"
	}
	out := filepath.Join(binDir, binName)
	if err := sh.RunV("go", "build", "-tags", buildTags,
		"-ldflags", "-X main.version="+version, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s (%s)\n", out, version)
	return nil
}

// Test runs the unit tests.
func Test() error {
	return sh.RunV("go", "test", "-tags", buildTags, "./...")
}

// Process builds the CLI and runs it over input/.
func Process() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "process", "--input-dir", "input", "--output-dir", "output")
}

// Catalog builds the CLI and indexes output/ into the catalog.
func Catalog() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "catalog", "store")
}

// Stats prints non-blank Go lines per top-level directory, split into
// production and test code.
func Stats() error {
	prod := map[string]int{}
	tests := map[string]int{}

	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != "." && (strings.HasPrefix(d.Name(), "_") || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		n, err := countLines(path)
		if err != nil {
			return err
		}
		top := strings.SplitN(filepath.ToSlash(path), "/", 2)[0]
		if strings.HasSuffix(path, "_test.go") {
			tests[top] += n
		} else {
			prod[top] += n
		}
		return nil
	})
	if err != nil {
		return err
	}

	dirs := make([]string, 0, len(prod))
	for d := range prod {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	var totalProd, totalTests int
	fmt.Printf("%-12s  %8s  %8s\n", "Dir", "Go", "Tests")
	for _, d := range dirs {
		fmt.Printf("%-12s  %8d  %8d\n", d, prod[d], tests[d])
		totalProd += prod[d]
		totalTests += tests[d]
	}
	fmt.Printf("%-12s  %8d  %8d\n", "total", totalProd, totalTests)
	return nil
}

// countLines counts non-blank lines in the file at path.
func countLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n, sc.Err()
}
