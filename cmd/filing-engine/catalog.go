// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/filing-engine/internal/catalog"
	"github.com/pdiddy/filing-engine/pkg/types"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Index, search, and export processed filings",
	Long: `Catalog manages a local SQLite index of processed filings built from
the artifacts in the output directory. Use subcommands to index them,
search records and summaries, or export the catalog.`,
}

// --- store subcommand ---

var catalogStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Index processed filings into the catalog",
	Long: `Store reads <name>.json and its summary files from the output directory
and indexes them in a SQLite database with FTS5 search. Filings whose
artifacts have not changed are skipped on later runs.`,
	RunE: runCatalogStore,
}

func runCatalogStore(cmd *cobra.Command, args []string) error {
	store, err := catalog.NewStore(catalogConfig(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Ingest(context.Background(), os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d filing(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- search subcommand ---

var catalogSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search cataloged filings by text or field",
	Long: `Search matches the query against summaries, attachment summaries, and
record fields using FTS5. --key and --value restrict results to filings
with a matching field; flattened keys use dots, as in auditor.name.

Use --show with a filing name to print its record and summaries.`,
	RunE: runCatalogSearch,
}

func runCatalogSearch(cmd *cobra.Command, args []string) error {
	store, err := catalog.NewStore(catalogConfig(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	jsonOutput, _ := cmd.Flags().GetBool("json")

	if id, _ := cmd.Flags().GetString("show"); id != "" {
		r, err := store.Get(context.Background(), id)
		if err != nil {
			return err
		}
		return formatSearchOutput([]catalog.Result{r}, jsonOutput, true)
	}

	opts := queryOptsFromFlags(cmd, args)
	if opts.IsEmpty() {
		return fmt.Errorf("query or filter required: provide a search query, --key, or --value")
	}

	results, err := store.Search(context.Background(), opts)
	if err != nil {
		return err
	}
	return formatSearchOutput(results, jsonOutput, false)
}

func formatSearchOutput(results []catalog.Result, jsonOutput, full bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	if full {
		r := results[0]
		data, err := json.MarshalIndent(r.Record, "", "    ")
		if err != nil {
			return err
		}
		fmt.Printf("%s\n%s\n\n%s\n", r.ID, data, r.Summary)
		if r.AttachmentSummary != "" {
			fmt.Printf("\nAttachments:\n%s\n", r.AttachmentSummary)
		}
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-24s  %s\n", "Rank", "Filing", "Summary")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))

	for i, r := range results {
		id := r.ID
		if len(id) > 24 {
			id = id[:21] + "..."
		}
		summary := strings.Join(strings.Fields(r.Summary), " ")
		if len(summary) > 68 {
			summary = summary[:65] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-24s  %s\n", i+1, id, summary)
	}

	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

// --- export subcommand ---

var catalogExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog to YAML, JSON, or XLSX",
	Long: `Export writes the full catalog (or a filtered subset) to
catalog/export.yaml, export.json, or export.xlsx. The spreadsheet has one
row per filing and one column per record field. Supports the same filter
flags as search.`,
	RunE: runCatalogExport,
}

func runCatalogExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := catalog.NewStore(catalogConfig(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)
	ctx := context.Background()

	switch format {
	case "yaml", "":
		err = store.ExportYAML(ctx, opts)
		format = "yaml"
	case "json":
		err = store.ExportJSON(ctx, opts)
	case "xlsx":
		err = store.ExportXLSX(ctx, opts)
	default:
		return fmt.Errorf("unsupported format %q: use yaml, json, or xlsx", format)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Exported to %s\n", store.ExportPath(format))
	return nil
}

// --- shared helpers ---

func catalogConfig(cmd *cobra.Command) types.CatalogConfig {
	return types.CatalogConfig{
		Dir:        stringSetting(cmd, "catalog-dir", "catalog.dir"),
		OutputDir:  stringSetting(cmd, "output-dir", "batch.output_dir"),
		MaxResults: intSetting(cmd, "max-results", "catalog.max_results"),
	}
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) catalog.QueryOptions {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}

	key, _ := cmd.Flags().GetString("key")
	value, _ := cmd.Flags().GetString("value")
	limit, _ := cmd.Flags().GetInt("limit")

	return catalog.QueryOptions{
		Query:      queryText,
		Key:        key,
		Value:      value,
		MaxResults: limit,
	}
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	catalogCmd.PersistentFlags().String("catalog-dir", "catalog", "directory for filings.db and exports")
	catalogCmd.PersistentFlags().String("output-dir", "output", "batch output directory to index")
	catalogCmd.PersistentFlags().Int("max-results", 20, "maximum number of search results")

	for _, c := range []*cobra.Command{catalogSearchCmd, catalogExportCmd} {
		c.Flags().String("query", "", "full-text search query")
		c.Flags().String("key", "", "filter by flattened field key")
		c.Flags().String("value", "", "filter by exact field value")
		c.Flags().Int("limit", 0, "maximum results (0 = use default)")
	}
	catalogSearchCmd.Flags().String("show", "", "print the record and summaries of one filing")
	catalogSearchCmd.Flags().Bool("json", false, "output results as JSON")
	catalogExportCmd.Flags().String("format", "yaml", "export format: yaml, json, or xlsx")

	catalogCmd.AddCommand(catalogStoreCmd)
	catalogCmd.AddCommand(catalogSearchCmd)
	catalogCmd.AddCommand(catalogExportCmd)

	rootCmd.AddCommand(catalogCmd)
}
