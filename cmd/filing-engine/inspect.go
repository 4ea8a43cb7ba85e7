package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/filing-engine/internal/pdftext"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <pdf>...",
	Short: "Report page count, validity, and text per page for PDFs",
	Long: `Inspect checks each PDF without calling a model: its page count, whether
it passes relaxed structural validation, and how much text each page
yields. Pages without text usually mean a scanned document.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	var infos []pdftext.Info
	failed := 0
	for _, path := range args {
		info, err := pdftext.Inspect(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed  %s: %v\n", path, err)
			failed++
			continue
		}
		infos = append(infos, info)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(infos); err != nil {
			return err
		}
	} else {
		for _, info := range infos {
			status := "valid"
			if !info.Valid {
				status = "invalid: " + info.ValidationError
			}
			fmt.Printf("%s: %d pages, text on %d, %s\n", info.Path, info.PageCount, info.TextPages(), status)
			for i, n := range info.PageChars {
				fmt.Printf("  page %d: %d chars\n", i+1, n)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d file(s) could not be inspected", failed)
	}
	return nil
}
