// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/filing-engine/internal/batch"
	"github.com/pdiddy/filing-engine/internal/extract"
	"github.com/pdiddy/filing-engine/internal/llm"
	"github.com/pdiddy/filing-engine/internal/pdftext"
	"github.com/pdiddy/filing-engine/internal/secrets"
	"github.com/pdiddy/filing-engine/internal/summarize"
	"github.com/pdiddy/filing-engine/pkg/types"
)

var processCmd = &cobra.Command{
	Use:   "process [pdfs or directories...]",
	Short: "Extract records and summaries from filing PDFs",
	Long: `Process reads each PDF, extracts the form's fields as JSON, summarizes
the attachment pages, and writes a short summary of the filing. Artifacts
go to the output directory as <name>.json, <name>_attachment_summary.txt,
and <name>_summary.txt, together with run-report.yaml.

Without arguments the input directory is scanned for PDFs. Documents that
cannot be read or whose extraction fails are skipped; the command exits
non-zero when any document was skipped.`,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().String("input-dir", "input", "directory scanned when no paths are given")
	processCmd.Flags().String("output-dir", "output", "directory for artifacts and the run report")
	processCmd.Flags().String("pattern", "*.pdf", "file name pattern for scanned directories")
	processCmd.Flags().String("model", types.DefaultModel, "chat model for extraction and summaries")
	processCmd.Flags().String("api-key", "", "OpenAI API key (default: OPENAI_API_KEY or .secrets/openai-api-key)")
	processCmd.Flags().String("base-url", "", "OpenAI-compatible API base URL")
	processCmd.Flags().Int("max-pages", 0, "pages of form text sent for extraction (0 = all)")
	processCmd.Flags().Duration("timeout", types.DefaultTimeout, "timeout for a single model call")
	processCmd.Flags().Int("max-retries", 0, "extra attempts for a failed model call")
	processCmd.Flags().Duration("retry-delay", 0, "base delay between attempts (default 2s)")
	processCmd.Flags().Int("concurrency", 1, "documents processed at once")
	processCmd.Flags().String("on-existing", string(types.ExistingOverwrite), "existing artifacts: overwrite or skip-unchanged")
	processCmd.Flags().Bool("normalize-keys", false, "fold record keys to snake_case")
	processCmd.Flags().Bool("echo", false, "print records and summaries as they are produced")
	processCmd.Flags().String("form-description", types.DefaultFormDescription, "kind of filing named in the summary prompt")

	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ai := types.AIConfig{
		Model:      stringSetting(cmd, "model", "ai.model"),
		APIKey:     resolveAPIKey(cmd),
		BaseURL:    stringSetting(cmd, "base-url", "ai.base_url"),
		Timeout:    durationSetting(cmd, "timeout", "ai.timeout"),
		MaxRetries: intSetting(cmd, "max-retries", "ai.max_retries"),
		RetryDelay: durationSetting(cmd, "retry-delay", "ai.retry_delay"),
	}

	cfg := types.BatchConfig{
		InputDir:    stringSetting(cmd, "input-dir", "batch.input_dir"),
		OutputDir:   stringSetting(cmd, "output-dir", "batch.output_dir"),
		Pattern:     stringSetting(cmd, "pattern", "batch.pattern"),
		Concurrency: intSetting(cmd, "concurrency", "batch.concurrency"),
		OnExisting:  types.ExistingPolicy(stringSetting(cmd, "on-existing", "batch.on_existing")),
		Echo:        boolSetting(cmd, "echo", "batch.echo"),
		Model:       ai.Model,
	}
	switch cfg.OnExisting {
	case types.ExistingOverwrite, types.ExistingSkipUnchanged:
	default:
		return fmt.Errorf("unsupported --on-existing %q: use overwrite or skip-unchanged", cfg.OnExisting)
	}

	inputs := args
	if len(inputs) == 0 {
		inputs = []string{cfg.InputDir}
	}
	paths, err := batch.Discover(inputs, cfg.Pattern)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Printf("No PDF files found in %s\n", strings.Join(inputs, ", "))
		return nil
	}

	svc, err := llm.NewOpenAI(ai, logger)
	if err != nil {
		return err
	}

	text := pdftext.Source{MaxPages: intSetting(cmd, "max-pages", "text.max_pages")}
	extractor := extract.New(svc, types.ExtractionConfig{
		AIConfig:      ai,
		NormalizeKeys: boolSetting(cmd, "normalize-keys", "extraction.normalize_keys"),
	}, logger)
	summarizer := summarize.New(svc, types.SummaryConfig{
		AIConfig:        ai,
		FormDescription: stringSetting(cmd, "form-description", "summary.form_description"),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := batch.NewRunner(text, extractor, summarizer, cfg, logger)
	summary, err := runner.Run(ctx, paths, os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d document(s) skipped", summary.Skipped)
	}
	return nil
}

// resolveAPIKey returns the first key found in the --api-key flag,
// OPENAI_API_KEY (including .env), the ai.api_key setting, and
// .secrets/openai-api-key.
func resolveAPIKey(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetString("api-key"); v != "" {
		return v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		return v
	}
	if v := viper.GetString("ai.api_key"); v != "" {
		return v
	}
	return loadedSecrets.Get(secrets.OpenAIAPIKey)
}
