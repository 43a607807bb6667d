package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"qero/api/internal/dedupe"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show duplicate groups without changing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		preview, err := backend.Engine.Preview(cmd.Context(), operator(), scope())
		if err != nil {
			return err
		}
		if opts.jsonOut {
			return printJSON(preview)
		}
		renderPreview(os.Stdout, preview)
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Merge every duplicate group into its primary",
	Long: `Archive each duplicate, merge its fields and dependent rows into the
primary and delete it. Failures are collected; re-running is safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := backend.Engine.Apply(cmd.Context(), operator(), scope())
		if err != nil {
			return err
		}
		if opts.jsonOut {
			if err := printJSON(summary); err != nil {
				return err
			}
		} else {
			renderSummary(os.Stdout, summary)
		}
		if summary.Status == dedupe.RunPartial {
			return fmt.Errorf("run %s finished with %d errors", summary.RunID, len(summary.Errors))
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <archive-id>",
	Short: "Restore an archived contact with its dependent rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := backend.Engine.Restore(cmd.Context(), operator(), scope(), args[0])
		if err != nil {
			return err
		}
		if opts.jsonOut {
			return printJSON(result)
		}
		renderRestore(os.Stdout, result)
		return nil
	},
}

var archivedLimit, archivedOffset int

var archivedCmd = &cobra.Command{
	Use:   "archived",
	Short: "List archived contacts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := backend.Engine.ListArchived(cmd.Context(), operator(), scope(), dedupe.Page{Limit: archivedLimit, Offset: archivedOffset})
		if err != nil {
			return err
		}
		if opts.jsonOut {
			return printJSON(items)
		}
		renderArchives(os.Stdout, items)
		return nil
	},
}

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import contacts from a JSON array, skipping duplicates",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := readImportFile(importFile)
		if err != nil {
			return err
		}
		result, err := backend.Engine.Import(cmd.Context(), operator(), scope(), records)
		if err != nil {
			return err
		}
		if opts.jsonOut {
			return printJSON(result)
		}
		renderImport(os.Stdout, result)
		return nil
	},
}

func init() {
	archivedCmd.Flags().IntVar(&archivedLimit, "limit", 0, "Page size (default 50, max 200)")
	archivedCmd.Flags().IntVar(&archivedOffset, "offset", 0, "Rows to skip")

	importCmd.Flags().StringVar(&importFile, "file", "", "Path to a JSON array of contact records (required)")
	_ = importCmd.MarkFlagRequired("file")
}

func readImportFile(path string) ([]dedupe.ImportRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	var records []dedupe.ImportRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse import file %s: %w", path, err)
	}
	return records, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
