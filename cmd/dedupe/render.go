package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"

	"qero/api/internal/dedupe"
	"qero/api/internal/store"
)

var (
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

func renderPreview(w io.Writer, preview dedupe.Preview) {
	fmt.Fprintf(w, "%s\n", cyan("=== Duplicate preview ==="))
	fmt.Fprintf(w, "Groups:     %d\n", preview.GroupCount)
	fmt.Fprintf(w, "Duplicates: %d\n", preview.DuplicateCount)
	if len(preview.Examples) == 0 {
		fmt.Fprintf(w, "  %s\n", gray("No duplicates found"))
		return
	}
	for _, example := range preview.Examples {
		fmt.Fprintf(w, "\n%s %s %s\n", green("●"), example.Primary.CompanyName, gray("("+string(example.MatchReason)+")"))
		for _, dup := range example.Duplicates {
			fmt.Fprintf(w, "  %s %s %s\n", yellow("↳"), dup.CompanyName, gray(dup.ID))
		}
	}
	if preview.GroupCount > len(preview.Examples) {
		fmt.Fprintf(w, "\n%s\n", gray(fmt.Sprintf("... and %d more groups", preview.GroupCount-len(preview.Examples))))
	}
}

func renderSummary(w io.Writer, summary dedupe.Summary) {
	status := green(string(summary.Status))
	if summary.Status == dedupe.RunPartial {
		status = red(string(summary.Status))
	}
	fmt.Fprintf(w, "%s\n", cyan("=== Dedupe run "+summary.RunID+" ==="))
	fmt.Fprintf(w, "Status:        %s\n", status)
	fmt.Fprintf(w, "Groups:        %d\n", summary.GroupCount)
	fmt.Fprintf(w, "Archived:      %d\n", summary.ArchivedCount)
	fmt.Fprintf(w, "Deleted:       %d\n", summary.DeletedCount)
	fmt.Fprintf(w, "Skipped:       %d\n", summary.SkippedCount)
	fmt.Fprintf(w, "Fields merged: %d\n", summary.FieldsMergedCount)

	fmt.Fprintf(w, "\n%s\n", yellow("Rows moved per relation:"))
	for _, table := range sortedKeys(summary.MergedByRelationType) {
		fmt.Fprintf(w, "  %-28s %d\n", table, summary.MergedByRelationType[table])
	}

	if len(summary.Errors) > 0 {
		fmt.Fprintf(w, "\n%s\n", red(fmt.Sprintf("Errors (%d):", len(summary.Errors))))
		for _, runErr := range summary.Errors {
			target := runErr.ContactID
			if runErr.Relation != "" {
				target += " " + runErr.Relation
			}
			fmt.Fprintf(w, "  %s %s: %s\n", red("✗"), string(runErr.Step)+" "+target, runErr.Message)
		}
	}
	if !summary.AuditPersisted {
		fmt.Fprintf(w, "\n%s\n", red("Audit row was not written"))
	}
}

func renderRestore(w io.Writer, result dedupe.RestoreResult) {
	fmt.Fprintf(w, "%s contact %s from archive %s\n", green("Restored"), result.ContactID, gray(result.ArchiveID))
	for _, table := range sortedKeys(result.RelationCounts) {
		fmt.Fprintf(w, "  %-28s %d\n", table, result.RelationCounts[table])
	}
}

func renderArchives(w io.Writer, items []store.ArchiveSummary) {
	if len(items) == 0 {
		fmt.Fprintf(w, "  %s\n", gray("No archived contacts"))
		return
	}
	for _, item := range items {
		fmt.Fprintf(w, "%s  %s  %s  %s\n",
			item.ID,
			item.CreatedAt.Format("2006-01-02 15:04"),
			item.CompanyName,
			gray(item.Reason),
		)
	}
}

func renderImport(w io.Writer, result dedupe.ImportResult) {
	fmt.Fprintf(w, "Imported:   %s\n", green(fmt.Sprint(result.Imported)))
	fmt.Fprintf(w, "Duplicates: %s\n", yellow(fmt.Sprint(result.Duplicates)))
	fmt.Fprintf(w, "Failed:     %s\n", red(fmt.Sprint(result.Failed)))
	for _, row := range result.Rows {
		if row.Error != "" {
			fmt.Fprintf(w, "  row %d: %s\n", row.Index, row.Error)
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
