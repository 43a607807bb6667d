package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"qero/api/internal/dedupe"
)

func TestRecordRunAccumulatesCounters(t *testing.T) {
	rec := New()

	rec.RecordRun(dedupe.Summary{
		Status:               dedupe.RunPartial,
		ArchivedCount:        3,
		DeletedCount:         2,
		SkippedCount:         1,
		FieldsMergedCount:    4,
		MergedByRelationType: map[string]int{"contact_notes": 5, "vacancies": 0},
		Errors: []dedupe.RunError{
			{Step: dedupe.StepRepoint, ContactID: "c2", Relation: "vacancies"},
		},
	}, 1500*time.Millisecond)

	if got := testutil.ToFloat64(rec.runs.WithLabelValues("partial")); got != 1 {
		t.Fatalf("expected one partial run, got %v", got)
	}
	if got := testutil.ToFloat64(rec.archived); got != 3 {
		t.Fatalf("expected 3 archived, got %v", got)
	}
	if got := testutil.ToFloat64(rec.deleted); got != 2 {
		t.Fatalf("expected 2 deleted, got %v", got)
	}
	if got := testutil.ToFloat64(rec.fieldsMerged); got != 4 {
		t.Fatalf("expected 4 fields merged, got %v", got)
	}
	if got := testutil.ToFloat64(rec.relationRows.WithLabelValues("contact_notes")); got != 5 {
		t.Fatalf("expected 5 note rows, got %v", got)
	}
	if got := testutil.ToFloat64(rec.runErrors.WithLabelValues("repoint")); got != 1 {
		t.Fatalf("expected one repoint error, got %v", got)
	}
	if got := testutil.CollectAndCount(rec.runDuration); got != 1 {
		t.Fatalf("expected duration histogram, got %d series", got)
	}
}

func TestRecordRestoreLabelsOutcome(t *testing.T) {
	rec := New()

	rec.RecordRestore(nil)
	rec.RecordRestore(fmt.Errorf("restore: %w", dedupe.ErrConflict))
	rec.RecordRestore(fmt.Errorf("restore: %w", dedupe.ErrNotFound))
	rec.RecordRestore(errors.New("boom"))

	for _, outcome := range []string{"restored", "conflict", "not_found", "failed"} {
		if got := testutil.ToFloat64(rec.restores.WithLabelValues(outcome)); got != 1 {
			t.Fatalf("outcome %s: expected 1, got %v", outcome, got)
		}
	}
}

func TestRecordPreviewAndImport(t *testing.T) {
	rec := New()

	rec.RecordPreview(dedupe.Preview{GroupCount: 7})
	rec.RecordImport(dedupe.ImportResult{Imported: 2, Duplicates: 3, Failed: 1})

	if got := testutil.ToFloat64(rec.previewGroups); got != 7 {
		t.Fatalf("expected gauge 7, got %v", got)
	}
	if got := testutil.ToFloat64(rec.importDecisions.WithLabelValues("duplicate")); got != 3 {
		t.Fatalf("expected 3 duplicates, got %v", got)
	}
}

func TestHandlerExposesDedupeMetrics(t *testing.T) {
	rec := New()
	rec.RecordPreview(dedupe.Preview{GroupCount: 1})

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "qero_dedupe_previews_total 1") {
		t.Fatalf("metrics output missing preview counter:\n%s", body)
	}
}
