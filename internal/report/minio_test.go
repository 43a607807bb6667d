package report

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"qero/api/internal/dedupe"
)

type recordedRequest struct {
	method string
	path   string
	header http.Header
}

func newFakeS3(t *testing.T, status int) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{method: r.Method, path: r.URL.Path, header: r.Header.Clone()})
		mu.Unlock()
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>InternalError</Code><Message>boom</Message></Error>`)
			return
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func newTestSink(t *testing.T, srv *httptest.Server) *MinioSink {
	t.Helper()
	sink, err := NewMinioSink(Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "test",
		SecretKey: "testsecret",
		Bucket:    "dedupe-reports",
		Prefix:    "/runs/",
	})
	if err != nil {
		t.Fatalf("NewMinioSink: %v", err)
	}
	return sink
}

func sampleReport() dedupe.RunReport {
	return dedupe.RunReport{
		Summary:   dedupe.Summary{RunID: "run-1", Status: dedupe.RunPartial},
		StartedAt: time.Date(2025, 3, 4, 23, 30, 0, 0, time.UTC),
	}
}

func TestObjectKeyUsesRunDateAndID(t *testing.T) {
	got := ObjectKey("runs", sampleReport())
	if got != "runs/2025/03/04/run-1.json" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := ObjectKey("", sampleReport()); got != "2025/03/04/run-1.json" {
		t.Fatalf("unexpected key without prefix %q", got)
	}
}

func TestNewMinioSinkRequiresBucket(t *testing.T) {
	if _, err := NewMinioSink(Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestPutRunReportUploadsJSON(t *testing.T) {
	srv, requests := newFakeS3(t, http.StatusOK)
	sink := newTestSink(t, srv)

	if err := sink.PutRunReport(context.Background(), sampleReport()); err != nil {
		t.Fatalf("PutRunReport: %v", err)
	}

	if len(*requests) != 1 {
		t.Fatalf("expected one request, got %d", len(*requests))
	}
	req := (*requests)[0]
	if req.method != http.MethodPut {
		t.Fatalf("expected PUT, got %s", req.method)
	}
	if req.path != "/dedupe-reports/runs/2025/03/04/run-1.json" {
		t.Fatalf("unexpected path %q", req.path)
	}
	if got := req.header.Get("X-Amz-Meta-Run-Status"); got != "partial" {
		t.Fatalf("unexpected status metadata %q", got)
	}
}

func TestPutRunReportReportsServerErrors(t *testing.T) {
	srv, _ := newFakeS3(t, http.StatusInternalServerError)
	sink := newTestSink(t, srv)

	err := sink.PutRunReport(context.Background(), sampleReport())
	if err == nil {
		t.Fatal("expected upload error")
	}
	if !strings.Contains(err.Error(), "upload run report") {
		t.Fatalf("unexpected error %v", err)
	}
}
