package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qero/api/internal/auth"
	"qero/api/internal/config"
	"qero/api/internal/dedupe"
	"qero/api/internal/identity"
	"qero/api/internal/search"
	"qero/api/internal/store"
)

const (
	testSecret = "test-secret"
	teamA      = "0b8f3c2e-1d4a-4e5b-9c6d-7e8f9a0b1c2d"
	teamB      = "5a6b7c8d-9e0f-4a1b-8c2d-3e4f5a6b7c8d"
)

type fakeEngine struct {
	previewFn      func(context.Context, dedupe.Actor, dedupe.Scope) (dedupe.Preview, error)
	lastPreviewFn  func(context.Context, dedupe.Actor, dedupe.Scope) (dedupe.Preview, error)
	applyFn        func(context.Context, dedupe.Actor, dedupe.Scope) (dedupe.Summary, error)
	restoreFn      func(context.Context, dedupe.Actor, dedupe.Scope, string) (dedupe.RestoreResult, error)
	listArchivedFn func(context.Context, dedupe.Actor, dedupe.Scope, dedupe.Page) ([]store.ArchiveSummary, error)
	checkFn        func(context.Context, dedupe.Actor, dedupe.Scope, []identity.Candidate) ([]identity.Decision, error)
	importFn       func(context.Context, dedupe.Actor, dedupe.Scope, []dedupe.ImportRecord) (dedupe.ImportResult, error)
}

func (f *fakeEngine) Preview(ctx context.Context, actor dedupe.Actor, scope dedupe.Scope) (dedupe.Preview, error) {
	if f.previewFn != nil {
		return f.previewFn(ctx, actor, scope)
	}
	return dedupe.Preview{Examples: []dedupe.PreviewExample{}}, nil
}

func (f *fakeEngine) LastPreview(ctx context.Context, actor dedupe.Actor, scope dedupe.Scope) (dedupe.Preview, error) {
	if f.lastPreviewFn != nil {
		return f.lastPreviewFn(ctx, actor, scope)
	}
	return dedupe.Preview{}, &dedupe.Error{Kind: dedupe.ErrNotFound, Op: "load preview"}
}

func (f *fakeEngine) Apply(ctx context.Context, actor dedupe.Actor, scope dedupe.Scope) (dedupe.Summary, error) {
	if f.applyFn != nil {
		return f.applyFn(ctx, actor, scope)
	}
	return dedupe.Summary{Status: dedupe.RunCompleted}, nil
}

func (f *fakeEngine) Restore(ctx context.Context, actor dedupe.Actor, scope dedupe.Scope, archiveID string) (dedupe.RestoreResult, error) {
	if f.restoreFn != nil {
		return f.restoreFn(ctx, actor, scope, archiveID)
	}
	return dedupe.RestoreResult{}, nil
}

func (f *fakeEngine) ListArchived(ctx context.Context, actor dedupe.Actor, scope dedupe.Scope, page dedupe.Page) ([]store.ArchiveSummary, error) {
	if f.listArchivedFn != nil {
		return f.listArchivedFn(ctx, actor, scope, page)
	}
	return []store.ArchiveSummary{}, nil
}

func (f *fakeEngine) CheckCandidates(ctx context.Context, actor dedupe.Actor, scope dedupe.Scope, candidates []identity.Candidate) ([]identity.Decision, error) {
	if f.checkFn != nil {
		return f.checkFn(ctx, actor, scope, candidates)
	}
	return []identity.Decision{}, nil
}

func (f *fakeEngine) Import(ctx context.Context, actor dedupe.Actor, scope dedupe.Scope, records []dedupe.ImportRecord) (dedupe.ImportResult, error) {
	if f.importFn != nil {
		return f.importFn(ctx, actor, scope, records)
	}
	return dedupe.ImportResult{Rows: []dedupe.ImportRow{}}, nil
}

type fakeSearcher struct {
	lastQuery search.Query
}

func (f *fakeSearcher) Search(q search.Query) search.Response {
	f.lastQuery = q
	return search.Response{Results: []search.Result{{ID: "c1", CompanyName: "Müller GmbH"}}, Total: 1, Query: q.Text}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var errDown = errors.New("connection refused")

func testConfig() config.Config {
	return config.Config{JWTSecret: testSecret}
}

func newTestServer(engine *fakeEngine, searcher contactSearcher, checks map[string]Pinger) *HTTPServer {
	svc := New(testConfig(), engine, searcher, checks)
	return NewHTTPServer(svc, "*", nil)
}

func tokenFor(t *testing.T, role, teamID string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), auth.Claims{
		Sub:    "user-1",
		Name:   "Lea Meier",
		Role:   role,
		TeamID: teamID,
		JTI:    "jti-1",
		Exp:    time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

func doRequest(t *testing.T, server *HTTPServer, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}
