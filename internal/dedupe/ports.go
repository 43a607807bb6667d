package dedupe

import (
	"context"
	"time"

	"qero/api/internal/store"
)

// Store is the relational store as seen by the engine. It must run with
// administrative rights since a cleanup spans records of every user.
type Store interface {
	ListContacts(ctx context.Context, teamID string) ([]store.Contact, error)
	GetContact(ctx context.Context, contactID string) (store.Contact, error)
	InsertContact(ctx context.Context, item store.Contact) (store.Contact, error)
	UpdateContactFields(ctx context.Context, contactID string, fields map[string]string) error
	DeleteContact(ctx context.Context, contactID string) error

	ListRows(ctx context.Context, table, column, value string) ([]store.Row, error)
	FindRow(ctx context.Context, table string, match store.Row) (store.Row, error)
	RepointRows(ctx context.Context, table, column, fromID, toID string) (int64, error)
	UpdateRow(ctx context.Context, table, rowID string, patch store.Row) error
	DeleteRow(ctx context.Context, table, rowID string) error
	InsertRow(ctx context.Context, table string, row store.Row) error

	InsertArchive(ctx context.Context, item store.ArchivedContact) error
	GetArchive(ctx context.Context, archiveID string) (store.ArchivedContact, error)
	DeleteArchive(ctx context.Context, archiveID string) error
	ListArchives(ctx context.Context, teamID string, limit, offset int) ([]store.ArchiveSummary, error)

	InsertCleanupRun(ctx context.Context, run store.CleanupRun) error

	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Actor is the user on whose behalf an operation runs.
type Actor struct {
	ID   string
	Name string
	Role string
}

func (a Actor) label() string {
	if a.ID != "" {
		return a.ID
	}
	return a.Name
}

// Authorizer decides whether actor may run cleanup operations.
type Authorizer interface {
	AllowCleanup(ctx context.Context, actor Actor) bool
}

type AuthorizerFunc func(ctx context.Context, actor Actor) bool

func (f AuthorizerFunc) AllowCleanup(ctx context.Context, actor Actor) bool {
	return f(ctx, actor)
}

// Indexer keeps the contact search index in sync. Calls must not block.
type Indexer interface {
	IndexContact(contact store.Contact)
	DeleteContact(contactID string)
}

// PreviewCache keeps the last preview per scope for operator review.
type PreviewCache interface {
	SavePreview(ctx context.Context, teamID string, preview Preview) error
	LookupPreview(ctx context.Context, teamID string) (Preview, error)
	Invalidate(ctx context.Context, teamID string) error
}

// ReportSink stores the full report of an apply run.
type ReportSink interface {
	PutRunReport(ctx context.Context, report RunReport) error
}

// Recorder receives operational measurements.
type Recorder interface {
	RecordPreview(preview Preview)
	RecordRun(summary Summary, elapsed time.Duration)
	RecordRestore(err error)
	RecordImport(result ImportResult)
}

type noopIndexer struct{}

func (noopIndexer) IndexContact(store.Contact) {}
func (noopIndexer) DeleteContact(string)       {}

type noopRecorder struct{}

func (noopRecorder) RecordPreview(Preview)            {}
func (noopRecorder) RecordRun(Summary, time.Duration) {}
func (noopRecorder) RecordRestore(error)              {}
func (noopRecorder) RecordImport(ImportResult)        {}
