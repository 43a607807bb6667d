package dedupe

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"qero/api/internal/identity"
	"qero/api/internal/store"
)

const (
	defaultArchivePageSize = 50
	maxArchivePageSize     = 200
)

// Archiver snapshots contacts before deletion and restores them on request.
type Archiver struct {
	store     Store
	relations []Relation
	newID     func() string
}

func NewArchiver(st Store, relations []Relation) *Archiver {
	return &Archiver{store: st, relations: relations, newID: uuid.NewString}
}

// ArchiveRequest describes why a contact is being archived.
type ArchiveRequest struct {
	ContactID  string
	MergedInto string
	Reason     string
	RunID      string
	DeletedBy  string
	TeamID     string
}

// Archive reads the contact and its snapshotted relations in parallel and
// stores them as one archive record. It returns ErrNotFound when the contact
// no longer exists.
func (a *Archiver) Archive(ctx context.Context, req ArchiveRequest) (store.ArchivedContact, error) {
	contact, relations, err := a.snapshot(ctx, req.ContactID)
	if err != nil {
		return store.ArchivedContact{}, err
	}

	teamID := req.TeamID
	if teamID == "" {
		teamID = contact.TeamID
	}
	item := store.ArchivedContact{
		ID:                  a.newID(),
		OriginalContactID:   contact.ID,
		TeamID:              teamID,
		DeletedBy:           req.DeletedBy,
		Reason:              req.Reason,
		RunID:               req.RunID,
		MergedIntoContactID: req.MergedInto,
		Contact:             contact,
		Relations:           relations,
	}
	if err := a.store.InsertArchive(ctx, item); err != nil {
		return store.ArchivedContact{}, newError(ErrPersistence, "archive contact", req.ContactID, err)
	}
	return item, nil
}

func (a *Archiver) snapshot(ctx context.Context, contactID string) (store.Contact, map[string][]store.Row, error) {
	var snapshotted []RelationRef
	for _, rel := range a.relations {
		if ref := rel.ref(); ref.Snapshot {
			snapshotted = append(snapshotted, ref)
		}
	}

	var contact store.Contact
	results := make([][]store.Row, len(snapshotted))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		contact, err = a.store.GetContact(gctx, contactID)
		if store.IsNotFound(err) {
			return newError(ErrNotFound, "archive contact", contactID, err)
		}
		if err != nil {
			return newError(ErrPersistence, "archive contact", contactID, err)
		}
		return nil
	})
	for i, ref := range snapshotted {
		i, ref := i, ref
		g.Go(func() error {
			rows, err := a.store.ListRows(gctx, ref.Table, ref.ForeignKey, contactID)
			if err != nil {
				return newError(ErrPersistence, "snapshot "+ref.Table, contactID, err)
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return store.Contact{}, nil, err
	}

	relations := make(map[string][]store.Row, len(snapshotted))
	for i, ref := range snapshotted {
		rows := results[i]
		if rows == nil {
			rows = []store.Row{}
		}
		relations[ref.Table] = rows
	}
	return contact, relations, nil
}

// RestoreResult reports what a restore recreated.
type RestoreResult struct {
	ArchiveID      string         `json:"archiveId"`
	ContactID      string         `json:"contactId"`
	RelationCounts map[string]int `json:"relationCounts"`
}

// Restore recreates an archived contact under its original id together with
// its relation rows, then deletes the archive. Everything happens in one
// transaction. If a contact with the original id exists the archive is left
// untouched and ErrConflict is returned. A non-empty teamID hides archives of
// other teams behind ErrNotFound.
func (a *Archiver) Restore(ctx context.Context, teamID, archiveID string) (RestoreResult, error) {
	const op = "restore archive"
	if _, err := uuid.Parse(archiveID); err != nil {
		return RestoreResult{}, validationError(op, "archive id must be a uuid")
	}

	archive, err := a.store.GetArchive(ctx, archiveID)
	if store.IsNotFound(err) {
		return RestoreResult{}, newError(ErrNotFound, op, archiveID, err)
	}
	if err != nil {
		return RestoreResult{}, newError(ErrPersistence, op, archiveID, err)
	}
	if teamID != "" && archive.TeamID != teamID {
		return RestoreResult{}, newError(ErrNotFound, op, archiveID, nil)
	}

	_, err = a.store.GetContact(ctx, archive.OriginalContactID)
	switch {
	case err == nil:
		return RestoreResult{}, newError(ErrConflict, op, archiveID,
			fmt.Errorf("contact %s already exists", archive.OriginalContactID))
	case !store.IsNotFound(err):
		return RestoreResult{}, newError(ErrPersistence, op, archiveID, err)
	}

	result := RestoreResult{
		ArchiveID:      archive.ID,
		ContactID:      archive.OriginalContactID,
		RelationCounts: map[string]int{},
	}
	err = a.store.WithinTx(ctx, func(ctx context.Context) error {
		contact := archive.Contact
		contact.ID = archive.OriginalContactID
		if _, err := a.store.InsertContact(ctx, contact); err != nil {
			if store.IsUniqueViolation(err) {
				return newError(ErrConflict, op, archiveID, err)
			}
			return fmt.Errorf("recreate contact: %w", err)
		}

		for _, rel := range a.relations {
			ref := rel.ref()
			rows, ok := archive.Relations[ref.Table]
			if !ok {
				continue
			}
			for _, row := range rows {
				restored := row.Clone()
				restored["id"] = a.newID()
				restored[ref.ForeignKey] = contact.ID
				if err := a.store.InsertRow(ctx, ref.Table, restored); err != nil {
					return fmt.Errorf("restore %s row: %w", ref.Table, err)
				}
			}
			result.RelationCounts[ref.Table] = len(rows)
		}

		if err := a.store.DeleteArchive(ctx, archive.ID); err != nil {
			return fmt.Errorf("delete archive: %w", err)
		}
		return nil
	})
	if err != nil {
		var typed *Error
		if errors.As(err, &typed) {
			return RestoreResult{}, typed
		}
		return RestoreResult{}, newError(ErrPersistence, op, archiveID, err)
	}
	return result, nil
}

// Page selects a window of a listing.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() (Page, error) {
	if p.Limit < 0 || p.Offset < 0 {
		return Page{}, validationError("list archives", "limit and offset must not be negative")
	}
	if p.Limit == 0 {
		p.Limit = defaultArchivePageSize
	}
	if p.Limit > maxArchivePageSize {
		p.Limit = maxArchivePageSize
	}
	return p, nil
}

// List returns archive summaries for a team, newest first.
func (a *Archiver) List(ctx context.Context, teamID string, page Page) ([]store.ArchiveSummary, error) {
	page, err := page.normalize()
	if err != nil {
		return nil, err
	}
	items, err := a.store.ListArchives(ctx, teamID, page.Limit, page.Offset)
	if err != nil {
		return nil, newError(ErrPersistence, "list archives", teamID, err)
	}
	return items, nil
}

func archiveReason(reason identity.Reason) string {
	return "duplicate_of:" + string(reason)
}
