package dedupe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"qero/api/internal/store"
)

type memState struct {
	contacts map[string]store.Contact
	tables   map[string][]store.Row
	archives map[string]store.ArchivedContact
}

func (s memState) clone() memState {
	out := memState{
		contacts: make(map[string]store.Contact, len(s.contacts)),
		tables:   make(map[string][]store.Row, len(s.tables)),
		archives: make(map[string]store.ArchivedContact, len(s.archives)),
	}
	for id, c := range s.contacts {
		out.contacts[id] = c
	}
	for table, rows := range s.tables {
		copied := make([]store.Row, 0, len(rows))
		for _, row := range rows {
			copied = append(copied, row.Clone())
		}
		out.tables[table] = copied
	}
	for id, a := range s.archives {
		out.archives[id] = a
	}
	return out
}

// memStore is an in-memory Store that mimics the foreign keys and natural
// key constraints of the relation tables.
type memStore struct {
	mu     sync.Mutex
	state  memState
	runs   []store.CleanupRun
	events []string
	seq    int

	foreignKeys map[string]string
	naturalKeys map[string][]string

	failRepoint map[string]error
	failDelete  map[string]error
	failRun     error
}

func newMemStore() *memStore {
	m := &memStore{
		state: memState{
			contacts: map[string]store.Contact{},
			tables:   map[string][]store.Row{},
			archives: map[string]store.ArchivedContact{},
		},
		foreignKeys: map[string]string{},
		naturalKeys: map[string][]string{},
		failRepoint: map[string]error{},
		failDelete:  map[string]error{},
	}
	for _, rel := range DefaultRelations() {
		ref := rel.ref()
		m.foreignKeys[ref.Table] = ref.ForeignKey
		if conflict, ok := rel.(ConflictAwareRepoint); ok {
			m.naturalKeys[ref.Table] = conflict.NaturalKey
		}
	}
	return m
}

func (m *memStore) addContact(c store.Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.contacts[c.ID] = c
}

func (m *memStore) addRow(table string, row store.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.tables[table] = append(m.state.tables[table], row.Clone())
}

func (m *memStore) contact(id string) (store.Contact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.contacts[id]
	return c, ok
}

func (m *memStore) rowsFor(table, contactID string) []store.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matching(table, store.Row{m.foreignKeys[table]: contactID})
}

func (m *memStore) archiveList() []store.ArchivedContact {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.ArchivedContact, 0, len(m.state.archives))
	for _, a := range m.state.archives {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OriginalContactID < out[j].OriginalContactID })
	return out
}

func (m *memStore) eventIndex(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.events {
		if e == event {
			return i
		}
	}
	return -1
}

func (m *memStore) record(event string) {
	m.events = append(m.events, event)
}

func (m *memStore) matching(table string, match store.Row) []store.Row {
	out := make([]store.Row, 0)
	for _, row := range m.state.tables[table] {
		if rowMatches(row, match) {
			out = append(out, row.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func rowMatches(row, match store.Row) bool {
	for column, want := range match {
		got, ok := row[column]
		if !ok || got == nil || want == nil || got != want {
			return false
		}
	}
	return true
}

func (m *memStore) violatesNaturalKey(table string, candidate store.Row) bool {
	keys, ok := m.naturalKeys[table]
	if !ok {
		return false
	}
	match := store.Row{m.foreignKeys[table]: candidate[m.foreignKeys[table]]}
	for _, key := range keys {
		match[key] = candidate[key]
	}
	for _, row := range m.state.tables[table] {
		if row.ID() != candidate.ID() && rowMatches(row, match) {
			return true
		}
	}
	return false
}

func (m *memStore) ListContacts(ctx context.Context, teamID string) ([]store.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Contact, 0, len(m.state.contacts))
	for _, c := range m.state.contacts {
		if teamID == "" || c.TeamID == teamID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return earlier(out[i], out[j]) })
	return out, nil
}

func (m *memStore) GetContact(ctx context.Context, contactID string) (store.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.contacts[contactID]
	if !ok {
		return store.Contact{}, fmt.Errorf("get contact: %w", store.ErrNotFound)
	}
	return c, nil
}

func (m *memStore) InsertContact(ctx context.Context, item store.Contact) (store.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if item.ID == "" {
		item.ID = fmt.Sprintf("new-%d", m.seq)
	}
	if _, exists := m.state.contacts[item.ID]; exists {
		return store.Contact{}, fmt.Errorf("insert contact: %w", store.ErrUniqueViolation)
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Date(2025, 1, 1, 0, 0, m.seq, 0, time.UTC)
	}
	m.state.contacts[item.ID] = item
	m.record("insert:" + item.ID)
	return item, nil
}

func (m *memStore) UpdateContactFields(ctx context.Context, contactID string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.contacts[contactID]
	if !ok {
		return fmt.Errorf("update contact: %w", store.ErrNotFound)
	}
	m.state.contacts[contactID] = FieldPatch(fields).Apply(c)
	m.record("merge:" + contactID)
	return nil
}

func (m *memStore) DeleteContact(ctx context.Context, contactID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failDelete[contactID]; err != nil {
		return err
	}
	if _, ok := m.state.contacts[contactID]; !ok {
		return fmt.Errorf("delete contact: %w", store.ErrNotFound)
	}
	delete(m.state.contacts, contactID)
	for table, fk := range m.foreignKeys {
		kept := m.state.tables[table][:0]
		for _, row := range m.state.tables[table] {
			if row[fk] != contactID {
				kept = append(kept, row)
			}
		}
		m.state.tables[table] = kept
	}
	m.record("delete:" + contactID)
	return nil
}

func (m *memStore) ListRows(ctx context.Context, table, column, value string) ([]store.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matching(table, store.Row{column: value}), nil
}

func (m *memStore) FindRow(ctx context.Context, table string, match store.Row) (store.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.matching(table, match)
	if len(rows) == 0 {
		return nil, fmt.Errorf("find %s row: %w", table, store.ErrNotFound)
	}
	return rows[0], nil
}

func (m *memStore) RepointRows(ctx context.Context, table, column, fromID, toID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failRepoint[table]; err != nil {
		return 0, err
	}
	var n int64
	for _, row := range m.state.tables[table] {
		if row[column] == fromID {
			row[column] = toID
			n++
		}
	}
	m.record("repoint:" + table + ":" + fromID)
	return n, nil
}

func (m *memStore) UpdateRow(ctx context.Context, table, rowID string, patch store.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.state.tables[table] {
		if row.ID() != rowID {
			continue
		}
		updated := row.Clone()
		for column, value := range patch {
			updated[column] = value
		}
		if m.violatesNaturalKey(table, updated) {
			return fmt.Errorf("update %s row: %w", table, store.ErrUniqueViolation)
		}
		for column, value := range patch {
			row[column] = value
		}
		return nil
	}
	return fmt.Errorf("update %s row: %w", table, store.ErrNotFound)
}

func (m *memStore) DeleteRow(ctx context.Context, table, rowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.state.tables[table]
	for i, row := range rows {
		if row.ID() == rowID {
			m.state.tables[table] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete %s row: %w", table, store.ErrNotFound)
}

func (m *memStore) InsertRow(ctx context.Context, table string, row store.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.violatesNaturalKey(table, row) {
		return fmt.Errorf("insert %s row: %w", table, store.ErrUniqueViolation)
	}
	m.state.tables[table] = append(m.state.tables[table], row.Clone())
	return nil
}

func (m *memStore) InsertArchive(ctx context.Context, item store.ArchivedContact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	item.CreatedAt = time.Date(2025, 6, 1, 0, 0, m.seq, 0, time.UTC)
	m.state.archives[item.ID] = item
	m.record("archive:" + item.OriginalContactID)
	return nil
}

func (m *memStore) GetArchive(ctx context.Context, archiveID string) (store.ArchivedContact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.state.archives[archiveID]
	if !ok {
		return store.ArchivedContact{}, fmt.Errorf("get archive: %w", store.ErrNotFound)
	}
	return a, nil
}

func (m *memStore) DeleteArchive(ctx context.Context, archiveID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.archives[archiveID]; !ok {
		return fmt.Errorf("delete archive: %w", store.ErrNotFound)
	}
	delete(m.state.archives, archiveID)
	return nil
}

func (m *memStore) ListArchives(ctx context.Context, teamID string, limit, offset int) ([]store.ArchiveSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.ArchiveSummary, 0)
	for _, a := range m.state.archives {
		if teamID != "" && a.TeamID != teamID {
			continue
		}
		counts := map[string]int{}
		for table, rows := range a.Relations {
			counts[table] = len(rows)
		}
		items = append(items, store.ArchiveSummary{
			ID:                  a.ID,
			OriginalContactID:   a.OriginalContactID,
			CompanyName:         a.Contact.CompanyName,
			TeamID:              a.TeamID,
			DeletedBy:           a.DeletedBy,
			Reason:              a.Reason,
			RunID:               a.RunID,
			MergedIntoContactID: a.MergedIntoContactID,
			RelationCounts:      counts,
			CreatedAt:           a.CreatedAt,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	if offset >= len(items) {
		return []store.ArchiveSummary{}, nil
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items, nil
}

func (m *memStore) InsertCleanupRun(ctx context.Context, run store.CleanupRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRun != nil {
		return m.failRun
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	saved := m.state.clone()
	m.mu.Unlock()
	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.state = saved
		m.mu.Unlock()
		return err
	}
	return nil
}

type memIndex struct {
	mu      sync.Mutex
	indexed []string
	deleted []string
}

func (i *memIndex) IndexContact(contact store.Contact) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.indexed = append(i.indexed, contact.ID)
}

func (i *memIndex) DeleteContact(contactID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.deleted = append(i.deleted, contactID)
}

type memCache struct {
	previews map[string]Preview
	err      error
}

func (c *memCache) SavePreview(ctx context.Context, teamID string, preview Preview) error {
	if c.err != nil {
		return c.err
	}
	if c.previews == nil {
		c.previews = map[string]Preview{}
	}
	c.previews[teamID] = preview
	return nil
}

func (c *memCache) LookupPreview(ctx context.Context, teamID string) (Preview, error) {
	preview, ok := c.previews[teamID]
	if !ok {
		return Preview{}, fmt.Errorf("lookup preview: %w", ErrNotFound)
	}
	return preview, nil
}

func (c *memCache) Invalidate(ctx context.Context, teamID string) error {
	delete(c.previews, teamID)
	return nil
}

type memReports struct {
	reports []RunReport
	err     error
}

func (r *memReports) PutRunReport(ctx context.Context, report RunReport) error {
	r.reports = append(r.reports, report)
	return r.err
}

type memRecorder struct {
	previews []Preview
	runs     []Summary
	restores []error
	imports  []ImportResult
}

func (r *memRecorder) RecordPreview(preview Preview)             { r.previews = append(r.previews, preview) }
func (r *memRecorder) RecordRun(summary Summary, _ time.Duration) { r.runs = append(r.runs, summary) }
func (r *memRecorder) RecordRestore(err error)                   { r.restores = append(r.restores, err) }
func (r *memRecorder) RecordImport(result ImportResult)          { r.imports = append(r.imports, result) }

var allowAll = AuthorizerFunc(func(context.Context, Actor) bool { return true })

var denyAll = AuthorizerFunc(func(context.Context, Actor) bool { return false })

var errBoom = errors.New("boom")

var operator = Actor{ID: "user-1", Name: "Operator", Role: "admin"}

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}
