package dedupe

import (
	"context"
	"fmt"
	"time"

	"qero/api/internal/store"
)

// RelationRef names a table whose rows point at a contact.
type RelationRef struct {
	Table      string
	ForeignKey string
	// Snapshot marks relations whose rows are kept in the archive.
	Snapshot bool
}

func (r RelationRef) ref() RelationRef { return r }

// Relation is either a SimpleRepoint or a ConflictAwareRepoint.
type Relation interface {
	ref() RelationRef
}

// SimpleRepoint moves every row to the primary with one update.
type SimpleRepoint struct {
	RelationRef
}

// ConflictAwareRepoint moves rows one at a time. A row whose natural key
// already exists on the primary is merged into that row and then dropped.
type ConflictAwareRepoint struct {
	RelationRef
	NaturalKey []string
	Merge      MergeFunc
}

// MergeFunc returns the columns of existing to overwrite with values taken
// from incoming. An empty result means existing wins outright.
type MergeFunc func(existing, incoming store.Row) store.Row

// SubField is a group of columns guarded by one timestamp column.
type SubField struct {
	Columns   []string
	UpdatedAt string
}

// MergeNewest resolves each sub-field independently: the side with the
// later timestamp wins. A missing timestamp loses to a present one and
// ties keep the existing values.
func MergeNewest(fields ...SubField) MergeFunc {
	return func(existing, incoming store.Row) store.Row {
		patch := store.Row{}
		for _, field := range fields {
			incomingAt, ok := rowTime(incoming[field.UpdatedAt])
			if !ok {
				continue
			}
			if existingAt, ok := rowTime(existing[field.UpdatedAt]); ok && !incomingAt.After(existingAt) {
				continue
			}
			for _, column := range field.Columns {
				patch[column] = incoming[column]
			}
			patch[field.UpdatedAt] = incoming[field.UpdatedAt]
		}
		return patch
	}
}

var rowTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
}

func rowTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return *v, true
	case string:
		for _, layout := range rowTimeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// DefaultRelations lists every table that references contacts.
func DefaultRelations() []Relation {
	return []Relation{
		SimpleRepoint{RelationRef{Table: "contact_notes", ForeignKey: "contact_id", Snapshot: true}},
		SimpleRepoint{RelationRef{Table: "contact_persons", ForeignKey: "contact_id", Snapshot: true}},
		SimpleRepoint{RelationRef{Table: "vacancies", ForeignKey: "contact_id", Snapshot: true}},
		SimpleRepoint{RelationRef{Table: "contact_call_logs", ForeignKey: "contact_id", Snapshot: true}},
		SimpleRepoint{RelationRef{Table: "email_threads", ForeignKey: "linked_contact_id"}},
		SimpleRepoint{RelationRef{Table: "whatsapp_conversations", ForeignKey: "linked_contact_id"}},
		ConflictAwareRepoint{
			RelationRef: RelationRef{Table: "contact_user_settings", ForeignKey: "contact_id", Snapshot: true},
			NaturalKey:  []string{"user_id"},
			Merge: MergeNewest(
				SubField{Columns: []string{"status"}, UpdatedAt: "status_updated_at"},
				SubField{Columns: []string{"is_favorite"}, UpdatedAt: "favorited_at"},
				SubField{UpdatedAt: "last_viewed_at"},
			),
		},
		ConflictAwareRepoint{
			RelationRef: RelationRef{Table: "contact_list_members", ForeignKey: "contact_id", Snapshot: true},
			NaturalKey:  []string{"list_id"},
			Merge:       MergeNewest(SubField{Columns: []string{"note"}, UpdatedAt: "note_updated_at"}),
		},
		ConflictAwareRepoint{
			RelationRef: RelationRef{Table: "candidate_contact_drafts", ForeignKey: "contact_id", Snapshot: true},
			NaturalKey:  []string{"candidate_id"},
			Merge:       MergeNewest(SubField{Columns: []string{"subject", "body"}, UpdatedAt: "updated_at"}),
		},
		ConflictAwareRepoint{
			RelationRef: RelationRef{Table: "vacancy_candidate_contacts", ForeignKey: "contact_id"},
			NaturalKey:  []string{"vacancy_id", "candidate_id"},
			Merge:       MergeNewest(SubField{Columns: []string{"stage"}, UpdatedAt: "stage_updated_at"}),
		},
	}
}

// repoint moves every row of rel from one contact to another and returns
// the number of rows that now belong to the target.
func repoint(ctx context.Context, st Store, rel Relation, fromID, toID string) (int, error) {
	switch r := rel.(type) {
	case SimpleRepoint:
		n, err := st.RepointRows(ctx, r.Table, r.ForeignKey, fromID, toID)
		if err != nil {
			return 0, err
		}
		return int(n), nil
	case ConflictAwareRepoint:
		return repointEach(ctx, st, r, fromID, toID)
	default:
		return 0, fmt.Errorf("unsupported relation %T", rel)
	}
}

func repointEach(ctx context.Context, st Store, r ConflictAwareRepoint, fromID, toID string) (int, error) {
	rows, err := st.ListRows(ctx, r.Table, r.ForeignKey, fromID)
	if err != nil {
		return 0, err
	}
	handled := 0
	for _, row := range rows {
		match := store.Row{r.ForeignKey: toID}
		for _, column := range r.NaturalKey {
			match[column] = row[column]
		}

		existing, err := st.FindRow(ctx, r.Table, match)
		if store.IsNotFound(err) {
			err = st.UpdateRow(ctx, r.Table, row.ID(), store.Row{r.ForeignKey: toID})
			if err == nil {
				handled++
				continue
			}
			if !store.IsUniqueViolation(err) {
				return handled, fmt.Errorf("move %s row %s: %w", r.Table, row.ID(), err)
			}
			// Lost a race with a concurrent insert; merge into the winner.
			existing, err = st.FindRow(ctx, r.Table, match)
		}
		if err != nil {
			return handled, fmt.Errorf("find %s row on target: %w", r.Table, err)
		}

		if r.Merge != nil {
			if patch := r.Merge(existing, row); len(patch) > 0 {
				if err := st.UpdateRow(ctx, r.Table, existing.ID(), patch); err != nil {
					return handled, fmt.Errorf("merge %s row %s: %w", r.Table, existing.ID(), err)
				}
			}
		}
		if err := st.DeleteRow(ctx, r.Table, row.ID()); err != nil {
			return handled, fmt.Errorf("drop merged %s row %s: %w", r.Table, row.ID(), err)
		}
		handled++
	}
	return handled, nil
}
