package store

import (
	"context"
	"encoding/json"
	"fmt"
)

func (s *PostgresStore) InsertArchive(ctx context.Context, item ArchivedContact) error {
	contactJSON, err := json.Marshal(item.Contact)
	if err != nil {
		return fmt.Errorf("marshal archived contact: %w", err)
	}
	relations := item.Relations
	if relations == nil {
		relations = map[string][]Row{}
	}
	relationsJSON, err := json.Marshal(relations)
	if err != nil {
		return fmt.Errorf("marshal archived relations: %w", err)
	}

	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO archived_contacts (
			id, original_contact_id, team_id, deleted_by, reason, run_id, merged_into_contact_id, contact, relations
		)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, NULLIF($6, '')::uuid, NULLIF($7, '')::uuid, $8::jsonb, $9::jsonb)
	`, item.ID, item.OriginalContactID, item.TeamID, item.DeletedBy, item.Reason, item.RunID, item.MergedIntoContactID,
		string(contactJSON), string(relationsJSON))
	if err != nil {
		return classify("insert archive", err)
	}
	return nil
}

func (s *PostgresStore) GetArchive(ctx context.Context, archiveID string) (ArchivedContact, error) {
	var item ArchivedContact
	var contactJSON, relationsJSON []byte
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id::text, original_contact_id::text, COALESCE(team_id::text, ''), deleted_by, reason,
			COALESCE(run_id::text, ''), COALESCE(merged_into_contact_id::text, ''), contact, relations, created_at
		FROM archived_contacts
		WHERE id = $1
	`, archiveID).Scan(
		&item.ID,
		&item.OriginalContactID,
		&item.TeamID,
		&item.DeletedBy,
		&item.Reason,
		&item.RunID,
		&item.MergedIntoContactID,
		&contactJSON,
		&relationsJSON,
		&item.CreatedAt,
	)
	if err != nil {
		return ArchivedContact{}, classify("get archive", err)
	}
	if err := json.Unmarshal(contactJSON, &item.Contact); err != nil {
		return ArchivedContact{}, fmt.Errorf("decode archived contact: %w", err)
	}
	if err := json.Unmarshal(relationsJSON, &item.Relations); err != nil {
		return ArchivedContact{}, fmt.Errorf("decode archived relations: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteArchive(ctx context.Context, archiveID string) error {
	result, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM archived_contacts WHERE id = $1`, archiveID)
	if err != nil {
		return classify("delete archive", err)
	}
	return expectAffected("delete archive", result)
}

// ListArchives returns archive summaries newest first. An empty teamID lists
// every team.
func (s *PostgresStore) ListArchives(ctx context.Context, teamID string, limit, offset int) ([]ArchiveSummary, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id::text, original_contact_id::text, COALESCE(contact->>'company_name', ''), COALESCE(team_id::text, ''),
			deleted_by, reason, COALESCE(run_id::text, ''), COALESCE(merged_into_contact_id::text, ''),
			COALESCE((SELECT jsonb_object_agg(key, jsonb_array_length(value)) FROM jsonb_each(relations)), '{}'::jsonb),
			created_at
		FROM archived_contacts
		WHERE ($1 = '' OR team_id = NULLIF($1, '')::uuid)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, teamID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	defer rows.Close()

	items := make([]ArchiveSummary, 0)
	for rows.Next() {
		var item ArchiveSummary
		var countsJSON []byte
		if err := rows.Scan(
			&item.ID,
			&item.OriginalContactID,
			&item.CompanyName,
			&item.TeamID,
			&item.DeletedBy,
			&item.Reason,
			&item.RunID,
			&item.MergedIntoContactID,
			&countsJSON,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		item.RelationCounts = map[string]int{}
		if err := json.Unmarshal(countsJSON, &item.RelationCounts); err != nil {
			return nil, fmt.Errorf("decode archive counts: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archives: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertCleanupRun(ctx context.Context, run CleanupRun) error {
	summary := run.Summary
	if len(summary) == 0 {
		summary = json.RawMessage(`{}`)
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO cleanup_runs (id, type, team_id, executed_by, summary, status)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5::jsonb, $6)
	`, run.ID, run.Type, run.TeamID, run.ExecutedBy, string(summary), run.Status)
	if err != nil {
		return classify("insert cleanup run", err)
	}
	return nil
}
