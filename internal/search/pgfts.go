package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher over the contacts table as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches company and person names with plainto_tsquery, and phone
// numbers by their digits.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := `(to_tsvector('simple', c.company_name || ' ' || coalesce(c.contact_name, '')) @@ plainto_tsquery('simple', $1)
		OR ($2 <> '' AND regexp_replace(coalesce(c.phone, ''), '\D', '', 'g') LIKE '%' || $2 || '%'))`
	args := []any{text, digitsOnly(text)}
	if q.TeamID != "" {
		args = append(args, q.TeamID)
		where += fmt.Sprintf(" AND c.team_id = $%d::uuid", len(args))
	}

	ctx := context.Background()

	var total int
	countSQL := `SELECT count(*) FROM contacts c WHERE ` + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT c.id::text, c.company_name, coalesce(c.contact_name, ''), coalesce(c.city, ''), coalesce(c.team_id::text, '')
		FROM contacts c
		WHERE %s
		ORDER BY c.company_name, c.id
		LIMIT %d OFFSET %d`, where, limit, offset)
	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.CompanyName, &r.Snippet, &r.City, &r.TeamID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every contact for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ContactRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, coalesce(team_id::text, ''), company_name, coalesce(contact_name, ''),
			coalesce(phone, ''), coalesce(email, ''), coalesce(city, ''), coalesce(canton, '')
		FROM contacts
	`)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	defer rows.Close()

	records := make([]ContactRecord, 0)
	for rows.Next() {
		var r ContactRecord
		if err := rows.Scan(&r.ID, &r.TeamID, &r.CompanyName, &r.ContactName, &r.Phone, &r.Email, &r.City, &r.Canton); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		r.PhoneDigits = digitsOnly(r.Phone)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return records, nil
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
