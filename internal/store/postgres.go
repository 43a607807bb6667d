package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// conn returns the transaction bound to ctx by WithinTx, or the pool.
func (s *PostgresStore) conn(ctx context.Context) queryer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithinTx runs fn in a single transaction. Store calls made with the context
// passed to fn join that transaction. Nested calls reuse the outer one.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const contactColumns = `id::text, COALESCE(team_id::text, ''), company_name, COALESCE(contact_name, ''),
	COALESCE(phone, ''), COALESCE(email, ''), COALESCE(street, ''), COALESCE(city, ''),
	COALESCE(canton, ''), COALESCE(postal_code, ''), latitude, longitude,
	COALESCE(source, ''), COALESCE(source_account_id, ''), COALESCE(external_id, ''), created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(row scanner) (Contact, error) {
	var item Contact
	var lat, lng sql.NullFloat64
	err := row.Scan(
		&item.ID,
		&item.TeamID,
		&item.CompanyName,
		&item.ContactName,
		&item.Phone,
		&item.Email,
		&item.Street,
		&item.City,
		&item.Canton,
		&item.PostalCode,
		&lat,
		&lng,
		&item.Source,
		&item.SourceAccountID,
		&item.ExternalID,
		&item.CreatedAt,
	)
	if err != nil {
		return Contact{}, err
	}
	if lat.Valid {
		item.Latitude = &lat.Float64
	}
	if lng.Valid {
		item.Longitude = &lng.Float64
	}
	return item, nil
}

// ListContacts returns the contacts of one team, or of all teams when teamID
// is empty, ordered by creation.
func (s *PostgresStore) ListContacts(ctx context.Context, teamID string) ([]Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts`
	var args []any
	if teamID != "" {
		query += ` WHERE team_id = $1`
		args = append(args, teamID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	items := make([]Contact, 0)
	for rows.Next() {
		item, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetContact(ctx context.Context, contactID string) (Contact, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, contactID)
	item, err := scanContact(row)
	if err != nil {
		return Contact{}, classify("get contact", err)
	}
	return item, nil
}

// InsertContact inserts item. An empty ID or zero CreatedAt lets the database
// assign them; restore passes both to recreate the original row.
func (s *PostgresStore) InsertContact(ctx context.Context, item Contact) (Contact, error) {
	err := s.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO contacts (
			id, team_id, company_name, contact_name, phone, email, street, city, canton, postal_code,
			latitude, longitude, source, source_account_id, external_id, created_at
		)
		VALUES (
			COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), NULLIF($2, '')::uuid, $3, NULLIF($4, ''),
			NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''),
			$11, $12, NULLIF($13, ''), NULLIF($14, ''), NULLIF($15, ''), COALESCE($16::timestamptz, NOW())
		)
		RETURNING id::text, created_at
	`,
		item.ID, item.TeamID, item.CompanyName, item.ContactName, item.Phone, item.Email,
		item.Street, item.City, item.Canton, item.PostalCode, item.Latitude, item.Longitude,
		item.Source, item.SourceAccountID, item.ExternalID, nullableTime(item.CreatedAt),
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return Contact{}, classify("insert contact", err)
	}
	return item, nil
}

var contactFieldColumns = map[string]struct{}{
	"contact_name": {},
	"phone":        {},
	"email":        {},
	"street":       {},
	"city":         {},
	"canton":       {},
	"postal_code":  {},
}

// UpdateContactFields sets the given scalar columns. Only the mergeable
// contact columns are accepted.
func (s *PostgresStore) UpdateContactFields(ctx context.Context, contactID string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	columns := sortedKeys(fields)
	sets := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(columns)+1)
	args = append(args, contactID)
	for _, column := range columns {
		if _, ok := contactFieldColumns[column]; !ok {
			return fmt.Errorf("update contact: column %q is not updatable", column)
		}
		args = append(args, fields[column])
		sets = append(sets, fmt.Sprintf("%s = NULLIF($%d, '')", column, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")

	result, err := s.conn(ctx).ExecContext(ctx, `UPDATE contacts SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return classify("update contact", err)
	}
	return expectAffected("update contact", result)
}

func (s *PostgresStore) DeleteContact(ctx context.Context, contactID string) error {
	result, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM contacts WHERE id = $1`, contactID)
	if err != nil {
		return classify("delete contact", err)
	}
	return expectAffected("delete contact", result)
}

func expectAffected(op string, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value
}
