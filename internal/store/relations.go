package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Relation tables are addressed by name. Names come from the fixed relation
// list of the dedupe engine; they are still quoted as identifiers.

func ident(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

// ListRows returns every row of table whose column equals value, ordered by id.
func (s *PostgresStore) ListRows(ctx context.Context, table, column, value string) ([]Row, error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s = $1 ORDER BY id`, ident(table), ident(column))
	rows, err := s.conn(ctx).QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("list %s rows: %w", table, err)
	}
	defer rows.Close()

	items, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s rows: %w", table, err)
	}
	return items, nil
}

// FindRow returns the first row of table matching every column in match.
func (s *PostgresStore) FindRow(ctx context.Context, table string, match Row) (Row, error) {
	if len(match) == 0 {
		return nil, fmt.Errorf("find %s row: empty filter", table)
	}
	columns := sortedKeys(match)
	where := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for _, column := range columns {
		args = append(args, match[column])
		where = append(where, fmt.Sprintf("%s = $%d", ident(column), len(args)))
	}
	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s ORDER BY id LIMIT 1`, ident(table), strings.Join(where, " AND "))

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s row: %w", table, err)
	}
	defer rows.Close()

	items, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s row: %w", table, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("find %s row: %w", table, ErrNotFound)
	}
	return items[0], nil
}

// RepointRows moves every row of table referencing fromID to toID and reports
// how many rows moved.
func (s *PostgresStore) RepointRows(ctx context.Context, table, column, fromID, toID string) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET %s = $2 WHERE %s = $1`, ident(table), ident(column), ident(column))
	result, err := s.conn(ctx).ExecContext(ctx, query, fromID, toID)
	if err != nil {
		return 0, classify("repoint "+table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repoint %s: rows affected: %w", table, err)
	}
	return affected, nil
}

func (s *PostgresStore) UpdateRow(ctx context.Context, table, rowID string, patch Row) error {
	if len(patch) == 0 {
		return nil
	}
	columns := sortedKeys(patch)
	sets := make([]string, 0, len(columns))
	args := []any{rowID}
	for _, column := range columns {
		args = append(args, patch[column])
		sets = append(sets, fmt.Sprintf("%s = $%d", ident(column), len(args)))
	}
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $1`, ident(table), strings.Join(sets, ", "))
	result, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return classify("update "+table+" row", err)
	}
	return expectAffected("update "+table+" row", result)
}

func (s *PostgresStore) DeleteRow(ctx context.Context, table, rowID string) error {
	result, err := s.conn(ctx).ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, ident(table)), rowID)
	if err != nil {
		return classify("delete "+table+" row", err)
	}
	return expectAffected("delete "+table+" row", result)
}

// InsertRow inserts row as-is. Leaving out "id" lets the database assign one.
func (s *PostgresStore) InsertRow(ctx context.Context, table string, row Row) error {
	if len(row) == 0 {
		return fmt.Errorf("insert %s row: empty row", table)
	}
	columns := sortedKeys(row)
	names := make([]string, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for _, column := range columns {
		args = append(args, row[column])
		names = append(names, ident(column))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, ident(table), strings.Join(names, ", "), strings.Join(placeholders, ", "))
	if _, err := s.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		return classify("insert "+table+" row", err)
	}
	return nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	items := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		item := make(Row, len(columns))
		for i, column := range columns {
			if raw, ok := values[i].([]byte); ok {
				item[column] = string(raw)
				continue
			}
			item[column] = values[i]
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
