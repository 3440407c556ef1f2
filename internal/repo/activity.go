package repo

import (
	"context"
	"fmt"
	"strings"
)

const defaultActivityLimit = 100

// AppendActivity inserts one audit record. The table is append-only;
// nothing in the service updates or deletes activity rows.
func (r *PostgresRepository) AppendActivity(ctx context.Context, entry ActivityEntry) error {
	const q = `
INSERT INTO activity_log (action, actor, phone, detail, outcome)
VALUES ($1, $2, $3, $4, $5);
`
	outcome := entry.Outcome
	if outcome == "" {
		outcome = "success"
	}
	if _, err := r.pool.Exec(ctx, q, entry.Action, entry.Actor, entry.Phone, entry.Detail, outcome); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// ListActivity returns audit records matching the filter, newest first,
// bounded by the filter limit.
func (r *PostgresRepository) ListActivity(ctx context.Context, filter ActivityFilter) ([]ActivityEntry, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Actor != "" {
		args = append(args, filter.Actor)
		conds = append(conds, fmt.Sprintf("actor = $%d", len(args)))
	}
	if filter.Phone != "" {
		args = append(args, filter.Phone)
		conds = append(conds, fmt.Sprintf("phone = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	args = append(args, limit)

	q := "SELECT id, action, actor, phone, detail, outcome, created_at FROM activity_log"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d;", len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.Actor, &e.Phone, &e.Detail, &e.Outcome, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity entries: %w", err)
	}
	return entries, nil
}
