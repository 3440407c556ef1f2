package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// AppendNote attaches a note to the conversation, creating a stub
// conversation row first when none exists yet. Both writes run in one
// transaction so a note never references a missing conversation.
func (r *PostgresRepository) AppendNote(ctx context.Context, phone, text, addedBy string) (*Note, error) {
	const ensure = `
INSERT INTO conversations (phone, display_name, status, last_message_at)
VALUES ($1, '', 'new', NOW())
ON CONFLICT (phone) DO NOTHING;
`
	const q = `
INSERT INTO notes (phone, body, added_by)
VALUES ($1, $2, $3)
RETURNING id, phone, body, added_by, created_at;
`
	var n Note
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ensure, phone); err != nil {
			return fmt.Errorf("ensure conversation: %w", err)
		}
		return tx.QueryRow(ctx, q, phone, text, addedBy).Scan(&n.ID, &n.Phone, &n.Text, &n.AddedBy, &n.CreatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("append note: %w", err)
	}
	return &n, nil
}

// ListNotes returns all notes for a phone number, most recent first.
func (r *PostgresRepository) ListNotes(ctx context.Context, phone string) ([]Note, error) {
	const q = `
SELECT id, phone, body, added_by, created_at
FROM notes
WHERE phone = $1
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, q, phone)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		var createdAt time.Time
		if err := rows.Scan(&n.ID, &n.Phone, &n.Text, &n.AddedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.CreatedAt = createdAt
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}
