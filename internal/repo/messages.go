package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const messageColumns = `id, phone, body, direction, message_type, is_read,
       status, status_timestamp, message_id, wa_message_id, sent_by, sent_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(
		&m.ID,
		&m.Phone,
		&m.Body,
		&m.Direction,
		&m.Type,
		&m.IsRead,
		&m.Status,
		&m.StatusTimestamp,
		&m.MessageID,
		&m.WAMessageID,
		&m.SentBy,
		&m.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertMessage stores an inbound or outbound message record.
func (r *PostgresRepository) InsertMessage(ctx context.Context, msg Message) (*Message, error) {
	q := fmt.Sprintf(`
INSERT INTO messages (phone, body, direction, message_type, is_read, status,
                      status_timestamp, message_id, wa_message_id, sent_by, sent_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING %s;
`, messageColumns)
	row := r.pool.QueryRow(ctx, q,
		msg.Phone,
		msg.Body,
		msg.Direction,
		msg.Type,
		msg.IsRead,
		msg.Status,
		msg.StatusTimestamp,
		msg.MessageID,
		msg.WAMessageID,
		msg.SentBy,
		msg.Timestamp,
	)
	inserted, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return inserted, nil
}

// ListMessages returns all messages for a phone number ordered by time
// ascending.
func (r *PostgresRepository) ListMessages(ctx context.Context, phone string) ([]Message, error) {
	q := fmt.Sprintf(`SELECT %s FROM messages WHERE phone = $1 ORDER BY sent_at ASC;`, messageColumns)
	rows, err := r.pool.Query(ctx, q, phone)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// MarkInboundRead marks every inbound message on the conversation as read.
func (r *PostgresRepository) MarkInboundRead(ctx context.Context, phone string) error {
	const q = `UPDATE messages SET is_read = TRUE WHERE phone = $1 AND direction = 'inbound';`
	if _, err := r.pool.Exec(ctx, q, phone); err != nil {
		return fmt.Errorf("mark inbound read: %w", err)
	}
	return nil
}

// CountUnread counts unread inbound messages for a phone number.
func (r *PostgresRepository) CountUnread(ctx context.Context, phone string) (int, error) {
	const q = `SELECT COUNT(*) FROM messages WHERE phone = $1 AND direction = 'inbound' AND NOT is_read;`
	var count int
	if err := r.pool.QueryRow(ctx, q, phone).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// ApplyStatusUpdate atomically updates the outbound message matching the
// provider-assigned id and returns the updated record. A nil message with
// a nil error means no stored message carries that id; the caller must
// treat that as a no-op, never fabricate a record.
func (r *PostgresRepository) ApplyStatusUpdate(ctx context.Context, waMessageID, status string, at time.Time) (*Message, error) {
	q := fmt.Sprintf(`
UPDATE messages
SET status = $2, status_timestamp = $3
WHERE wa_message_id = $1
RETURNING %s;
`, messageColumns)
	updated, err := scanMessage(r.pool.QueryRow(ctx, q, waMessageID, status, at))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("apply status update: %w", err)
	}
	return updated, nil
}
