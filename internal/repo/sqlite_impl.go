package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// -- Conversations --

func (r *SQLiteRepository) scanConversationRow(row *sql.Row) (*Conversation, error) {
	var c Conversation
	err := row.Scan(
		&c.ID,
		&c.Phone,
		&c.Name,
		&c.Status,
		&c.ReferredBy,
		&c.SubscriptionStatus,
		&c.SubscriptionStartedAt,
		&c.SubscriptionUpdatedAt,
		&c.ScheduledCallAt,
		&c.ScheduledCallNotes,
		&c.CreatedAt,
		&c.LastMessageAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *SQLiteRepository) GetConversation(ctx context.Context, phone string) (*Conversation, error) {
	q := fmt.Sprintf(`SELECT %s FROM conversations WHERE phone = ? LIMIT 1;`, conversationColumns)
	conv, err := r.scanConversationRow(r.db.QueryRowContext(ctx, q, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (r *SQLiteRepository) CreateConversationIfAbsent(ctx context.Context, conv Conversation) (bool, error) {
	const q = `
INSERT INTO conversations (id, phone, display_name, status, referred_by, created_at, last_message_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (phone) DO NOTHING;
`
	status := conv.Status
	if status == "" {
		status = StatusPriority
	}
	res, err := r.db.ExecContext(ctx, q,
		randomUUID(),
		conv.Phone,
		conv.Name,
		status,
		conv.ReferredBy,
		time.Now().UTC(),
		conv.LastMessageAt,
	)
	if err != nil {
		return false, fmt.Errorf("create conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create conversation rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *SQLiteRepository) TouchConversation(ctx context.Context, phone string, at time.Time) error {
	const q = `UPDATE conversations SET last_message_at = ? WHERE phone = ?;`
	if _, err := r.db.ExecContext(ctx, q, at, phone); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateConversationStatus(ctx context.Context, phone, status string) error {
	const q = `UPDATE conversations SET status = ? WHERE phone = ?;`
	res, err := r.db.ExecContext(ctx, q, status, phone)
	if err != nil {
		return fmt.Errorf("update conversation status: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) UpdateSubscription(ctx context.Context, phone, status string, startedAt *time.Time) error {
	const q = `
UPDATE conversations
SET subscription_status = ?,
    subscription_updated_at = ?,
    subscription_started_at = COALESCE(?, subscription_started_at)
WHERE phone = ?;
`
	res, err := r.db.ExecContext(ctx, q, status, time.Now().UTC(), startedAt, phone)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) ScheduleCall(ctx context.Context, phone string, at time.Time, notes string) error {
	const q = `
UPDATE conversations
SET status = ?, scheduled_call_at = ?, scheduled_call_notes = ?
WHERE phone = ?;
`
	res, err := r.db.ExecContext(ctx, q, StatusCallScheduled, at, notes, phone)
	if err != nil {
		return fmt.Errorf("schedule call: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	q := fmt.Sprintf(`
SELECT %s,
       COALESCE((SELECT m.body FROM messages m WHERE m.phone = conversations.phone
                 ORDER BY m.sent_at DESC LIMIT 1), ''),
       (SELECT COUNT(*) FROM messages m WHERE m.phone = conversations.phone
        AND m.direction = 'inbound' AND NOT m.is_read)
FROM conversations
ORDER BY last_message_at DESC;
`, conversationColumns)

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var summaries []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		if err := rows.Scan(
			&s.ID,
			&s.Phone,
			&s.Name,
			&s.Status,
			&s.ReferredBy,
			&s.SubscriptionStatus,
			&s.SubscriptionStartedAt,
			&s.SubscriptionUpdatedAt,
			&s.ScheduledCallAt,
			&s.ScheduledCallNotes,
			&s.CreatedAt,
			&s.LastMessageAt,
			&s.LastMessage,
			&s.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return summaries, nil
}

func (r *SQLiteRepository) ReferralStats(ctx context.Context) ([]ReferralStat, error) {
	const q = `
SELECT referred_by,
       COUNT(*),
       COUNT(*) FILTER (WHERE subscription_status = 'active')
FROM conversations
WHERE referred_by IS NOT NULL
GROUP BY referred_by
ORDER BY COUNT(*) DESC;
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("referral stats: %w", err)
	}
	defer rows.Close()

	var stats []ReferralStat
	for rows.Next() {
		var s ReferralStat
		if err := rows.Scan(&s.ReferredBy, &s.TotalReferred, &s.SubscribedCount); err != nil {
			return nil, fmt.Errorf("scan referral stat: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate referral stats: %w", err)
	}
	return stats, nil
}

// -- Messages --

func (r *SQLiteRepository) InsertMessage(ctx context.Context, msg Message) (*Message, error) {
	id := randomUUID()
	const q = `
INSERT INTO messages (id, phone, body, direction, message_type, is_read, status,
                      status_timestamp, message_id, wa_message_id, sent_by, sent_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	_, err := r.db.ExecContext(ctx, q,
		id,
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
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	inserted := msg
	inserted.ID = id
	return &inserted, nil
}

func (r *SQLiteRepository) ListMessages(ctx context.Context, phone string) ([]Message, error) {
	q := fmt.Sprintf(`SELECT %s FROM messages WHERE phone = ? ORDER BY sent_at ASC;`, messageColumns)
	rows, err := r.db.QueryContext(ctx, q, phone)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
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
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func (r *SQLiteRepository) MarkInboundRead(ctx context.Context, phone string) error {
	const q = `UPDATE messages SET is_read = TRUE WHERE phone = ? AND direction = 'inbound';`
	if _, err := r.db.ExecContext(ctx, q, phone); err != nil {
		return fmt.Errorf("mark inbound read: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CountUnread(ctx context.Context, phone string) (int, error) {
	const q = `SELECT COUNT(*) FROM messages WHERE phone = ? AND direction = 'inbound' AND NOT is_read;`
	var count int
	if err := r.db.QueryRowContext(ctx, q, phone).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (r *SQLiteRepository) ApplyStatusUpdate(ctx context.Context, waMessageID, status string, at time.Time) (*Message, error) {
	q := fmt.Sprintf(`
UPDATE messages
SET status = ?, status_timestamp = ?
WHERE wa_message_id = ?
RETURNING %s;
`, messageColumns)
	row := r.db.QueryRowContext(ctx, q, status, at, waMessageID)
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
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("apply status update: %w", err)
	}
	return &m, nil
}

// -- Notes --

func (r *SQLiteRepository) AppendNote(ctx context.Context, phone, text, addedBy string) (*Note, error) {
	const ensure = `
INSERT INTO conversations (id, phone, display_name, status, created_at, last_message_at)
VALUES (?, ?, '', 'new', ?, ?)
ON CONFLICT (phone) DO NOTHING;
`
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, ensure, randomUUID(), phone, now, now); err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}

	const q = `
INSERT INTO notes (id, phone, body, added_by, created_at)
VALUES (?, ?, ?, ?, ?);
`
	n := Note{
		ID:        randomUUID(),
		Phone:     phone,
		Text:      text,
		AddedBy:   addedBy,
		CreatedAt: now,
	}
	if _, err := r.db.ExecContext(ctx, q, n.ID, n.Phone, n.Text, n.AddedBy, n.CreatedAt); err != nil {
		return nil, fmt.Errorf("append note: %w", err)
	}
	return &n, nil
}

func (r *SQLiteRepository) ListNotes(ctx context.Context, phone string) ([]Note, error) {
	const q = `
SELECT id, phone, body, added_by, created_at
FROM notes
WHERE phone = ?
ORDER BY created_at DESC;
`
	rows, err := r.db.QueryContext(ctx, q, phone)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.Phone, &n.Text, &n.AddedBy, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

// -- Activity log --

func (r *SQLiteRepository) AppendActivity(ctx context.Context, entry ActivityEntry) error {
	const q = `
INSERT INTO activity_log (id, action, actor, phone, detail, outcome, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?);
`
	outcome := entry.Outcome
	if outcome == "" {
		outcome = "success"
	}
	_, err := r.db.ExecContext(ctx, q,
		randomUUID(),
		entry.Action,
		entry.Actor,
		entry.Phone,
		entry.Detail,
		outcome,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListActivity(ctx context.Context, filter ActivityFilter) ([]ActivityEntry, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Actor != "" {
		conds = append(conds, "actor = ?")
		args = append(args, filter.Actor)
	}
	if filter.Phone != "" {
		conds = append(conds, "phone = ?")
		args = append(args, filter.Phone)
	}
	if filter.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, filter.Action)
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
	q += " ORDER BY created_at DESC LIMIT ?;"

	rows, err := r.db.QueryContext(ctx, q, args...)
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

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
