package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const conversationColumns = `id, phone, display_name, status, referred_by,
       subscription_status, subscription_started_at, subscription_updated_at,
       scheduled_call_at, scheduled_call_notes, created_at, last_message_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
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

// GetConversation returns the conversation for the given phone number,
// or ErrNotFound when none exists.
func (r *PostgresRepository) GetConversation(ctx context.Context, phone string) (*Conversation, error) {
	q := fmt.Sprintf(`SELECT %s FROM conversations WHERE phone = $1 LIMIT 1;`, conversationColumns)
	conv, err := scanConversation(r.pool.QueryRow(ctx, q, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// CreateConversationIfAbsent atomically inserts the conversation keyed by
// phone number. It reports whether a row was created; false means another
// delivery won the race and the existing row, including its referred_by
// attribution, is left untouched.
func (r *PostgresRepository) CreateConversationIfAbsent(ctx context.Context, conv Conversation) (bool, error) {
	const q = `
INSERT INTO conversations (phone, display_name, status, referred_by, last_message_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (phone) DO NOTHING;
`
	status := conv.Status
	if status == "" {
		status = StatusPriority
	}
	ct, err := r.pool.Exec(ctx, q, conv.Phone, conv.Name, status, conv.ReferredBy, conv.LastMessageAt)
	if err != nil {
		return false, fmt.Errorf("create conversation: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// TouchConversation advances last_message_at for an existing conversation.
func (r *PostgresRepository) TouchConversation(ctx context.Context, phone string, at time.Time) error {
	const q = `UPDATE conversations SET last_message_at = $2 WHERE phone = $1;`
	if _, err := r.pool.Exec(ctx, q, phone, at); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// UpdateConversationStatus moves the conversation to a new funnel stage.
func (r *PostgresRepository) UpdateConversationStatus(ctx context.Context, phone, status string) error {
	const q = `UPDATE conversations SET status = $2 WHERE phone = $1;`
	ct, err := r.pool.Exec(ctx, q, phone, status)
	if err != nil {
		return fmt.Errorf("update conversation status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSubscription sets the subscription status; startedAt is recorded
// only when a new subscription is being activated.
func (r *PostgresRepository) UpdateSubscription(ctx context.Context, phone, status string, startedAt *time.Time) error {
	const q = `
UPDATE conversations
SET subscription_status = $2,
    subscription_updated_at = NOW(),
    subscription_started_at = COALESCE($3, subscription_started_at)
WHERE phone = $1;
`
	ct, err := r.pool.Exec(ctx, q, phone, status, startedAt)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ScheduleCall records a scheduled call and flips the funnel stage.
func (r *PostgresRepository) ScheduleCall(ctx context.Context, phone string, at time.Time, notes string) error {
	const q = `
UPDATE conversations
SET status = $2, scheduled_call_at = $3, scheduled_call_notes = $4
WHERE phone = $1;
`
	ct, err := r.pool.Exec(ctx, q, phone, StatusCallScheduled, at, notes)
	if err != nil {
		return fmt.Errorf("schedule call: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConversations returns all conversations ordered by most recent
// activity, each with its last message preview and inbound unread count.
// Both derived fields are computed fresh per query; nothing is cached.
func (r *PostgresRepository) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	q := fmt.Sprintf(`
SELECT %s,
       COALESCE((SELECT m.body FROM messages m WHERE m.phone = conversations.phone
                 ORDER BY m.sent_at DESC LIMIT 1), ''),
       (SELECT COUNT(*) FROM messages m WHERE m.phone = conversations.phone
        AND m.direction = 'inbound' AND NOT m.is_read)
FROM conversations
ORDER BY last_message_at DESC;
`, conversationColumns)

	rows, err := r.pool.Query(ctx, q)
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

// ReferralStats aggregates referred conversations per referrer.
func (r *PostgresRepository) ReferralStats(ctx context.Context) ([]ReferralStat, error) {
	const q = `
SELECT referred_by,
       COUNT(*),
       COUNT(*) FILTER (WHERE subscription_status = 'active')
FROM conversations
WHERE referred_by IS NOT NULL
GROUP BY referred_by
ORDER BY COUNT(*) DESC;
`
	rows, err := r.pool.Query(ctx, q)
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
