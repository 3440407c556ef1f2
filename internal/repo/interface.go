package repo

import (
	"context"
	"errors"
	"io/fs"
	"time"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("not found")

// Store defines the interface for conversation persistence. Both the
// Postgres and SQLite repositories implement it; pipelines and handlers
// receive it via injection so tests can substitute fakes.
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Conversations
	GetConversation(ctx context.Context, phone string) (*Conversation, error)
	CreateConversationIfAbsent(ctx context.Context, conv Conversation) (bool, error)
	TouchConversation(ctx context.Context, phone string, at time.Time) error
	UpdateConversationStatus(ctx context.Context, phone, status string) error
	UpdateSubscription(ctx context.Context, phone, status string, startedAt *time.Time) error
	ScheduleCall(ctx context.Context, phone string, at time.Time, notes string) error
	ListConversations(ctx context.Context) ([]ConversationSummary, error)
	ReferralStats(ctx context.Context) ([]ReferralStat, error)

	// Messages
	InsertMessage(ctx context.Context, msg Message) (*Message, error)
	ListMessages(ctx context.Context, phone string) ([]Message, error)
	MarkInboundRead(ctx context.Context, phone string) error
	CountUnread(ctx context.Context, phone string) (int, error)
	ApplyStatusUpdate(ctx context.Context, waMessageID, status string, at time.Time) (*Message, error)

	// Notes
	AppendNote(ctx context.Context, phone, text, addedBy string) (*Note, error)
	ListNotes(ctx context.Context, phone string) ([]Note, error)

	// Activity log
	AppendActivity(ctx context.Context, entry ActivityEntry) error
	ListActivity(ctx context.Context, filter ActivityFilter) ([]ActivityEntry, error)
}
