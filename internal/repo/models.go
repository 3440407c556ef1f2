package repo

import "time"

// Conversation lifecycle stages in the funnel.
const (
	StatusNew           = "new"
	StatusPriority      = "priority"
	StatusCallScheduled = "call_scheduled"
)

// Message delivery statuses. Received applies to inbound records; the
// remaining values follow the provider's delivery lifecycle for outbound
// records.
const (
	MessageStatusReceived  = "received"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusFailed    = "failed"
)

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Conversation represents one addressable contact and its funnel state.
// The phone number is the unique key.
type Conversation struct {
	ID                    string
	Phone                 string
	Name                  string
	Status                string
	ReferredBy            *string
	SubscriptionStatus    string
	SubscriptionStartedAt *time.Time
	SubscriptionUpdatedAt *time.Time
	ScheduledCallAt       *time.Time
	ScheduledCallNotes    *string
	CreatedAt             time.Time
	LastMessageAt         time.Time
}

// ConversationSummary is a Conversation enriched with chat-list fields.
type ConversationSummary struct {
	Conversation
	LastMessage string
	UnreadCount int
}

// Message is one inbound or outbound message on a conversation.
// MessageID holds the provider id of an inbound message; WAMessageID holds
// the provider-assigned id of an outbound send and is the key later status
// callbacks reconcile against.
type Message struct {
	ID              string
	Phone           string
	Body            string
	Direction       string
	Type            string
	IsRead          bool
	Status          string
	StatusTimestamp *time.Time
	MessageID       *string
	WAMessageID     *string
	SentBy          *string
	Timestamp       time.Time
}

// Note is one free-form note attached to a conversation.
type Note struct {
	ID        string
	Phone     string
	Text      string
	AddedBy   string
	CreatedAt time.Time
}

// ActivityEntry is one append-only audit record.
type ActivityEntry struct {
	ID        string
	Action    string
	Actor     string
	Phone     string
	Detail    string
	Outcome   string
	CreatedAt time.Time
}

// ActivityFilter narrows activity log listings. Zero values match all.
type ActivityFilter struct {
	Actor  string
	Phone  string
	Action string
	Limit  int
}

// ReferralStat aggregates conversations per referrer.
type ReferralStat struct {
	ReferredBy      string
	TotalReferred   int
	SubscribedCount int
}
