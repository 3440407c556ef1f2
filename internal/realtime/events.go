package realtime

import "time"

// Event names published to dashboard sessions.
const (
	EventNewMessage    = "new_message"
	EventMessageStatus = "message_status_update"
	EventUserStatus    = "user_status_update"
	EventNotesUpdated  = "notes_updated"
)

// Event is one realtime notification. Broadcasts are fire-and-forget to
// every connected session; there is no per-session filtering and no
// delivery guarantee.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// NewMessagePayload announces a persisted inbound or outbound message.
type NewMessagePayload struct {
	Phone       string `json:"phone"`
	Message     string `json:"message"`
	Direction   string `json:"direction"`
	Timestamp   string `json:"timestamp"`
	MessageID   string `json:"messageId,omitempty"`
	WAMessageID string `json:"whatsappMessageId,omitempty"`
}

// MessageStatusPayload announces a reconciled delivery status change.
type MessageStatusPayload struct {
	MessageID   string `json:"messageId"`
	WAMessageID string `json:"whatsappMessageId"`
	Phone       string `json:"phone"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
}

// UserStatusPayload announces a conversation funnel stage change.
type UserStatusPayload struct {
	Phone  string `json:"phone"`
	Status string `json:"status"`
}

// NotesPayload announces an updated notes list for a conversation.
type NotesPayload struct {
	Phone string `json:"phone"`
	Notes any    `json:"notes"`
}

// NewMessage builds a new_message event.
func NewMessage(phone, body, direction string, ts time.Time, messageID, waMessageID string) Event {
	return Event{
		Name: EventNewMessage,
		Data: NewMessagePayload{
			Phone:       phone,
			Message:     body,
			Direction:   direction,
			Timestamp:   ts.Format(time.RFC3339),
			MessageID:   messageID,
			WAMessageID: waMessageID,
		},
	}
}

// MessageStatus builds a message_status_update event.
func MessageStatus(messageID, waMessageID, phone, status string, ts time.Time) Event {
	return Event{
		Name: EventMessageStatus,
		Data: MessageStatusPayload{
			MessageID:   messageID,
			WAMessageID: waMessageID,
			Phone:       phone,
			Status:      status,
			Timestamp:   ts.Format(time.RFC3339),
		},
	}
}

// UserStatus builds a user_status_update event.
func UserStatus(phone, status string) Event {
	return Event{
		Name: EventUserStatus,
		Data: UserStatusPayload{Phone: phone, Status: status},
	}
}

// NotesUpdated builds a notes_updated event.
func NotesUpdated(phone string, notes any) Event {
	return Event{
		Name: EventNotesUpdated,
		Data: NotesPayload{Phone: phone, Notes: notes},
	}
}
