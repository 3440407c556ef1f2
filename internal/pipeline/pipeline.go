// Package pipeline orchestrates webhook processing: message ingestion
// and delivery-status reconciliation over an injected store, notification
// channel and realtime broadcaster.
package pipeline

import (
	"context"
	"time"

	"faff-crm/internal/realtime"
	"faff-crm/internal/whatsapp"
)

// Channel sends an outbound message and returns the provider
// acknowledgment. Implementations must bound the call with a timeout
// shorter than the webhook caller's own.
type Channel interface {
	Send(ctx context.Context, to, body string, buttons []whatsapp.Button) (*whatsapp.SendResult, error)
}

// Broadcaster publishes realtime events to dashboard sessions,
// fire-and-forget.
type Broadcaster interface {
	Broadcast(event realtime.Event)
}

// DedupCache records provider message ids so redelivered webhooks can be
// skipped. Best effort: errors and cache misses both mean "process it".
type DedupCache interface {
	MarkSeen(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
}
