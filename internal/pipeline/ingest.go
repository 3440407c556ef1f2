package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"faff-crm/internal/metrics"
	"faff-crm/internal/realtime"
	"faff-crm/internal/reply"
	"faff-crm/internal/repo"
	"faff-crm/internal/webhook"
	"faff-crm/internal/whatsapp"
)

// Ingestor runs the message ingestion pipeline: persist the inbound
// record, drive the reply engine, send and persist the auto-reply, keep
// the conversation row current and emit realtime events.
type Ingestor struct {
	store       repo.Store
	channel     Channel
	broadcaster Broadcaster
	dedup       DedupCache
	dedupTTL    time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewIngestor wires the ingestion pipeline. The dedup cache may be nil,
// in which case redelivered webhooks are processed again.
func NewIngestor(store repo.Store, channel Channel, broadcaster Broadcaster, dedup DedupCache, dedupTTL time.Duration, metricRegistry *metrics.Metrics, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		store:       store,
		channel:     channel,
		broadcaster: broadcaster,
		dedup:       dedup,
		dedupTTL:    dedupTTL,
		metrics:     metricRegistry,
		logger:      logger.With("component", "ingest"),
	}
}

// Process ingests one classified inbound message. The conversation is
// re-read from the store on every invocation; concurrent deliveries for
// the same address are resolved by the store's atomic insert-if-absent.
func (p *Ingestor) Process(ctx context.Context, msg webhook.InboundMessage) error {
	if p.dedup != nil && msg.ProviderID != "" {
		first, err := p.dedup.MarkSeen(ctx, msg.ProviderID, p.dedupTTL)
		if err != nil {
			p.logger.Warn("dedup cache unavailable, processing anyway", "error", err)
		} else if !first {
			p.logger.Info("skipping redelivered message", "provider_id", msg.ProviderID)
			return nil
		}
	}

	_, err := p.store.GetConversation(ctx, msg.Phone)
	isNew := errors.Is(err, repo.ErrNotFound)
	if err != nil && !isNew {
		return fmt.Errorf("lookup conversation: %w", err)
	}

	// The inbound record is persisted unconditionally; the audit trail
	// must exist even when the funnel drops the message.
	providerID := msg.ProviderID
	inbound, err := p.store.InsertMessage(ctx, repo.Message{
		Phone:     msg.Phone,
		Body:      msg.Text,
		Direction: repo.DirectionInbound,
		Type:      msg.Type,
		IsRead:    false,
		Status:    repo.MessageStatusReceived,
		MessageID: &providerID,
		Timestamp: msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("persist inbound message: %w", err)
	}
	if p.metrics != nil {
		p.metrics.InboundMessages.WithLabelValues(msg.Type).Inc()
	}

	decision, hasReply := reply.Decide(isNew, msg.Text, reply.ButtonID(msg.ButtonID))

	if isNew && hasReply {
		if err := p.createConversation(ctx, msg, decision); err != nil {
			return err
		}
	}
	if !isNew {
		if err := p.store.TouchConversation(ctx, msg.Phone, msg.Timestamp); err != nil {
			p.logger.Error("touch conversation failed", "phone", msg.Phone, "error", err)
		}
	}

	if hasReply {
		p.sendReply(ctx, msg.Phone, decision)
	}

	p.broadcastMessage(inbound)
	return nil
}

func (p *Ingestor) createConversation(ctx context.Context, msg webhook.InboundMessage, decision reply.Decision) error {
	conv := repo.Conversation{
		Phone:         msg.Phone,
		Name:          msg.ContactName,
		Status:        repo.StatusPriority,
		LastMessageAt: msg.Timestamp,
	}
	if decision.ReferredBy != "" {
		referrer := decision.ReferredBy
		conv.ReferredBy = &referrer
	}

	created, err := p.store.CreateConversationIfAbsent(ctx, conv)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	if !created {
		// A concurrent delivery for the same brand-new address won the
		// insert; its referred_by attribution stands.
		p.logger.Info("conversation already created concurrently", "phone", msg.Phone)
	}
	return nil
}

// sendReply delivers the auto-reply and persists the outbound record.
// Send failures are recorded as status=failed and never abort ingestion;
// the webhook endpoint must still acknowledge the upstream.
func (p *Ingestor) sendReply(ctx context.Context, phone string, decision reply.Decision) {
	buttons := make([]whatsapp.Button, 0, len(decision.Buttons))
	for _, b := range decision.Buttons {
		buttons = append(buttons, whatsapp.Button{ID: string(b.ID), Title: b.Title})
	}

	status := repo.MessageStatusSent
	var waMessageID *string
	result, err := p.channel.Send(ctx, phone, decision.Text, buttons)
	if err != nil {
		p.logger.Warn("reply send failed", "phone", phone, "error", err)
		status = repo.MessageStatusFailed
	} else {
		id := result.MessageID
		waMessageID = &id
	}
	if p.metrics != nil {
		p.metrics.OutboundMessages.WithLabelValues(status).Inc()
	}

	messageType := "text"
	if len(buttons) > 0 {
		messageType = "interactive"
	}
	outbound, err := p.store.InsertMessage(ctx, repo.Message{
		Phone:       phone,
		Body:        decision.Text,
		Direction:   repo.DirectionOutbound,
		Type:        messageType,
		IsRead:      true,
		Status:      status,
		WAMessageID: waMessageID,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		p.logger.Error("persist outbound message failed", "phone", phone, "error", err)
		return
	}

	p.broadcastMessage(outbound)
}

func (p *Ingestor) broadcastMessage(msg *repo.Message) {
	waID := ""
	if msg.WAMessageID != nil {
		waID = *msg.WAMessageID
	}
	p.broadcaster.Broadcast(realtime.NewMessage(msg.Phone, msg.Body, msg.Direction, msg.Timestamp, msg.ID, waID))
}
