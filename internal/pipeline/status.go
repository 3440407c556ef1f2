package pipeline

import (
	"context"
	"log/slog"

	"faff-crm/internal/metrics"
	"faff-crm/internal/realtime"
	"faff-crm/internal/repo"
	"faff-crm/internal/webhook"
)

// Reconciler applies delivery/read/failed status callbacks to previously
// persisted outbound messages, keyed by provider message id.
type Reconciler struct {
	store       repo.Store
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewReconciler wires the status reconciliation pipeline.
func NewReconciler(store repo.Store, broadcaster Broadcaster, metricRegistry *metrics.Metrics, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:       store,
		broadcaster: broadcaster,
		metrics:     metricRegistry,
		logger:      logger.With("component", "reconcile"),
	}
}

// Process applies each status event independently. One event's failure
// never aborts its siblings; an event whose provider id matches no stored
// message is skipped without fabricating a record.
func (p *Reconciler) Process(ctx context.Context, events []webhook.StatusEvent) {
	for _, event := range events {
		updated, err := p.store.ApplyStatusUpdate(ctx, event.ProviderID, event.Status, event.Timestamp)
		if err != nil {
			p.logger.Error("status update failed", "provider_id", event.ProviderID, "error", err)
			if p.metrics != nil {
				p.metrics.Errors.WithLabelValues("reconcile").Inc()
			}
			continue
		}
		if updated == nil {
			p.logger.Info("no stored message for status event", "provider_id", event.ProviderID, "status", event.Status)
			continue
		}

		if p.metrics != nil {
			p.metrics.StatusUpdates.WithLabelValues(event.Status).Inc()
		}
		p.broadcaster.Broadcast(realtime.MessageStatus(updated.ID, event.ProviderID, event.Recipient, event.Status, event.Timestamp))
	}
}
