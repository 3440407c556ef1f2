package pipeline

import (
	"context"
	"testing"
	"time"

	"faff-crm/internal/realtime"
	"faff-crm/internal/repo"
	"faff-crm/internal/webhook"
)

func seedOutbound(store *fakeStore, phone, waMessageID string) {
	id := waMessageID
	_, _ = store.InsertMessage(context.Background(), repo.Message{
		Phone:       phone,
		Body:        "hello",
		Direction:   repo.DirectionOutbound,
		Type:        "text",
		IsRead:      true,
		Status:      repo.MessageStatusSent,
		WAMessageID: &id,
		Timestamp:   time.Unix(1700000000, 0).UTC(),
	})
}

func TestReconcileAppliesStatus(t *testing.T) {
	store := newFakeStore()
	seedOutbound(store, "919190000001", "wamid.abc123")
	broadcaster := &fakeBroadcaster{}
	reconciler := NewReconciler(store, broadcaster, nil, testLogger())

	at := time.Unix(1700000100, 0).UTC()
	reconciler.Process(context.Background(), []webhook.StatusEvent{
		{ProviderID: "wamid.abc123", Status: repo.MessageStatusDelivered, Recipient: "919190000001", Timestamp: at},
	})

	msgs := store.byDirection(repo.DirectionOutbound)
	if msgs[0].Status != repo.MessageStatusDelivered {
		t.Errorf("status = %q, want delivered", msgs[0].Status)
	}
	if msgs[0].StatusTimestamp == nil || !msgs[0].StatusTimestamp.Equal(at) {
		t.Errorf("status timestamp = %v", msgs[0].StatusTimestamp)
	}
	events := broadcaster.named(realtime.EventMessageStatus)
	if len(events) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(events))
	}
	payload, ok := events[0].Data.(realtime.MessageStatusPayload)
	if !ok {
		t.Fatalf("payload type = %T", events[0].Data)
	}
	if payload.WAMessageID != "wamid.abc123" || payload.Status != repo.MessageStatusDelivered {
		t.Errorf("payload = %+v", payload)
	}
}

func TestReconcileLastWriteWins(t *testing.T) {
	store := newFakeStore()
	seedOutbound(store, "919190000001", "wamid.abc123")
	reconciler := NewReconciler(store, &fakeBroadcaster{}, nil, testLogger())

	// Out-of-order callbacks: read lands before delivered. The later
	// write stands; there is no status ordering enforcement.
	reconciler.Process(context.Background(), []webhook.StatusEvent{
		{ProviderID: "wamid.abc123", Status: repo.MessageStatusRead, Timestamp: time.Unix(1700000200, 0).UTC()},
		{ProviderID: "wamid.abc123", Status: repo.MessageStatusDelivered, Timestamp: time.Unix(1700000100, 0).UTC()},
	})

	msgs := store.byDirection(repo.DirectionOutbound)
	if msgs[0].Status != repo.MessageStatusDelivered {
		t.Errorf("status = %q, want delivered (last write wins)", msgs[0].Status)
	}
}

func TestReconcileUnknownIDIsNoOp(t *testing.T) {
	store := newFakeStore()
	broadcaster := &fakeBroadcaster{}
	reconciler := NewReconciler(store, broadcaster, nil, testLogger())

	reconciler.Process(context.Background(), []webhook.StatusEvent{
		{ProviderID: "wamid.ghost", Status: repo.MessageStatusRead, Timestamp: time.Unix(1700000100, 0).UTC()},
	})

	if len(store.messages) != 0 {
		t.Error("no record should be fabricated for an unknown provider id")
	}
	if len(broadcaster.events) != 0 {
		t.Error("no broadcast for an unmatched status event")
	}
}

func TestReconcileEventFailureDoesNotAbortSiblings(t *testing.T) {
	store := newFakeStore()
	seedOutbound(store, "919190000001", "wamid.ok")
	broadcaster := &fakeBroadcaster{}
	reconciler := NewReconciler(store, broadcaster, nil, testLogger())

	// First event misses, second applies.
	reconciler.Process(context.Background(), []webhook.StatusEvent{
		{ProviderID: "wamid.ghost", Status: repo.MessageStatusRead, Timestamp: time.Unix(1700000100, 0).UTC()},
		{ProviderID: "wamid.ok", Status: repo.MessageStatusRead, Timestamp: time.Unix(1700000100, 0).UTC()},
	})

	msgs := store.byDirection(repo.DirectionOutbound)
	if msgs[0].Status != repo.MessageStatusRead {
		t.Errorf("status = %q, want read", msgs[0].Status)
	}
	if len(broadcaster.named(realtime.EventMessageStatus)) != 1 {
		t.Errorf("broadcasts = %d, want 1", len(broadcaster.events))
	}
}

func TestReconcileIdempotent(t *testing.T) {
	store := newFakeStore()
	seedOutbound(store, "919190000001", "wamid.abc123")
	reconciler := NewReconciler(store, &fakeBroadcaster{}, nil, testLogger())

	at := time.Unix(1700000100, 0).UTC()
	events := []webhook.StatusEvent{
		{ProviderID: "wamid.abc123", Status: repo.MessageStatusDelivered, Timestamp: at},
	}
	reconciler.Process(context.Background(), events)
	reconciler.Process(context.Background(), events)

	msgs := store.byDirection(repo.DirectionOutbound)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, reconciliation must never create records", len(msgs))
	}
	if msgs[0].Status != repo.MessageStatusDelivered {
		t.Errorf("status = %q", msgs[0].Status)
	}
}
