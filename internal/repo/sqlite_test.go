package repo

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"faff-crm/migrations"
)

func newTestStore(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	store, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "test.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.RunMigrations(ctx, migrations.Files); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func seedConversation(t *testing.T, store *SQLiteRepository, phone string) {
	t.Helper()
	created, err := store.CreateConversationIfAbsent(context.Background(), Conversation{
		Phone:         phone,
		Name:          "User " + phone[len(phone)-4:],
		Status:        StatusPriority,
		LastMessageAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	if !created {
		t.Fatalf("conversation %s already existed", phone)
	}
}

func TestCreateConversationIfAbsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jane := "Jane"
	created, err := store.CreateConversationIfAbsent(ctx, Conversation{
		Phone:         "919190000001",
		Name:          "User 0001",
		Status:        StatusPriority,
		ReferredBy:    &jane,
		LastMessageAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatal("first insert should report created")
	}

	// The second insert for the same phone must lose silently and leave
	// the original attribution intact.
	bob := "Bob"
	created, err = store.CreateConversationIfAbsent(ctx, Conversation{
		Phone:         "919190000001",
		Name:          "User 0001",
		Status:        StatusPriority,
		ReferredBy:    &bob,
		LastMessageAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatal("second insert should report not created")
	}

	conv, err := store.GetConversation(ctx, "919190000001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.ReferredBy == nil || *conv.ReferredBy != "Jane" {
		t.Errorf("referredBy = %v, want Jane", conv.ReferredBy)
	}
	if conv.ID == "" {
		t.Error("conversation id should be assigned")
	}
}

func TestGetConversationNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetConversation(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUnreadCountLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "919190000002")

	for i := 0; i < 3; i++ {
		providerID := "wamid.in." + string(rune('a'+i))
		if _, err := store.InsertMessage(ctx, Message{
			Phone:     "919190000002",
			Body:      "hello",
			Direction: DirectionInbound,
			Type:      "text",
			Status:    MessageStatusReceived,
			MessageID: &providerID,
			Timestamp: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("insert inbound: %v", err)
		}
	}
	waID := "wamid.out.1"
	if _, err := store.InsertMessage(ctx, Message{
		Phone:       "919190000002",
		Body:        "reply",
		Direction:   DirectionOutbound,
		Type:        "text",
		IsRead:      true,
		Status:      MessageStatusSent,
		WAMessageID: &waID,
		Timestamp:   time.Now().UTC(),
	}); err != nil {
		t.Fatalf("insert outbound: %v", err)
	}

	count, err := store.CountUnread(ctx, "919190000002")
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if count != 3 {
		t.Errorf("unread = %d, want 3; outbound records never count", count)
	}

	if err := store.MarkInboundRead(ctx, "919190000002"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	count, err = store.CountUnread(ctx, "919190000002")
	if err != nil {
		t.Fatalf("count unread after read: %v", err)
	}
	if count != 0 {
		t.Errorf("unread after read = %d, want 0", count)
	}
}

func TestApplyStatusUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "919190000003")

	waID := "wamid.abc123"
	if _, err := store.InsertMessage(ctx, Message{
		Phone:       "919190000003",
		Body:        "reply",
		Direction:   DirectionOutbound,
		Type:        "text",
		IsRead:      true,
		Status:      MessageStatusSent,
		WAMessageID: &waID,
		Timestamp:   time.Now().UTC(),
	}); err != nil {
		t.Fatalf("insert outbound: %v", err)
	}

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	updated, err := store.ApplyStatusUpdate(ctx, waID, MessageStatusDelivered, at)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if updated == nil {
		t.Fatal("expected the updated record")
	}
	if updated.Status != MessageStatusDelivered {
		t.Errorf("status = %q", updated.Status)
	}
	if updated.StatusTimestamp == nil || !updated.StatusTimestamp.Equal(at) {
		t.Errorf("status timestamp = %v", updated.StatusTimestamp)
	}

	// Re-applying the same event is a no-op beyond the write itself.
	again, err := store.ApplyStatusUpdate(ctx, waID, MessageStatusDelivered, at)
	if err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if again == nil || again.Status != MessageStatusDelivered {
		t.Errorf("re-apply result = %+v", again)
	}

	msgs, err := store.ListMessages(ctx, "919190000003")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("messages = %d, status updates must not create records", len(msgs))
	}
}

func TestApplyStatusUpdateUnknownID(t *testing.T) {
	store := newTestStore(t)
	updated, err := store.ApplyStatusUpdate(context.Background(), "wamid.ghost", MessageStatusRead, time.Now().UTC())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if updated != nil {
		t.Fatalf("updated = %+v, want nil for unknown id", updated)
	}
}

func TestNotesOrderedNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendNote(ctx, "919190000004", "first note", "agent"); err != nil {
		t.Fatalf("append: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := store.AppendNote(ctx, "919190000004", "second note", "agent"); err != nil {
		t.Fatalf("append: %v", err)
	}

	notes, err := store.ListNotes(ctx, "919190000004")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("notes = %d", len(notes))
	}
	if notes[0].Text != "second note" {
		t.Errorf("first listed = %q, want newest", notes[0].Text)
	}

	// Appending a note to an unseen phone creates the conversation stub.
	if _, err := store.GetConversation(ctx, "919190000004"); err != nil {
		t.Errorf("conversation stub: %v", err)
	}
}

func TestListConversationsSummaries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "919190000005")

	providerID := "wamid.in.z"
	if _, err := store.InsertMessage(ctx, Message{
		Phone:     "919190000005",
		Body:      "latest inbound",
		Direction: DirectionInbound,
		Type:      "text",
		Status:    MessageStatusReceived,
		MessageID: &providerID,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	summaries, err := store.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("summaries = %d", len(summaries))
	}
	if summaries[0].LastMessage != "latest inbound" {
		t.Errorf("lastMessage = %q", summaries[0].LastMessage)
	}
	if summaries[0].UnreadCount != 1 {
		t.Errorf("unreadCount = %d", summaries[0].UnreadCount)
	}
}

func TestReferralStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jane := "Jane"
	for _, phone := range []string{"919190000006", "919190000007"} {
		if _, err := store.CreateConversationIfAbsent(ctx, Conversation{
			Phone:         phone,
			Name:          "User",
			Status:        StatusPriority,
			ReferredBy:    &jane,
			LastMessageAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := store.UpdateSubscription(ctx, "919190000006", "active", nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	stats, err := store.ReferralStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("stats = %d", len(stats))
	}
	if stats[0].ReferredBy != "Jane" || stats[0].TotalReferred != 2 || stats[0].SubscribedCount != 1 {
		t.Errorf("stat = %+v", stats[0])
	}
}

func TestScheduleCall(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "919190000008")

	at := time.Date(2026, 9, 1, 15, 0, 0, 0, time.UTC)
	if err := store.ScheduleCall(ctx, "919190000008", at, "walk through onboarding"); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	conv, err := store.GetConversation(ctx, "919190000008")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.Status != StatusCallScheduled {
		t.Errorf("status = %q", conv.Status)
	}
	if conv.ScheduledCallAt == nil || !conv.ScheduledCallAt.Equal(at) {
		t.Errorf("scheduledCallAt = %v", conv.ScheduledCallAt)
	}

	if err := store.ScheduleCall(ctx, "ghost", at, ""); err != ErrNotFound {
		t.Errorf("missing conversation err = %v, want ErrNotFound", err)
	}
}
