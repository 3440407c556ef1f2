package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"faff-crm/internal/realtime"
	"faff-crm/internal/repo"
	"faff-crm/internal/whatsapp"
)

// fakeStore is an in-memory repo.Store covering the methods the
// pipelines touch. The embedded nil interface panics on anything else.
type fakeStore struct {
	repo.Store

	mu            sync.Mutex
	conversations map[string]repo.Conversation
	messages      []repo.Message
	touched       map[string]time.Time
	nextID        int

	insertErr error
	applyErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]repo.Conversation),
		touched:       make(map[string]time.Time),
	}
}

func (s *fakeStore) GetConversation(_ context.Context, phone string) (*repo.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[phone]
	if !ok {
		return nil, repo.ErrNotFound
	}
	out := conv
	return &out, nil
}

func (s *fakeStore) CreateConversationIfAbsent(_ context.Context, conv repo.Conversation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conv.Phone]; ok {
		return false, nil
	}
	s.nextID++
	conv.ID = fmt.Sprintf("c-%d", s.nextID)
	s.conversations[conv.Phone] = conv
	return true, nil
}

func (s *fakeStore) TouchConversation(_ context.Context, phone string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[phone] = at
	return nil
}

func (s *fakeStore) InsertMessage(_ context.Context, msg repo.Message) (*repo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	s.nextID++
	msg.ID = fmt.Sprintf("m-%d", s.nextID)
	s.messages = append(s.messages, msg)
	out := msg
	return &out, nil
}

func (s *fakeStore) ApplyStatusUpdate(_ context.Context, waMessageID, status string, at time.Time) (*repo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	for i := range s.messages {
		if s.messages[i].WAMessageID != nil && *s.messages[i].WAMessageID == waMessageID {
			s.messages[i].Status = status
			ts := at
			s.messages[i].StatusTimestamp = &ts
			out := s.messages[i]
			return &out, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) byDirection(direction string) []repo.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repo.Message
	for _, m := range s.messages {
		if m.Direction == direction {
			out = append(out, m)
		}
	}
	return out
}

type fakeChannel struct {
	mu    sync.Mutex
	sends []sentMessage
	err   error
}

type sentMessage struct {
	To      string
	Body    string
	Buttons []whatsapp.Button
}

func (c *fakeChannel) Send(_ context.Context, to, body string, buttons []whatsapp.Button) (*whatsapp.SendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, sentMessage{To: to, Body: body, Buttons: buttons})
	if c.err != nil {
		return nil, c.err
	}
	return &whatsapp.SendResult{MessageID: fmt.Sprintf("wamid.out.%d", len(c.sends))}, nil
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (b *fakeBroadcaster) Broadcast(event realtime.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *fakeBroadcaster) named(name string) []realtime.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []realtime.Event
	for _, e := range b.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (d *fakeDedup) MarkSeen(_ context.Context, messageID string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[messageID] {
		return false, nil
	}
	d.seen[messageID] = true
	return true, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errUnavailable = errors.New("unavailable")
