package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"faff-crm/internal/realtime"
	"faff-crm/internal/repo"
	"faff-crm/internal/whatsapp"

	"github.com/google/uuid"
)

// Inviter schedules external calendar invites for booked calls. The
// default implementation only logs; deployments can inject a real
// calendar integration.
type Inviter interface {
	Invite(ctx context.Context, phone string, at time.Time, notes string) error
}

// LogInviter records invite requests without sending anything.
type LogInviter struct {
	Logger *slog.Logger
}

func (l LogInviter) Invite(ctx context.Context, phone string, at time.Time, notes string) error {
	l.Logger.Info("calendar invite requested", "phone", phone, "at", at, "notes", notes)
	return nil
}

const detachedWriteTimeout = 10 * time.Second

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.deps.Store.ListConversations(r.Context())
	if err != nil {
		s.logger.Error("list conversations", "error", err)
		s.metrics.Errors.WithLabelValues("api").Inc()
		writeError(w, http.StatusInternalServerError, "failed to load chats")
		return
	}

	out := make([]map[string]any, 0, len(chats))
	for _, c := range chats {
		out = append(out, conversationJSON(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	phone := r.PathValue("phone")
	if phone == "" {
		writeError(w, http.StatusBadRequest, "phone is required")
		return
	}

	msgs, err := s.deps.Store.ListMessages(r.Context(), phone)
	if err != nil {
		s.logger.Error("list messages", "phone", phone, "error", err)
		s.metrics.Errors.WithLabelValues("api").Inc()
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	// Opening a chat marks its inbound messages read.
	if err := s.deps.Store.MarkInboundRead(r.Context(), phone); err != nil {
		s.logger.Warn("mark read", "phone", phone, "error", err)
	}

	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageJSON(m))
	}
	writeJSON(w, http.StatusOK, out)
}

type sendMessageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	SentBy  string `json:"sentBy"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Phone == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "phone and message are required")
		return
	}

	result, err := s.deps.Channel.Send(r.Context(), req.Phone, req.Message, nil)
	if err != nil {
		s.logger.Error("operator send failed", "phone", req.Phone, "error", err)
		s.metrics.Errors.WithLabelValues("api").Inc()
		writeError(w, http.StatusBadRequest, "failed to send message")
		return
	}

	tempID := uuid.NewString()

	// Persistence and fan-out happen off the request path so the
	// dashboard gets its acknowledgment as soon as the provider accepts.
	go s.persistOperatorMessage(req, result, tempID)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"whatsappMessageId": result.MessageID,
		"tempId":            tempID,
	})
}

func (s *Server) persistOperatorMessage(req sendMessageRequest, result *whatsapp.SendResult, tempID string) {
	ctx, cancel := context.WithTimeout(context.Background(), detachedWriteTimeout)
	defer cancel()

	now := time.Now().UTC()
	sentBy := req.SentBy
	if sentBy == "" {
		sentBy = "agent"
	}

	waID := result.MessageID
	stored, err := s.deps.Store.InsertMessage(ctx, repo.Message{
		Phone:       req.Phone,
		Body:        req.Message,
		Direction:   repo.DirectionOutbound,
		Type:        "text",
		IsRead:      true,
		Status:      repo.MessageStatusSent,
		WAMessageID: &waID,
		SentBy:      &sentBy,
		Timestamp:   now,
	})
	if err != nil {
		s.logger.Error("persist operator message", "phone", req.Phone, "error", err)
		s.metrics.Errors.WithLabelValues("api").Inc()
		return
	}

	if err := s.deps.Store.TouchConversation(ctx, req.Phone, now); err != nil {
		s.logger.Warn("touch conversation", "phone", req.Phone, "error", err)
	}

	if err := s.deps.Store.AppendActivity(ctx, repo.ActivityEntry{
		Action: "send_message",
		Actor:  sentBy,
		Phone:  req.Phone,
		Detail: "operator message sent",
	}); err != nil {
		s.logger.Warn("append activity", "error", err)
	}

	if s.deps.Hub != nil {
		s.deps.Hub.Broadcast(realtime.NewMessage(req.Phone, req.Message, repo.DirectionOutbound, stored.Timestamp, tempID, waID))
	}
}

type updateStatusRequest struct {
	Phone  string `json:"phone"`
	Status string `json:"status"`
	Actor  string `json:"actor"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Phone == "" || req.Status == "" {
		writeError(w, http.StatusBadRequest, "phone and status are required")
		return
	}

	if err := s.deps.Store.UpdateConversationStatus(r.Context(), req.Phone, req.Status); err != nil {
		if err == repo.ErrNotFound {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("update status", "phone", req.Phone, "error", err)
		s.metrics.Errors.WithLabelValues("api").Inc()
		writeError(w, http.StatusInternalServerError, "failed to update status")
		return
	}

	s.appendActivity(r.Context(), "update_status", req.Actor, req.Phone, "status set to "+req.Status)

	if s.deps.Hub != nil {
		s.deps.Hub.Broadcast(realtime.UserStatus(req.Phone, req.Status))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type updateSubscriptionRequest struct {
	Phone  string `json:"phone"`
	Status string `json:"subscriptionStatus"`
	Actor  string `json:"actor"`
}

func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	var req updateSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Phone == "" || req.Status == "" {
		writeError(w, http.StatusBadRequest, "phone and subscriptionStatus are required")
		return
	}

	var startedAt *time.Time
	if req.Status == "active" {
		now := time.Now().UTC()
		startedAt = &now
	}

	if err := s.deps.Store.UpdateSubscription(r.Context(), req.Phone, req.Status, startedAt); err != nil {
		if err == repo.ErrNotFound {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("update subscription", "phone", req.Phone, "error", err)
		s.metrics.Errors.WithLabelValues("api").Inc()
		writeError(w, http.StatusInternalServerError, "failed to update subscription")
		return
	}

	s.appendActivity(r.Context(), "update_subscription", req.Actor, req.Phone, "subscription set to "+req.Status)

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	phone := r.PathValue("phone")
	notes, err := s.deps.Store.ListNotes(r.Context(), phone)
	if err != nil {
		s.logger.Error("list notes", "phone", phone, "error", err)
		s.metrics.Errors.WithLabelValues("api").Inc()
		writeError(w, http.StatusInternalServerError, "failed to load notes")
		return
	}
	writeJSON(w, http.StatusOK, notesJSON(notes))
}

type addNoteRequest struct {
	Note    string `json:"note"`
	AddedBy string `json:"addedBy"`
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	phone := r.PathValue("phone")
	var req addNoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Note) == "" {
		writeError(w, http.StatusBadRequest, "note text is required")
		return
	}
	addedBy := req.AddedBy
	if addedBy == "" {
		addedBy = "agent"
	}

	if _, err := s.deps.Store.AppendNote(r.Context(), phone, strings.TrimSpace(req.Note), addedBy); err != nil {
		s.logger.Error("append note", "phone", phone, "error", err)
		s.metrics.Errors.WithLabelValues("api").Inc()
		writeError(w, http.StatusInternalServerError, "failed to save note")
		return
	}

	notes, err := s.deps.Store.ListNotes(r.Context(), phone)
	if err != nil {
		s.logger.Error("list notes after append", "phone", phone, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load notes")
		return
	}

	s.appendActivity(r.Context(), "add_note", addedBy, phone, "note added")

	if s.deps.Hub != nil {
		s.deps.Hub.Broadcast(realtime.NotesUpdated(phone, notesJSON(notes)))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "notes": notesJSON(notes)})
}

func (s *Server) handleActivityLogs(w http.ResponseWriter, r *http.Request) {
	filter := repo.ActivityFilter{
		Actor:  r.URL.Query().Get("actor"),
		Phone:  r.URL.Query().Get("phone"),
		Action: r.URL.Query().Get("action"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	entries, err := s.deps.Store.ListActivity(r.Context(), filter)
	if err != nil {
		s.logger.Error("list activity", "error", err)
		s.metrics.Errors.WithLabelValues("api").Inc()
		writeError(w, http.StatusInternalServerError, "failed to load activity logs")
		return
	}

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":        e.ID,
			"action":    e.Action,
			"actor":     e.Actor,
			"phone":     e.Phone,
			"detail":    e.Detail,
			"outcome":   e.Outcome,
			"timestamp": e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReferrals(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Store.ReferralStats(r.Context())
	if err != nil {
		s.logger.Error("referral stats", "error", err)
		s.metrics.Errors.WithLabelValues("api").Inc()
		writeError(w, http.StatusInternalServerError, "failed to load referrals")
		return
	}

	out := make([]map[string]any, 0, len(stats))
	for _, st := range stats {
		out = append(out, map[string]any{
			"referredBy":      st.ReferredBy,
			"totalReferred":   st.TotalReferred,
			"subscribedCount": st.SubscribedCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type scheduleCallRequest struct {
	Phone string `json:"phone"`
	Date  string `json:"date"`
	Notes string `json:"notes"`
	Actor string `json:"actor"`
}

func (s *Server) handleScheduleCall(w http.ResponseWriter, r *http.Request) {
	var req scheduleCallRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Phone == "" || req.Date == "" {
		writeError(w, http.StatusBadRequest, "phone and date are required")
		return
	}

	at, err := parseCallTime(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format")
		return
	}

	if err := s.deps.Store.ScheduleCall(r.Context(), req.Phone, at, req.Notes); err != nil {
		if err == repo.ErrNotFound {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("schedule call", "phone", req.Phone, "error", err)
		s.metrics.Errors.WithLabelValues("api").Inc()
		writeError(w, http.StatusInternalServerError, "failed to schedule call")
		return
	}

	confirmation := "Your onboarding call is scheduled for " + at.Format("Mon, 02 Jan 2006 at 3:04 PM MST") + ". We look forward to speaking with you!"
	if _, err := s.deps.Channel.Send(r.Context(), req.Phone, confirmation, nil); err != nil {
		s.logger.Warn("call confirmation send failed", "phone", req.Phone, "error", err)
	}

	if err := s.deps.Inviter.Invite(r.Context(), req.Phone, at, req.Notes); err != nil {
		s.logger.Warn("calendar invite failed", "phone", req.Phone, "error", err)
	}

	s.appendActivity(r.Context(), "schedule_call", req.Actor, req.Phone, "call scheduled for "+at.Format(time.RFC3339))

	if s.deps.Hub != nil {
		s.deps.Hub.Broadcast(realtime.UserStatus(req.Phone, repo.StatusCallScheduled))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "scheduledAt": at.Format(time.RFC3339)})
}

func (s *Server) appendActivity(ctx context.Context, action, actor, phone, detail string) {
	if actor == "" {
		actor = "agent"
	}
	if err := s.deps.Store.AppendActivity(ctx, repo.ActivityEntry{
		Action: action,
		Actor:  actor,
		Phone:  phone,
		Detail: detail,
	}); err != nil {
		s.logger.Warn("append activity", "action", action, "error", err)
	}
}

func parseCallTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"} {
		if at, err := time.Parse(layout, raw); err == nil {
			return at, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: time.RFC3339, Value: raw}
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(dst)
}

func conversationJSON(c repo.ConversationSummary) map[string]any {
	out := map[string]any{
		"phone":              c.Phone,
		"name":               c.Name,
		"status":             c.Status,
		"subscriptionStatus": c.SubscriptionStatus,
		"lastMessage":        c.LastMessage,
		"unreadCount":        c.UnreadCount,
		"createdAt":          c.CreatedAt.Format(time.RFC3339),
		"lastMessageAt":      c.LastMessageAt.Format(time.RFC3339),
	}
	if c.ReferredBy != nil {
		out["referredBy"] = *c.ReferredBy
	}
	if c.ScheduledCallAt != nil {
		out["scheduledCallAt"] = c.ScheduledCallAt.Format(time.RFC3339)
	}
	if c.ScheduledCallNotes != nil {
		out["scheduledCallNotes"] = *c.ScheduledCallNotes
	}
	return out
}

func messageJSON(m repo.Message) map[string]any {
	out := map[string]any{
		"id":        m.ID,
		"phone":     m.Phone,
		"message":   m.Body,
		"direction": m.Direction,
		"type":      m.Type,
		"isRead":    m.IsRead,
		"status":    m.Status,
		"timestamp": m.Timestamp.Format(time.RFC3339),
	}
	if m.MessageID != nil {
		out["messageId"] = *m.MessageID
	}
	if m.WAMessageID != nil {
		out["whatsappMessageId"] = *m.WAMessageID
	}
	if m.SentBy != nil {
		out["sentBy"] = *m.SentBy
	}
	if m.StatusTimestamp != nil {
		out["statusTimestamp"] = m.StatusTimestamp.Format(time.RFC3339)
	}
	return out
}

func notesJSON(notes []repo.Note) []map[string]any {
	out := make([]map[string]any, 0, len(notes))
	for _, n := range notes {
		out = append(out, map[string]any{
			"id":        n.ID,
			"note":      n.Text,
			"addedBy":   n.AddedBy,
			"timestamp": n.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}
