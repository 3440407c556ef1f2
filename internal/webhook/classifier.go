// Package webhook receives WhatsApp Cloud API deliveries: it classifies
// raw payloads into typed events at the boundary and exposes the HTTP
// endpoint the provider calls.
package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"faff-crm/internal/whatsapp"
)

// StatusEvent is one delivery-lifecycle notification for a previously
// sent message.
type StatusEvent struct {
	ProviderID string
	Status     string
	Recipient  string
	Timestamp  time.Time
}

// InboundMessage is one user message extracted from a webhook delivery.
type InboundMessage struct {
	Phone       string
	ProviderID  string
	Timestamp   time.Time
	Text        string
	ButtonID    string
	Type        string
	ContactName string
}

// Result is the typed view of one webhook delivery. The upstream wire
// format can mix statuses and messages in one payload, so both fields are
// populated independently; nothing downstream touches the raw shape.
type Result struct {
	Statuses []StatusEvent
	Message  *InboundMessage
}

// HasStatuses reports whether the delivery carried any status list.
func (r Result) HasStatuses() bool {
	return len(r.Statuses) > 0
}

// Classify parses a raw webhook body. Malformed or unsupported payloads
// never fail; they classify to an empty Result.
func Classify(body []byte) Result {
	var payload whatsapp.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{}
	}

	return Result{
		Statuses: collectStatuses(&payload),
		Message:  classifyMessage(&payload),
	}
}

// collectStatuses walks every entry and change; a single delivery may
// batch statuses across entries. Events with unparseable timestamps are
// dropped individually so siblings still apply.
func collectStatuses(payload *whatsapp.WebhookPayload) []StatusEvent {
	var events []StatusEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, status := range change.Value.Statuses {
				ts, err := parseUnixSeconds(status.Timestamp)
				if err != nil {
					continue
				}
				events = append(events, StatusEvent{
					ProviderID: status.ID,
					Status:     status.Status,
					Recipient:  status.RecipientID,
					Timestamp:  ts,
				})
			}
		}
	}
	return events
}

func classifyMessage(payload *whatsapp.WebhookPayload) *InboundMessage {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			if len(value.Messages) == 0 {
				continue
			}
			msg := value.Messages[0]

			ts, err := parseUnixSeconds(msg.Timestamp)
			if err != nil {
				return nil
			}

			inbound := &InboundMessage{
				Phone:       msg.From,
				ProviderID:  msg.ID,
				Timestamp:   ts,
				Type:        msg.Type,
				ContactName: contactName(value.Contacts, msg.From),
			}

			switch msg.Type {
			case "text":
				if msg.Text != nil {
					inbound.Text = msg.Text.Body
				}
			case "interactive":
				if msg.Interactive != nil && msg.Interactive.Type == "button_reply" && msg.Interactive.ButtonReply != nil {
					inbound.Text = "Button: " + msg.Interactive.ButtonReply.Title
					inbound.ButtonID = msg.Interactive.ButtonReply.ID
				}
			default:
				// Unknown content types become a placeholder body rather
				// than a classification failure.
				inbound.Text = fmt.Sprintf("Unsupported message type: %s", msg.Type)
			}

			return inbound
		}
	}
	return nil
}

func contactName(contacts []whatsapp.Contact, phone string) string {
	if len(contacts) > 0 && contacts[0].Profile.Name != "" {
		return contacts[0].Profile.Name
	}
	suffix := phone
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return "User " + suffix
}

func parseUnixSeconds(raw string) (time.Time, error) {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return time.Unix(secs, 0).UTC(), nil
}
