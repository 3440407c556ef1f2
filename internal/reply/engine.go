// Package reply implements the deterministic auto-reply decision table.
// Decisions are a pure function of (new-conversation, text, button id);
// no state is stored between calls.
package reply

import "strings"

// ButtonID enumerates the quick-reply buttons the engine understands.
// Ids outside this set yield no reply, never an error.
type ButtonID string

const (
	ButtonNone          ButtonID = ""
	ButtonKnowMore      ButtonID = "know_more"
	ButtonOnboardDirect ButtonID = "onboard_direct"
	ButtonStartTrial    ButtonID = "start_trial"
	ButtonPricing       ButtonID = "pricing"
	ButtonContactSales  ButtonID = "contact_sales"
)

// Button is one quick-reply choice attached to a reply.
type Button struct {
	ID    ButtonID
	Title string
}

// Decision is the outcome of the engine: the reply text, the buttons to
// attach, and the referral attribution extracted from a trigger message.
type Decision struct {
	Text       string
	Buttons    []Button
	ReferredBy string
}

const referralMarker = "referred by"

const welcomeText = "Hey there! I'm faff!\n" +
	"We're an affordable personal assistant service for people who value their time. " +
	"You can hire us and delegate your personal chores over WhatsApp.\n\n" +
	"How would you like to proceed?\nChoose an option below"

const knowMoreText = "We offer a wide range of services:\n\n" +
	"📱 Digital Tasks\n• Online research & bookings\n• Email management\n• Social media handling\n\n" +
	"🏠 Personal Errands\n• Shopping assistance\n• Bill payments\n• Appointment scheduling\n\n" +
	"💼 Professional Support\n• Document preparation\n• Travel planning\n• Event coordination\n\n" +
	"All for just ₹999/month! Ready to get started?"

const onboardDirectText = "Great! Let's get you started.\n\n" +
	"Please share your email address to create your account and start your free trial."

const startTrialText = "Excellent choice! 🎉\n\n" +
	"Your 7-day free trial has been activated.\n\n" +
	"To get started:\n1. Save this number\n2. Send us your first task\n3. We'll handle it within 2 hours\n\n" +
	"What would you like help with today?"

const pricingText = "Our Pricing Plans:\n\n" +
	"📌 Basic Plan - ₹999/month\n• 10 tasks per month\n• 2-hour response time\n• WhatsApp support\n\n" +
	"⭐ Premium Plan - ₹2499/month\n• Unlimited tasks\n• 30-min response time\n• Priority support\n• Dedicated assistant\n\n" +
	"💎 Business Plan - ₹4999/month\n• Everything in Premium\n• Team collaboration\n• API access\n• Custom integrations\n\n" +
	"Which plan interests you?"

// buttonReplies maps a tapped button on an existing conversation to the
// next reply. An id missing from the table is the explicit unhandled arm.
var buttonReplies = map[ButtonID]Decision{
	ButtonKnowMore: {
		Text: knowMoreText,
		Buttons: []Button{
			{ID: ButtonStartTrial, Title: "Start Free Trial"},
			{ID: ButtonPricing, Title: "View Pricing"},
		},
	},
	ButtonOnboardDirect: {
		Text: onboardDirectText,
	},
	ButtonStartTrial: {
		Text: startTrialText,
	},
	ButtonPricing: {
		Text: pricingText,
		Buttons: []Button{
			{ID: ButtonStartTrial, Title: "Start Free Trial"},
			{ID: ButtonContactSales, Title: "Contact Sales"},
		},
	},
}

// Decide maps the incoming content to a reply. The boolean reports whether
// a reply should be sent at all; a new conversation without the greeting
// trigger produces none, which in turn means no conversation is created.
func Decide(isNew bool, text string, buttonID ButtonID) (Decision, bool) {
	if isNew {
		return decideNew(text)
	}
	if buttonID == ButtonNone {
		return Decision{}, false
	}
	decision, ok := buttonReplies[buttonID]
	return decision, ok
}

func decideNew(text string) (Decision, bool) {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "hi") || !strings.Contains(lower, "faff") {
		return Decision{}, false
	}

	return Decision{
		Text: welcomeText,
		Buttons: []Button{
			{ID: ButtonKnowMore, Title: "Know more"},
			{ID: ButtonOnboardDirect, Title: "Onboard me directly"},
		},
		ReferredBy: extractReferral(text),
	}, true
}

// extractReferral pulls the trailing attribution after the referral marker
// phrase. Matching is case-insensitive; the result is trimmed with a
// trailing period stripped. Empty when no marker is present.
func extractReferral(text string) string {
	idx := strings.Index(strings.ToLower(text), referralMarker)
	if idx < 0 {
		return ""
	}
	referrer := text[idx+len(referralMarker):]
	referrer = strings.TrimSpace(referrer)
	referrer = strings.TrimSuffix(referrer, ".")
	return strings.TrimSpace(referrer)
}
