package reply

import "testing"

func TestDecideNewConversationTrigger(t *testing.T) {
	decision, ok := Decide(true, "Hi faff, I'd like some help", ButtonNone)
	if !ok {
		t.Fatal("expected a welcome reply")
	}
	if len(decision.Buttons) != 2 {
		t.Fatalf("expected 2 buttons, got %d", len(decision.Buttons))
	}
	if decision.Buttons[0].ID != ButtonKnowMore || decision.Buttons[1].ID != ButtonOnboardDirect {
		t.Fatalf("unexpected button set: %+v", decision.Buttons)
	}
	if decision.ReferredBy != "" {
		t.Fatalf("expected no referral, got %q", decision.ReferredBy)
	}
}

func TestDecideNewConversationExtractsReferral(t *testing.T) {
	decision, ok := Decide(true, "hi faff, Referred By Jane.", ButtonNone)
	if !ok {
		t.Fatal("expected a welcome reply")
	}
	if decision.ReferredBy != "Jane" {
		t.Fatalf("expected referral Jane, got %q", decision.ReferredBy)
	}
}

func TestDecideNewConversationNoTrigger(t *testing.T) {
	if _, ok := Decide(true, "hello there", ButtonNone); ok {
		t.Fatal("non-triggering first message must produce no reply")
	}
}

func TestDecideButtonTable(t *testing.T) {
	cases := []struct {
		button  ButtonID
		buttons []ButtonID
	}{
		{ButtonKnowMore, []ButtonID{ButtonStartTrial, ButtonPricing}},
		{ButtonOnboardDirect, nil},
		{ButtonStartTrial, nil},
		{ButtonPricing, []ButtonID{ButtonStartTrial, ButtonContactSales}},
	}

	for _, tc := range cases {
		decision, ok := Decide(false, "Button: tapped", tc.button)
		if !ok {
			t.Fatalf("expected reply for button %s", tc.button)
		}
		if decision.Text == "" {
			t.Fatalf("expected reply text for button %s", tc.button)
		}
		if len(decision.Buttons) != len(tc.buttons) {
			t.Fatalf("button %s: expected %d follow-up buttons, got %d", tc.button, len(tc.buttons), len(decision.Buttons))
		}
		for i, id := range tc.buttons {
			if decision.Buttons[i].ID != id {
				t.Fatalf("button %s: expected follow-up %s at %d, got %s", tc.button, id, i, decision.Buttons[i].ID)
			}
		}
	}
}

func TestDecideUnknownButtonIsSilent(t *testing.T) {
	if _, ok := Decide(false, "Button: mystery", ButtonID("mystery")); ok {
		t.Fatal("unknown button id must produce no reply")
	}
}

func TestDecideExistingPlainTextIsSilent(t *testing.T) {
	if _, ok := Decide(false, "hi faff again", ButtonNone); ok {
		t.Fatal("plain text on an existing conversation must produce no reply")
	}
}

func TestExtractReferralTrimsTrailingPeriod(t *testing.T) {
	cases := map[string]string{
		"hi faff referred by Bob":        "Bob",
		"hi faff REFERRED BY  Ana Lima.": "Ana Lima",
		"hi faff":                        "",
	}
	for in, want := range cases {
		if got := extractReferral(in); got != want {
			t.Fatalf("extractReferral(%q) = %q, want %q", in, got, want)
		}
	}
}
