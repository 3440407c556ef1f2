package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(Config{
		BaseURL: server.URL,
		Token:   "test-token",
		PhoneID: "555",
		Timeout: 2 * time.Second,
	}, logger, nil)
}

func TestClientSendText(t *testing.T) {
	var captured sendRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/555/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "wamid.sent.1"}},
		})
	})

	result, err := client.Send(context.Background(), "919876543210", "hello", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.MessageID != "wamid.sent.1" {
		t.Errorf("message id = %q", result.MessageID)
	}
	if captured.Type != "text" || captured.Text == nil || captured.Text.Body != "hello" {
		t.Errorf("request = %+v", captured)
	}
}

func TestClientSendInteractive(t *testing.T) {
	var captured sendRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "wamid.sent.2"}},
		})
	})

	buttons := []Button{{ID: "know_more", Title: "Know more"}}
	if _, err := client.Send(context.Background(), "919876543210", "pick one", buttons); err != nil {
		t.Fatalf("send: %v", err)
	}
	if captured.Type != "interactive" || captured.Interactive == nil {
		t.Fatalf("request = %+v", captured)
	}
	if captured.Interactive.Body.Text != "pick one" {
		t.Errorf("body = %q", captured.Interactive.Body.Text)
	}
	if len(captured.Interactive.Action.Buttons) != 1 || captured.Interactive.Action.Buttons[0].Reply.ID != "know_more" {
		t.Errorf("buttons = %+v", captured.Interactive.Action.Buttons)
	}
}

func TestClientSendAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 131026, "message": "recipient not on whatsapp"},
		})
	})

	if _, err := client.Send(context.Background(), "919876543210", "hello", nil); err == nil {
		t.Fatal("expected an error for the api error envelope")
	}
}

func TestClientSendEmptyAck(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	if _, err := client.Send(context.Background(), "919876543210", "hello", nil); err == nil {
		t.Fatal("expected an error when no message id is returned")
	}
}
