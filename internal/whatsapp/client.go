package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"faff-crm/internal/metrics"
)

// SendResult carries the provider acknowledgment for an outbound send.
type SendResult struct {
	MessageID string
}

// Client provides typed access to the WhatsApp Cloud API. Every send runs
// under the configured timeout, which must stay shorter than the webhook
// caller's own timeout.
type Client struct {
	logger  *slog.Logger
	baseURL string
	token   string
	phoneID string
	timeout time.Duration
	http    *http.Client
	metrics *metrics.Metrics
}

// Config holds WhatsApp Cloud API client configuration.
type Config struct {
	BaseURL string
	Token   string
	PhoneID string
	Timeout time.Duration
}

// NewClient creates a WhatsApp Cloud API client.
func NewClient(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "whatsapp"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		phoneID: cfg.PhoneID,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		metrics: metricRegistry,
	}
}

// Send delivers a text message, optionally decorated with quick-reply
// buttons, and returns the provider-assigned message id.
func (c *Client) Send(ctx context.Context, to, body string, buttons []Button) (*SendResult, error) {
	req := sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
	}
	if len(buttons) > 0 {
		actions := make([]sendButton, 0, len(buttons))
		for _, b := range buttons {
			actions = append(actions, sendButton{
				Type:  "reply",
				Reply: ButtonReply{ID: b.ID, Title: b.Title},
			})
		}
		req.Type = "interactive"
		req.Interactive = &sendInteractive{
			Type:   "button",
			Body:   bodyText{Text: body},
			Action: sendAction{Buttons: actions},
		}
	} else {
		req.Type = "text"
		req.Text = &TextContent{Body: body}
	}

	started := time.Now()
	result, err := c.post(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if c.metrics != nil {
		c.metrics.WASendLatency.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	}
	return result, err
}

func (c *Client) post(ctx context.Context, payload sendRequest) (*SendResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal send request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build send request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read send response: %w", err)
	}

	var ack sendResponse
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return nil, fmt.Errorf("decode send response: %w", err)
	}
	if ack.Error != nil {
		return nil, fmt.Errorf("whatsapp api error %d: %s", ack.Error.Code, ack.Error.Message)
	}
	if len(ack.Messages) == 0 {
		return nil, fmt.Errorf("whatsapp api returned no message id (status %d)", resp.StatusCode)
	}

	return &SendResult{MessageID: ack.Messages[0].ID}, nil
}
