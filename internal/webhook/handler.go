package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"faff-crm/internal/metrics"
)

const maxBodyBytes = 1 << 20

// MessageProcessor ingests one classified inbound message.
type MessageProcessor interface {
	Process(ctx context.Context, msg InboundMessage) error
}

// StatusProcessor applies a batch of status events.
type StatusProcessor interface {
	Process(ctx context.Context, events []StatusEvent)
}

// Handler is the webhook entry point. It answers the provider's GET
// verification handshake and routes POST deliveries through both the
// status and the message path; a single delivery can carry both.
type Handler struct {
	logger      *slog.Logger
	metrics     *metrics.Metrics
	verifyToken string
	messages    MessageProcessor
	statuses    StatusProcessor
}

// NewHandler creates the webhook handler.
func NewHandler(logger *slog.Logger, metricRegistry *metrics.Metrics, verifyToken string, messages MessageProcessor, statuses StatusProcessor) *Handler {
	return &Handler{
		logger:      logger.With("component", "webhook"),
		metrics:     metricRegistry,
		verifyToken: verifyToken,
		messages:    messages,
		statuses:    statuses,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleVerify(w, r)
	case http.MethodPost:
		h.handleDelivery(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVerify implements the provider's challenge exchange: echo the
// challenge when the verify token matches, reject otherwise.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("hub.verify_token")
	if token != h.verifyToken {
		h.logger.Warn("webhook verification rejected")
		http.Error(w, "invalid verification token", http.StatusForbidden)
		return
	}
	_, _ = w.Write([]byte(r.URL.Query().Get("hub.challenge")))
}

// handleDelivery processes one webhook POST. Processing errors are logged
// and swallowed: the upstream's only reaction to a failure is a retry
// storm, so the endpoint always acknowledges with 200.
func (h *Handler) handleDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("failed reading webhook body", "error", err)
		h.ack(w)
		return
	}
	defer r.Body.Close()

	result := Classify(body)

	if result.HasStatuses() {
		h.countDelivery("status")
		h.statuses.Process(r.Context(), result.Statuses)
	}
	if result.Message != nil {
		h.countDelivery("message")
		if err := h.messages.Process(r.Context(), *result.Message); err != nil {
			h.logger.Error("message ingestion failed", "phone", result.Message.Phone, "error", err)
			if h.metrics != nil {
				h.metrics.Errors.WithLabelValues("ingest").Inc()
			}
		}
	}
	if !result.HasStatuses() && result.Message == nil {
		h.countDelivery("none")
	}

	h.ack(w)
}

func (h *Handler) countDelivery(kind string) {
	if h.metrics != nil {
		h.metrics.WebhookDeliveries.WithLabelValues(kind).Inc()
	}
}

func (h *Handler) ack(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Success"))
}
