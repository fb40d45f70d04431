package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"droplink/internal/core"
	"droplink/internal/external"
	"droplink/internal/types"
)

// maxWebhookBodySize is the maximum allowed size of a DropPay webhook payload
// (64 KB). Provider payloads are small; this limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// WebhookProcessor reconciles one webhook delivery against local state.
// Implemented by payments.Reconciler.
type WebhookProcessor interface {
	Process(ctx context.Context, body []byte, signature string) error
}

// WebhookHandler handles asynchronous payment notifications from DropPay.
// It is NOT behind auth middleware; authenticity comes from verifying the
// X-Droppay-Signature header inside the reconciler.
type WebhookHandler struct {
	reconciler WebhookProcessor
	logger     *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(reconciler WebhookProcessor, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{reconciler: reconciler, logger: logger}
}

// RegisterRoutes mounts the webhook endpoint. Kept separate from the payment
// routes because webhook routes are public.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/payment", h.Handle)
}

// Handle processes an incoming DropPay webhook delivery.
//
// Signature failures return 401 so a misconfigured secret is visible to the
// provider. Database failures return 5xx so the provider retries the
// delivery. Everything else, including payloads that cannot be acted on, is
// acknowledged with 200 to stop redelivery.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"failed to read request body",
			err,
		))
		return
	}

	signature := r.Header.Get(external.SignatureHeader)

	if err := h.reconciler.Process(r.Context(), body, signature); err != nil {
		h.logger.WarnContext(r.Context(), "webhook processing failed", "error", err)
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
