// Package handlers contains the HTTP handler implementations for the Droplink
// payment API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"droplink/internal/core"
	"droplink/internal/payments"
	"droplink/internal/types"
)

// PaymentService is the lifecycle contract the payment handler depends on.
// Implemented by payments.Service. Defined locally so tests can inject mocks.
type PaymentService interface {
	CreateIntent(ctx context.Context, params payments.CreateIntentParams) (*types.PaymentIntent, error)
	Approve(ctx context.Context, id string) (*types.PaymentIntent, error)
	Complete(ctx context.Context, id string, txid string) (*types.PaymentIntent, error)
	Get(ctx context.Context, id string) (*types.PaymentIntent, error)
}

// CreatePaymentRequest is the request body for POST /payments.
type CreatePaymentRequest struct {
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency,omitempty" validate:"omitempty,uppercase,min=2,max=10"`
	Description string            `json:"description,omitempty" validate:"omitempty,max=500"`
	Metadata    map[string]string `json:"metadata,omitempty" validate:"omitempty,max=32"`
}

// CompletePaymentRequest is the request body for POST /payments/{id}/complete.
type CompletePaymentRequest struct {
	Txid string `json:"txid" validate:"required,min=1,max=128"`
}

// PaymentHandler serves the synchronous payment lifecycle endpoints. The {id}
// path segment accepts either the local intent id or the provider's payment
// id; checkout callbacks only ever see the latter.
type PaymentHandler struct {
	service   PaymentService
	validator *core.Validator
	logger    *slog.Logger
}

// NewPaymentHandler creates a new PaymentHandler with the provided dependencies.
func NewPaymentHandler(svc PaymentService, v *core.Validator, l *slog.Logger) *PaymentHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PaymentHandler{service: svc, validator: v, logger: l}
}

// RegisterRoutes mounts the payment lifecycle endpoints.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payments", h.Create)
	r.Get("/payments/{id}", h.Get)
	r.Post("/payments/{id}/approve", h.Approve)
	r.Post("/payments/{id}/complete", h.Complete)
}

// Create handles POST /payments. It registers the payment with the provider
// and returns the stored intent, including the checkout URL the client should
// redirect to.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	intent, err := h.service.CreateIntent(r.Context(), payments.CreateIntentParams{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		Metadata:    types.PaymentMetadata(req.Metadata),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: intent})
}

// Get handles GET /payments/{id}.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	intent, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: intent})
}

// Approve handles POST /payments/{id}/approve. Approval is idempotent;
// repeated calls return the current intent.
func (h *PaymentHandler) Approve(w http.ResponseWriter, r *http.Request) {
	intent, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: intent})
}

// Complete handles POST /payments/{id}/complete. Completion requires a txid
// and an approved intent; repeating a completion with the same txid is a
// no-op.
func (h *PaymentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req CompletePaymentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	intent, err := h.service.Complete(r.Context(), chi.URLParam(r, "id"), req.Txid)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: intent})
}
