package external

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

	"droplink/internal/types"

	"github.com/shopspring/decimal"
)

// PaymentProvider is the interface the payments service depends on for
// communicating with the upstream payment provider.
type PaymentProvider interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*ProviderPayment, error)
	ApprovePayment(ctx context.Context, providerID string) (*ProviderPayment, error)
	CompletePayment(ctx context.Context, providerID string, txid string) (*ProviderPayment, error)
	GetPayment(ctx context.Context, providerID string) (*ProviderPayment, error)
}

// CreatePaymentRequest is the payload sent to DropPay to create a payment.
type CreatePaymentRequest struct {
	Amount      decimal.Decimal       `json:"amount"`
	Currency    string                `json:"currency"`
	Description string                `json:"description,omitempty"`
	Metadata    types.PaymentMetadata `json:"metadata,omitempty"`
}

// ProviderPayment is the normalized view of a payment as reported by DropPay.
// Raw holds the full decoded response body for field probing, since DropPay
// response shapes have drifted across versions.
type ProviderPayment struct {
	ID          string
	Status      string
	Txid        string
	CheckoutURL string
	Raw         map[string]any
}

// DropPayClient talks to the DropPay payments API.
type DropPayClient struct {
	*BaseClient
	baseURL    string
	apiKey     types.SecretString
	authScheme string
	logger     *slog.Logger
}

// NewDropPayClient creates a DropPay API client. baseURL must not have a
// trailing slash; authScheme is the Authorization header scheme (e.g. "Key").
func NewDropPayClient(
	baseURL string,
	apiKey types.SecretString,
	authScheme string,
	timeout time.Duration,
	logger *slog.Logger,
) *DropPayClient {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := &http.Client{Timeout: timeout}
	return &DropPayClient{
		BaseClient: NewBaseClient(
			httpClient,
			"droppay",
			DefaultRetryPolicy(),
			"droplink-api/1.0",
		),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		authScheme: authScheme,
		logger:     logger,
	}
}

// CreatePayment registers a new payment with DropPay and returns the
// provider's identifier plus the checkout URL, if one was reported.
func (c *DropPayClient) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*ProviderPayment, error) {
	return c.call(ctx, http.MethodPost, "/payments", req)
}

// ApprovePayment tells DropPay the payment is approved on our side.
func (c *DropPayClient) ApprovePayment(ctx context.Context, providerID string) (*ProviderPayment, error) {
	return c.call(ctx, http.MethodPost, fmt.Sprintf("/payments/%s/approve", providerID), nil)
}

// CompletePayment tells DropPay the payment settled with the given
// blockchain transaction id.
func (c *DropPayClient) CompletePayment(ctx context.Context, providerID string, txid string) (*ProviderPayment, error) {
	body := map[string]string{"txid": txid}
	return c.call(ctx, http.MethodPost, fmt.Sprintf("/payments/%s/complete", providerID), body)
}

// GetPayment fetches the provider's current view of a payment.
func (c *DropPayClient) GetPayment(ctx context.Context, providerID string) (*ProviderPayment, error) {
	return c.call(ctx, http.MethodGet, fmt.Sprintf("/payments/%s", providerID), nil)
}

func (c *DropPayClient) call(ctx context.Context, method, path string, body any) (*ProviderPayment, error) {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode provider request", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build provider request", err)
	}
	req.Header.Set("Authorization", c.authScheme+" "+c.apiKey.Unmask())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to read provider response", err)
	}

	if resp.StatusCode >= 400 {
		c.logger.Warn("provider rejected request",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", truncate(string(rawBody), 512),
		)
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeProviderRejected,
			fmt.Sprintf("provider returned %d", resp.StatusCode),
			nil,
			map[string]any{"status": resp.StatusCode, "response": truncate(string(rawBody), 512)},
		)
	}

	var raw map[string]any
	if len(rawBody) > 0 {
		if err := json.Unmarshal(rawBody, &raw); err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "provider returned malformed JSON", err)
		}
	}

	return normalizePayment(raw), nil
}

// checkoutURLProbes lists the response locations where DropPay has reported
// the checkout URL, in precedence order. Dotted paths descend into nested
// objects.
var checkoutURLProbes = []string{
	"checkout_url",
	"url",
	"payment_url",
	"payment.checkout_url",
	"links.checkout",
	"redirect_url",
}

func normalizePayment(raw map[string]any) *ProviderPayment {
	p := &ProviderPayment{Raw: raw}
	if raw == nil {
		return p
	}

	p.ID = probeString(raw, "id", "payment_id", "paymentId", "payment.id")
	p.Status = probeString(raw, "status", "payment.status")
	p.Txid = probeString(raw, "txid", "transaction_id", "payment.txid")

	for _, path := range checkoutURLProbes {
		if v := lookupPath(raw, path); v != "" {
			p.CheckoutURL = v
			break
		}
	}
	return p
}

// probeString returns the first non-empty string found at any of the given
// paths.
func probeString(raw map[string]any, paths ...string) string {
	for _, path := range paths {
		if v := lookupPath(raw, path); v != "" {
			return v
		}
	}
	return ""
}

// lookupPath resolves a dotted path against a decoded JSON object and returns
// the string value found there, or "" if the path is absent or not a string.
func lookupPath(raw map[string]any, path string) string {
	current := any(raw)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = m[part]
		if !ok {
			return ""
		}
	}
	s, _ := current.(string)
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
