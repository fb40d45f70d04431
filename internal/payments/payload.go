// Package payments implements the payment intent lifecycle and webhook
// reconciliation for the Droplink payment service. It sits between the HTTP
// handlers and the provider client / repositories.
package payments

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"droplink/internal/types"
)

// WebhookEvent is the normalized form of a DropPay webhook delivery. DropPay
// payload shapes have drifted across versions, so every field is probed at
// the top level and under a nested "payment" object.
type WebhookEvent struct {
	ExternalID string
	Status     types.PaymentStatus
	Amount     decimal.Decimal
	Txid       string
	Metadata   types.PaymentMetadata
	Raw        map[string]any
}

// ParseWebhookEvent decodes a webhook body and probes the known field
// locations. It returns an error only when the body is not a JSON object;
// missing fields are left zero-valued for the reconciler to judge.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON, "webhook body is not a JSON object", err)
	}

	event := &WebhookEvent{Raw: raw}

	nested, _ := raw["payment"].(map[string]any)

	event.ExternalID = probeField(raw, nested, "payment_id", "paymentId", "id")
	// Some provider versions omit txid entirely; the payment id is the only
	// transaction reference those deliveries carry.
	event.Txid = probeField(raw, nested, "txid", "transaction_id", "paymentId")
	event.Status = types.PaymentStatus(strings.ToLower(probeField(raw, nested, "status")))
	event.Amount = probeAmount(raw, nested)
	event.Metadata = probeMetadata(raw, nested)

	return event, nil
}

// probeField checks the top-level object first, then the nested payment
// object, for the first key that holds a non-empty string.
func probeField(raw, nested map[string]any, keys ...string) string {
	for _, scope := range []map[string]any{raw, nested} {
		if scope == nil {
			continue
		}
		for _, key := range keys {
			if v := stringValue(scope[key]); v != "" {
				return v
			}
		}
	}
	return ""
}

func probeAmount(raw, nested map[string]any) decimal.Decimal {
	for _, scope := range []map[string]any{raw, nested} {
		if scope == nil {
			continue
		}
		switch v := scope["amount"].(type) {
		case float64:
			return decimal.NewFromFloat(v)
		case string:
			if d, err := decimal.NewFromString(v); err == nil {
				return d
			}
		}
	}
	return decimal.Zero
}

func probeMetadata(raw, nested map[string]any) types.PaymentMetadata {
	for _, scope := range []map[string]any{raw, nested} {
		if scope == nil {
			continue
		}
		obj, ok := scope["metadata"].(map[string]any)
		if !ok {
			continue
		}
		meta := make(types.PaymentMetadata, len(obj))
		for k, v := range obj {
			if s := stringValue(v); s != "" {
				meta[k] = s
			}
		}
		return meta
	}
	return nil
}

// stringValue renders a decoded JSON scalar as a string. Non-scalar values
// yield "".
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
