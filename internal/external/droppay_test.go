package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droplink/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *DropPayClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewDropPayClient(srv.URL, "sk_test", "Key", 5*time.Second, nil)
}

func TestDropPayClient_CreatePayment_Success(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":           "ext_1",
			"status":       "created",
			"checkout_url": "https://pay.example/checkout/ext_1",
		})
	})

	payment, err := client.CreatePayment(context.Background(), CreatePaymentRequest{
		Amount:   decimal.NewFromInt(10),
		Currency: "PI",
		Metadata: types.PaymentMetadata{"profile_id": "prof_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Key sk_test", gotAuth)
	assert.Equal(t, "ext_1", payment.ID)
	assert.Equal(t, "https://pay.example/checkout/ext_1", payment.CheckoutURL)
	assert.Equal(t, "10", gotBody["amount"].(string))
}

func TestDropPayClient_CreatePayment_NestedCheckoutURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "ext_2",
			"payment": map[string]any{
				"checkout_url": "https://pay.example/nested",
			},
		})
	})

	payment, err := client.CreatePayment(context.Background(), CreatePaymentRequest{
		Amount: decimal.NewFromInt(1), Currency: "PI",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/nested", payment.CheckoutURL)
}

func TestDropPayClient_CreatePayment_LinksCheckoutFallback(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "ext_3",
			"links": map[string]any{
				"checkout": "https://pay.example/links",
			},
		})
	})

	payment, err := client.CreatePayment(context.Background(), CreatePaymentRequest{
		Amount: decimal.NewFromInt(1), Currency: "PI",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/links", payment.CheckoutURL)
}

func TestDropPayClient_CreatePayment_MissingCheckoutURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "ext_4", "status": "created"})
	})

	payment, err := client.CreatePayment(context.Background(), CreatePaymentRequest{
		Amount: decimal.NewFromInt(1), Currency: "PI",
	})
	require.NoError(t, err)
	assert.Equal(t, "ext_4", payment.ID)
	assert.Empty(t, payment.CheckoutURL)
}

func TestDropPayClient_CreatePayment_ProviderRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"amount exceeds limit"}`))
	})

	_, err := client.CreatePayment(context.Background(), CreatePaymentRequest{
		Amount: decimal.NewFromInt(1000000), Currency: "PI",
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeProviderRejected, appErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Details["status"])
	assert.Contains(t, appErr.Details["response"], "amount exceeds limit")
}

func TestDropPayClient_ApprovePayment_Path(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/ext_1/approve", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"id": "ext_1", "status": "approved"})
	})

	payment, err := client.ApprovePayment(context.Background(), "ext_1")
	require.NoError(t, err)
	assert.Equal(t, "approved", payment.Status)
}

func TestDropPayClient_CompletePayment_SendsTxid(t *testing.T) {
	var gotBody map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/ext_1/complete", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{"id": "ext_1", "status": "completed", "txid": "tx_abc"})
	})

	payment, err := client.CompletePayment(context.Background(), "ext_1", "tx_abc")
	require.NoError(t, err)
	assert.Equal(t, "tx_abc", gotBody["txid"])
	assert.Equal(t, "tx_abc", payment.Txid)
}

func TestDropPayClient_GetPayment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/payments/ext_1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"id": "ext_1", "status": "approved"})
	})

	payment, err := client.GetPayment(context.Background(), "ext_1")
	require.NoError(t, err)
	assert.Equal(t, "approved", payment.Status)
}

func TestNormalizePayment_ProbePrecedence(t *testing.T) {
	// Top-level checkout_url wins over every fallback location.
	p := normalizePayment(map[string]any{
		"checkout_url": "https://first",
		"url":          "https://second",
		"payment": map[string]any{
			"checkout_url": "https://third",
		},
	})
	assert.Equal(t, "https://first", p.CheckoutURL)

	// url comes before payment_url.
	p = normalizePayment(map[string]any{
		"url":         "https://second",
		"payment_url": "https://fourth",
	})
	assert.Equal(t, "https://second", p.CheckoutURL)

	// redirect_url is the last resort.
	p = normalizePayment(map[string]any{
		"redirect_url": "https://last",
	})
	assert.Equal(t, "https://last", p.CheckoutURL)
}
