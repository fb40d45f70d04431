package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"droplink/internal/core"
	"droplink/internal/payments"
	"droplink/internal/types"
)

// --- Mock PaymentService ---

type mockPaymentService struct {
	mock.Mock
}

func (m *mockPaymentService) CreateIntent(ctx context.Context, params payments.CreateIntentParams) (*types.PaymentIntent, error) {
	args := m.Called(ctx, params)
	if p := args.Get(0); p != nil {
		return p.(*types.PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPaymentService) Approve(ctx context.Context, id string) (*types.PaymentIntent, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(*types.PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPaymentService) Complete(ctx context.Context, id string, txid string) (*types.PaymentIntent, error) {
	args := m.Called(ctx, id, txid)
	if p := args.Get(0); p != nil {
		return p.(*types.PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPaymentService) Get(ctx context.Context, id string) (*types.PaymentIntent, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(*types.PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

func newPaymentRouter(svc PaymentService) *chi.Mux {
	h := NewPaymentHandler(svc, core.NewValidator(), nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func decodeErrorCode(t *testing.T, body *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body.Body.Bytes(), &resp))
	return resp.Error.Code
}

// decodeIntent unwraps the standard {"data": ...} success envelope.
func decodeIntent(t *testing.T, body *httptest.ResponseRecorder) types.PaymentIntent {
	t.Helper()
	var resp struct {
		Data types.PaymentIntent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body.Body.Bytes(), &resp))
	return resp.Data
}

// --- Create ---

func TestPaymentHandler_Create_Success(t *testing.T) {
	svc := new(mockPaymentService)
	router := newPaymentRouter(svc)

	svc.On("CreateIntent", mock.Anything, mock.MatchedBy(func(params payments.CreateIntentParams) bool {
		return params.Amount.Equal(decimal.NewFromInt(10)) &&
			params.Metadata.ProfileID() == "prof_1"
	})).Return(&types.PaymentIntent{
		ID:          "pi_1",
		ExternalID:  "ext_1",
		Amount:      decimal.NewFromInt(10),
		Currency:    "PI",
		Status:      types.PaymentStatusCreated,
		CheckoutURL: "https://pay.example/checkout",
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(
		`{"amount":"10","metadata":{"profile_id":"prof_1","plan":"premium"}}`,
	))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	intent := decodeIntent(t, rec)
	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, "https://pay.example/checkout", intent.CheckoutURL)
	svc.AssertExpectations(t)
}

func TestPaymentHandler_Create_InvalidJSON(t *testing.T) {
	svc := new(mockPaymentService)
	router := newPaymentRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything)
}

func TestPaymentHandler_Create_InvalidAmount(t *testing.T) {
	svc := new(mockPaymentService)
	router := newPaymentRouter(svc)

	svc.On("CreateIntent", mock.Anything, mock.Anything).
		Return(nil, types.NewAppError(types.ErrCodeValidationInvalidAmount, "amount must be greater than zero", nil))

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"amount":"0"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidAmount), decodeErrorCode(t, rec))
}

func TestPaymentHandler_Create_CheckoutURLMissing(t *testing.T) {
	svc := new(mockPaymentService)
	router := newPaymentRouter(svc)

	svc.On("CreateIntent", mock.Anything, mock.Anything).
		Return(nil, types.NewAppErrorWithDetails(
			types.ErrCodeCheckoutURLMissing,
			"payment was created but the provider returned no checkout url",
			nil,
			map[string]any{"payment_id": "pi_1"},
		))

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"amount":"10"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, string(types.ErrCodeCheckoutURLMissing), decodeErrorCode(t, rec))
}

// --- Get ---

func TestPaymentHandler_Get_NotFound(t *testing.T) {
	svc := new(mockPaymentService)
	router := newPaymentRouter(svc)

	svc.On("Get", mock.Anything, "missing").
		Return(nil, types.NewAppError(types.ErrCodeNotFoundIntent, "payment intent not found", nil))

	req := httptest.NewRequest(http.MethodGet, "/payments/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundIntent), decodeErrorCode(t, rec))
}

// --- Approve ---

func TestPaymentHandler_Approve_Success(t *testing.T) {
	svc := new(mockPaymentService)
	router := newPaymentRouter(svc)

	svc.On("Approve", mock.Anything, "pi_1").Return(&types.PaymentIntent{
		ID: "pi_1", Status: types.PaymentStatusApproved,
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/payments/pi_1/approve", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.PaymentStatusApproved, decodeIntent(t, rec).Status)
}

// --- Complete ---

func TestPaymentHandler_Complete_Success(t *testing.T) {
	svc := new(mockPaymentService)
	router := newPaymentRouter(svc)

	txid := "tx_abc"
	svc.On("Complete", mock.Anything, "pi_1", "tx_abc").Return(&types.PaymentIntent{
		ID: "pi_1", Status: types.PaymentStatusCompleted, Txid: &txid,
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/payments/pi_1/complete", strings.NewReader(`{"txid":"tx_abc"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestPaymentHandler_Complete_MissingTxid(t *testing.T) {
	svc := new(mockPaymentService)
	router := newPaymentRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/payments/pi_1/complete", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentHandler_Complete_NotApproved(t *testing.T) {
	svc := new(mockPaymentService)
	router := newPaymentRouter(svc)

	svc.On("Complete", mock.Anything, "pi_1", "tx_abc").
		Return(nil, types.NewAppError(types.ErrCodeConflictNotApproved, "payment intent must be approved before completion", nil))

	req := httptest.NewRequest(http.MethodPost, "/payments/pi_1/complete", strings.NewReader(`{"txid":"tx_abc"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(types.ErrCodeConflictNotApproved), decodeErrorCode(t, rec))
}

func TestPaymentHandler_Complete_TxidConflict(t *testing.T) {
	svc := new(mockPaymentService)
	router := newPaymentRouter(svc)

	svc.On("Complete", mock.Anything, "pi_1", "tx_other").
		Return(nil, types.NewAppError(types.ErrCodeConflictTxid, "payment intent already completed with a different txid", nil))

	req := httptest.NewRequest(http.MethodPost, "/payments/pi_1/complete", strings.NewReader(`{"txid":"tx_other"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(types.ErrCodeConflictTxid), decodeErrorCode(t, rec))
}
