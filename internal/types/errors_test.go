package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	appErr := NewAppError(ErrCodeNotFoundIntent, "payment intent not found", nil)
	expected := "not_found_payment_intent: payment intent not found"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := fmt.Errorf("connection refused")
	appErr := NewAppError(ErrCodeInternalDB, "query failed", underlying)

	if !errors.Is(appErr, underlying) {
		t.Error("errors.Is should find the wrapped error")
	}

	var target *AppError
	if !errors.As(appErr, &target) {
		t.Fatal("errors.As should match *AppError")
	}
	if target.Code != ErrCodeInternalDB {
		t.Errorf("unwrapped code = %s, want %s", target.Code, ErrCodeInternalDB)
	}
}

func TestAppError_UnwrapNil(t *testing.T) {
	appErr := NewAppError(ErrCodeConflictTxid, "txid mismatch", nil)
	if appErr.Unwrap() != nil {
		t.Error("Unwrap should return nil for errors without a cause")
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidAmount, http.StatusBadRequest},
		{ErrCodeValidationMissingTxid, http.StatusBadRequest},
		{ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{ErrCodeWebhookSignatureMissing, http.StatusUnauthorized},
		{ErrCodeWebhookSignatureInvalid, http.StatusUnauthorized},
		{ErrCodeNotFoundIntent, http.StatusNotFound},
		{ErrCodeConflictNotApproved, http.StatusConflict},
		{ErrCodeConflictTxid, http.StatusConflict},
		{ErrCodeConflictStatus, http.StatusConflict},
		{ErrCodeProviderRejected, http.StatusPaymentRequired},
		{ErrCodeCheckoutURLMissing, http.StatusBadGateway},
		{ErrCodeUpstreamUnavailable, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimited, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrorCode("bogus_code"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestAppError_WithDetails(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeProviderRejected, "rejected", nil, map[string]any{"status": 422})
	enriched := base.WithDetails(map[string]any{"payment_id": "pay_1"})

	if enriched.Details["status"] != 422 {
		t.Error("original details should carry over")
	}
	if enriched.Details["payment_id"] != "pay_1" {
		t.Error("new details should be merged in")
	}
	if _, ok := base.Details["payment_id"]; ok {
		t.Error("WithDetails must not mutate the original error")
	}
}
