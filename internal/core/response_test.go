package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"droplink/internal/types"
)

func newTestRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(types.WithRequestID(req.Context(), "req_test_123"))
}

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	r := newTestRequest(http.MethodGet, "/payments/pay_1", "")

	JSON(w, r, http.StatusOK, map[string]string{"id": "pay_1"})

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var decoded map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if decoded["id"] != "pay_1" {
		t.Errorf("decoded body = %+v", decoded)
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	w := httptest.NewRecorder()
	r := newTestRequest(http.MethodGet, "/payments", "")

	// Channels cannot be marshalled, forcing the fallback path.
	JSON(w, r, http.StatusOK, map[string]any{"bad": make(chan int)})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}

	var resp APIErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("fallback response is not valid JSON: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("code = %q, want internal_unexpected_error", resp.Error.Code)
	}
	if resp.Error.RequestID != "req_test_123" {
		t.Errorf("request_id = %q, want req_test_123", resp.Error.RequestID)
	}
}

func TestError_AppError(t *testing.T) {
	w := httptest.NewRecorder()
	r := newTestRequest(http.MethodGet, "/payments/missing", "")

	appErr := types.NewAppErrorWithDetails(
		types.ErrCodeNotFoundIntent,
		"payment intent not found",
		nil,
		map[string]any{"payment_id": "missing"},
	)
	Error(w, r, appErr)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	var resp APIErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeNotFoundIntent) {
		t.Errorf("code = %q", resp.Error.Code)
	}
	if resp.Error.Message != "payment intent not found" {
		t.Errorf("message = %q", resp.Error.Message)
	}
	if resp.Error.Details["payment_id"] != "missing" {
		t.Errorf("details = %+v", resp.Error.Details)
	}
	if resp.Error.RequestID != "req_test_123" {
		t.Errorf("request_id = %q", resp.Error.RequestID)
	}
}

func TestError_WrappedAppError(t *testing.T) {
	w := httptest.NewRecorder()
	r := newTestRequest(http.MethodPost, "/payments", "")

	appErr := types.NewAppError(types.ErrCodeConflictTxid, "txid mismatch", nil)
	Error(w, r, fmt.Errorf("completing payment: %w", appErr))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}

	var resp APIErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeConflictTxid) {
		t.Errorf("code = %q, want conflict_txid_mismatch", resp.Error.Code)
	}
}

func TestError_GenericErrorHidesDetail(t *testing.T) {
	w := httptest.NewRecorder()
	r := newTestRequest(http.MethodPost, "/payments", "")

	Error(w, r, errors.New("pq: connection reset by peer"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "connection reset") {
		t.Error("internal error detail leaked to the client")
	}

	var resp APIErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("code = %q", resp.Error.Code)
	}
	if resp.Error.Message != "an unexpected error occurred" {
		t.Errorf("message = %q, want safe default", resp.Error.Message)
	}
}

func TestDecodeJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	r := newTestRequest(http.MethodPost, "/payments", `{"amount":"3.14","currency":"PI"}`)

	var dst struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := DecodeJSON(w, r, &dst); err != nil {
		t.Fatalf("DecodeJSON returned error: %v", err)
	}
	if dst.Amount != "3.14" || dst.Currency != "PI" {
		t.Errorf("decoded = %+v", dst)
	}
}

func TestDecodeJSON_UnknownField(t *testing.T) {
	w := httptest.NewRecorder()
	r := newTestRequest(http.MethodPost, "/payments", `{"amount":"1","surprise":true}`)

	var dst struct {
		Amount string `json:"amount"`
	}
	err := DecodeJSON(w, r, &dst)
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeValidationInvalidJSON {
		t.Errorf("code = %q", appErr.Code)
	}
	if !strings.Contains(appErr.Message, "unknown field") {
		t.Errorf("message = %q, want unknown field mention", appErr.Message)
	}
}

func TestDecodeJSON_MalformedJSON(t *testing.T) {
	w := httptest.NewRecorder()
	r := newTestRequest(http.MethodPost, "/payments", `{"amount":`)

	var dst struct{}
	err := DecodeJSON(w, r, &dst)
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeValidationInvalidJSON {
		t.Errorf("code = %q", appErr.Code)
	}
}

func TestDecodeJSON_EmptyBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := newTestRequest(http.MethodPost, "/payments", "")

	var dst struct{}
	err := DecodeJSON(w, r, &dst)
	if err == nil {
		t.Fatal("expected error for empty body, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T", err)
	}
	if !strings.Contains(appErr.Message, "empty") {
		t.Errorf("message = %q, want empty body mention", appErr.Message)
	}
}

func TestDecodeJSON_MultipleValues(t *testing.T) {
	w := httptest.NewRecorder()
	r := newTestRequest(http.MethodPost, "/payments", `{"amount":"1"}{"amount":"2"}`)

	var dst struct {
		Amount string `json:"amount"`
	}
	err := DecodeJSON(w, r, &dst)
	if err == nil {
		t.Fatal("expected error for multiple JSON values, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T", err)
	}
	if !strings.Contains(appErr.Message, "single JSON") {
		t.Errorf("message = %q", appErr.Message)
	}
}

func TestDecodeJSON_OversizedBody(t *testing.T) {
	w := httptest.NewRecorder()
	oversized := `{"padding":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	r := newTestRequest(http.MethodPost, "/payments", oversized)

	var dst struct {
		Padding string `json:"padding"`
	}
	err := DecodeJSON(w, r, &dst)
	if err == nil {
		t.Fatal("expected error for oversized body, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeValidationInvalidJSON {
		t.Errorf("code = %q", appErr.Code)
	}
	if !strings.Contains(appErr.Message, "1MB") {
		t.Errorf("message = %q, want size limit mention", appErr.Message)
	}
}

func TestDecodeJSON_TypeMismatch(t *testing.T) {
	w := httptest.NewRecorder()
	r := newTestRequest(http.MethodPost, "/payments", `{"count":"not-a-number"}`)

	var dst struct {
		Count int `json:"count"`
	}
	err := DecodeJSON(w, r, &dst)
	if err == nil {
		t.Fatal("expected error for type mismatch, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T", err)
	}
	if appErr.Details["field"] != "count" {
		t.Errorf("details = %+v, want field=count", appErr.Details)
	}
}
