package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"droplink/internal/types"
)

// SignatureHeader is the HTTP header DropPay uses to deliver webhook
// signatures.
const SignatureHeader = "X-Droppay-Signature"

// HMACVerifier validates webhook signatures using HMAC-SHA256 over the raw
// request body. When no shared secret is configured, verification is skipped
// and a warning is logged on every delivery.
type HMACVerifier struct {
	secret types.SecretString
	logger *slog.Logger
}

// NewHMACVerifier creates a verifier with the given shared secret. An empty
// secret disables verification.
func NewHMACVerifier(secret types.SecretString, logger *slog.Logger) *HMACVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &HMACVerifier{secret: secret, logger: logger}
}

// Verify checks the hex-encoded HMAC-SHA256 signature against the raw body.
// It returns nil when the signature matches, or when no secret is configured.
// Comparison is constant-time.
func (v *HMACVerifier) Verify(body []byte, signature string) error {
	if v.secret.Unmask() == "" {
		v.logger.Warn("webhook signature verification skipped; no shared secret configured")
		return nil
	}

	if signature == "" {
		return types.NewAppError(types.ErrCodeWebhookSignatureMissing, "missing webhook signature header", nil)
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return types.NewAppError(types.ErrCodeWebhookSignatureInvalid, "malformed webhook signature", err)
	}

	mac := hmac.New(sha256.New, []byte(v.secret.Unmask()))
	mac.Write(body)
	expected := mac.Sum(nil)

	if !hmac.Equal(provided, expected) {
		return types.NewAppError(types.ErrCodeWebhookSignatureInvalid, "webhook signature mismatch", nil)
	}
	return nil
}
