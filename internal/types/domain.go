// Package types defines the shared domain model for the Droplink payments
// service: payment intents, their status machine, the effect ledger entries
// used for idempotent side-effect application, and the derived effects
// (subscription grants, order records) produced by settled payments.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the currency assumed when a caller omits one.
// Droplink collects payments in Pi.
const DefaultCurrency = "PI"

// PaymentStatus is the local lifecycle state of a payment intent.
type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "created"
	PaymentStatusApproved  PaymentStatus = "approved"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// statusRank orders statuses for monotonicity checks. Terminal states
// (completed, cancelled, failed) share the top rank: once terminal, an
// intent never transitions again.
var statusRank = map[PaymentStatus]int{
	PaymentStatusCreated:   0,
	PaymentStatusApproved:  1,
	PaymentStatusCompleted: 2,
	PaymentStatusCancelled: 2,
	PaymentStatusFailed:    2,
}

// IsTerminal reports whether the status admits no further transitions.
func (s PaymentStatus) IsTerminal() bool {
	return statusRank[s] >= 2
}

// CanTransitionTo reports whether moving from s to next preserves
// status monotonicity. Equal statuses are allowed (idempotent re-apply).
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s == next {
		return true
	}
	return statusRank[next] > statusRank[s]
}

// BillingPeriod is the subscription billing cadence carried in payment metadata.
type BillingPeriod string

const (
	PeriodMonthly BillingPeriod = "monthly"
	PeriodYearly  BillingPeriod = "yearly"
)

// ExpiryFrom computes the subscription expiry for a grant made at the given
// time. Uses calendar addition, so a monthly grant made on Jan 31 normalizes
// into early March per time.AddDate semantics.
func (p BillingPeriod) ExpiryFrom(now time.Time) time.Time {
	if p == PeriodYearly {
		return now.AddDate(1, 0, 0)
	}
	return now.AddDate(0, 1, 0)
}

// ParseBillingPeriod normalizes a metadata period value, defaulting to
// monthly for empty or unrecognized input (matching provider behavior).
func ParseBillingPeriod(s string) BillingPeriod {
	if BillingPeriod(s) == PeriodYearly {
		return PeriodYearly
	}
	return PeriodMonthly
}

// PaymentMetadata is the open key/value map attached to a payment intent at
// creation and echoed back by the provider in webhook callbacks. Well-known
// keys are accessed through the helper methods, which tolerate both the
// snake_case keys our clients send and the camelCase variants some provider
// payloads carry.
type PaymentMetadata map[string]string

// first returns the first non-empty value among the given keys.
func (m PaymentMetadata) first(keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}

// ProfileID returns the Droplink profile the payment belongs to.
func (m PaymentMetadata) ProfileID() string { return m.first("profile_id", "profileId") }

// Plan returns the subscription plan being purchased, if any.
func (m PaymentMetadata) Plan() string { return m.first("plan") }

// Period returns the raw billing period value, if any.
func (m PaymentMetadata) Period() string { return m.first("period") }

// ProductID returns the product being purchased, if any.
func (m PaymentMetadata) ProductID() string { return m.first("product_id", "productId") }

// Description returns the free-form memo clients attach for order records.
func (m PaymentMetadata) Description() string { return m.first("description") }

// PaymentIntent is the locally tracked record of an attempt to collect a
// payment via the external provider.
//
// Invariants:
//   - ExternalID is assigned exactly once, when the provider accepts the
//     create call, and is immutable thereafter.
//   - Amount and Currency are immutable after creation.
//   - Status transitions are monotonic (see PaymentStatus.CanTransitionTo);
//     intents are never deleted, only archived.
type PaymentIntent struct {
	ID          string          `json:"id"`
	ExternalID  string          `json:"external_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
	Metadata    PaymentMetadata `json:"metadata,omitempty"`
	Status      PaymentStatus   `json:"status"`
	Txid        *string         `json:"txid,omitempty"`
	CheckoutURL string          `json:"checkout_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// EffectKind identifies a class of financial side effect.
type EffectKind string

const (
	EffectSubscriptionGrant EffectKind = "subscription-grant"
	EffectOrderFulfillment  EffectKind = "order-fulfillment"
)

// Key derives the deterministic idempotency key for this effect kind and
// the provider payment id. The effect ledger's uniqueness constraint on this
// key is the sole "apply once" mechanism for webhook side effects.
func (k EffectKind) Key(externalID string) string {
	return string(k) + ":" + externalID
}

// EffectRecord is an entry in the effect ledger: a durable, uniquely keyed
// record that a side effect has already been applied. Inserting a duplicate
// key is treated as "already applied", never as an error.
type EffectRecord struct {
	ID        string         `json:"id"`
	Key       string         `json:"key"`
	Kind      EffectKind     `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	AppliedAt time.Time      `json:"applied_at"`
}

// SubscriptionGrant is the derived effect of a settled subscription payment.
// It is produced by this subsystem and consumed (read) by the rest of the
// platform; this subsystem never reads it back.
type SubscriptionGrant struct {
	ProfileID       string          `json:"profile_id"`
	Plan            string          `json:"plan"`
	Period          BillingPeriod   `json:"period"`
	Amount          decimal.Decimal `json:"amount"`
	ExpiresAt       time.Time       `json:"expires_at"`
	SourcePaymentID string          `json:"source_payment_id"`
	Txid            string          `json:"txid,omitempty"`
}

// OrderRecord is the derived effect of a settled product purchase.
type OrderRecord struct {
	ProfileID   string          `json:"profile_id"`
	ProductID   string          `json:"product_id"`
	ExternalID  string          `json:"external_id"`
	Amount      decimal.Decimal `json:"amount"`
	Txid        string          `json:"txid,omitempty"`
	Memo        string          `json:"memo,omitempty"`
	Status      PaymentStatus   `json:"status"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
	Metadata    PaymentMetadata `json:"metadata,omitempty"`
}
