package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"droplink/internal/types"
)

// SignatureVerifier validates webhook signatures against the raw body.
// Implemented by external.HMACVerifier.
type SignatureVerifier interface {
	Verify(body []byte, signature string) error
}

// IntentFinalizer is the persistence interface the Reconciler needs for
// payment intents. Implemented by db.PaymentIntentRepo.
type IntentFinalizer interface {
	GetByExternalID(ctx context.Context, externalID string) (*types.PaymentIntent, error)
	MarkTerminal(ctx context.Context, externalID string, status types.PaymentStatus, txid *string) error
}

// EffectApplier applies derived side effects atomically with their effect
// ledger entries. Implemented by db.EffectStore.
type EffectApplier interface {
	ApplySubscriptionGrant(ctx context.Context, grant types.SubscriptionGrant) (applied bool, err error)
	ApplyOrderFulfillment(ctx context.Context, order types.OrderRecord) (applied bool, err error)
}

// Reconciler processes provider webhooks: it verifies the signature, probes
// the payload, derives side effects from the payment metadata, applies them
// exactly once via the effect ledger, and finalizes the local intent.
//
// After the signature check passes, processing problems are absorbed: bad or
// incomplete payloads are logged and acknowledged so the provider does not
// retry a delivery that can never succeed. Only database failures surface as
// errors, since those deliveries can succeed on retry.
type Reconciler struct {
	verifier SignatureVerifier
	intents  IntentFinalizer
	effects  EffectApplier
	logger   *slog.Logger
	now      func() time.Time
}

// NewReconciler creates a webhook Reconciler.
func NewReconciler(verifier SignatureVerifier, intents IntentFinalizer, effects EffectApplier, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		verifier: verifier,
		intents:  intents,
		effects:  effects,
		logger:   logger,
		now:      time.Now,
	}
}

// Process handles one webhook delivery. The returned error is either a
// signature error (the handler maps it to 401) or a database error (5xx, the
// provider will retry); everything else is acknowledged.
func (r *Reconciler) Process(ctx context.Context, body []byte, signature string) error {
	if err := r.verifier.Verify(body, signature); err != nil {
		return err
	}

	event, err := ParseWebhookEvent(body)
	if err != nil {
		r.logger.WarnContext(ctx, "ignoring malformed webhook payload", "error", err)
		return nil
	}

	if event.ExternalID == "" {
		r.logger.WarnContext(ctx, "ignoring webhook without a payment id")
		return nil
	}

	if !event.Status.IsTerminal() {
		r.logger.InfoContext(ctx, "ignoring non-terminal webhook",
			slog.String("external_id", event.ExternalID),
			slog.String("status", string(event.Status)),
		)
		return nil
	}

	r.logger.InfoContext(ctx, "processing webhook",
		slog.String("external_id", event.ExternalID),
		slog.String("status", string(event.Status)),
		slog.String("txid", event.Txid),
	)

	// Merge in the stored intent's metadata and amount for deliveries where
	// the provider dropped fields. The webhook values win when present.
	intent := r.lookupIntent(ctx, event)
	r.enrichFromIntent(ctx, event, intent)

	if event.Status == types.PaymentStatusCompleted {
		if err := r.applyEffects(ctx, event); err != nil {
			return err
		}
	}

	var txid *string
	if event.Txid != "" {
		txid = &event.Txid
	}
	return r.intents.MarkTerminal(ctx, event.ExternalID, event.Status, txid)
}

func (r *Reconciler) lookupIntent(ctx context.Context, event *WebhookEvent) *types.PaymentIntent {
	intent, err := r.intents.GetByExternalID(ctx, event.ExternalID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundIntent {
			// Webhooks can outrun or outlive the local record. Effects are
			// still derivable from the webhook metadata alone.
			r.logger.WarnContext(ctx, "webhook for unknown payment intent",
				slog.String("external_id", event.ExternalID),
			)
			return nil
		}
		r.logger.ErrorContext(ctx, "failed to load payment intent for webhook",
			slog.String("external_id", event.ExternalID),
			"error", err,
		)
		return nil
	}
	return intent
}

func (r *Reconciler) enrichFromIntent(ctx context.Context, event *WebhookEvent, intent *types.PaymentIntent) {
	if intent == nil {
		return
	}
	if event.Metadata == nil {
		event.Metadata = intent.Metadata
	}
	if event.Amount.IsZero() {
		event.Amount = intent.Amount
	} else if !event.Amount.Equal(intent.Amount) {
		// The provider is authoritative for settlement, so a mismatch is
		// logged for investigation rather than rejected.
		r.logger.WarnContext(ctx, "webhook amount differs from stored intent",
			slog.String("external_id", event.ExternalID),
			slog.String("webhook_amount", event.Amount.String()),
			slog.String("intent_amount", intent.Amount.String()),
		)
	}
}

// applyEffects derives zero, one or two effects from the payment metadata
// and applies each exactly once. A payment carrying a plan grants a
// subscription; a payment carrying a product id fulfills an order.
func (r *Reconciler) applyEffects(ctx context.Context, event *WebhookEvent) error {
	profileID := event.Metadata.ProfileID()
	plan := event.Metadata.Plan()
	productID := event.Metadata.ProductID()

	if profileID == "" || (plan == "" && productID == "") {
		r.logger.WarnContext(ctx, "webhook metadata incomplete; no effects derivable",
			slog.String("external_id", event.ExternalID),
			slog.String("error_code", string(types.ErrCodeWebhookIncompleteMetadata)),
			slog.Bool("has_profile_id", profileID != ""),
			slog.Bool("has_plan", plan != ""),
			slog.Bool("has_product_id", productID != ""),
		)
		return nil
	}

	if plan != "" {
		period := types.ParseBillingPeriod(event.Metadata.Period())
		applied, err := r.effects.ApplySubscriptionGrant(ctx, types.SubscriptionGrant{
			ProfileID:       profileID,
			Plan:            plan,
			Period:          period,
			Amount:          event.Amount,
			ExpiresAt:       period.ExpiryFrom(r.now()),
			SourcePaymentID: event.ExternalID,
			Txid:            event.Txid,
		})
		if err != nil {
			return err
		}
		if !applied {
			r.logger.InfoContext(ctx, "subscription grant already applied",
				slog.String("external_id", event.ExternalID),
			)
		}
	}

	if productID != "" {
		applied, err := r.effects.ApplyOrderFulfillment(ctx, types.OrderRecord{
			ProfileID:   profileID,
			ProductID:   productID,
			ExternalID:  event.ExternalID,
			Amount:      event.Amount,
			Txid:        event.Txid,
			Memo:        event.Metadata.Description(),
			Status:      types.PaymentStatusCompleted,
			ConfirmedAt: r.now(),
			Metadata:    event.Metadata,
		})
		if err != nil {
			return err
		}
		if !applied {
			r.logger.InfoContext(ctx, "order fulfillment already applied",
				slog.String("external_id", event.ExternalID),
			)
		}
	}

	return nil
}
