package payments

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"droplink/internal/external"
	"droplink/internal/types"
)

// IntentStore is the persistence interface the Service needs for payment
// intents. Implemented by db.PaymentIntentRepo.
type IntentStore interface {
	Create(ctx context.Context, intent *types.PaymentIntent) (*types.PaymentIntent, error)
	GetByID(ctx context.Context, id string) (*types.PaymentIntent, error)
	GetByExternalID(ctx context.Context, externalID string) (*types.PaymentIntent, error)
	MarkApproved(ctx context.Context, id string) (alreadyDone bool, err error)
	MarkCompleted(ctx context.Context, id string, txid string) (alreadyDone bool, err error)
}

// Service implements the payment intent lifecycle: create against the
// provider, approve, complete, and read back.
type Service struct {
	provider external.PaymentProvider
	intents  IntentStore
	logger   *slog.Logger
}

// NewService creates a payment Service with the given provider client and
// intent store.
func NewService(provider external.PaymentProvider, intents IntentStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: provider, intents: intents, logger: logger}
}

// CreateIntentParams are the caller-supplied inputs for a new payment intent.
type CreateIntentParams struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	Metadata    types.PaymentMetadata
}

// CreateIntent registers a payment with the provider and persists the local
// intent in status "created".
//
// The intent is persisted even when the provider response carries no checkout
// URL; in that case CreateIntent returns a checkout-url-missing error whose
// details include the persisted intent's ids, so the client can retry the
// checkout fetch without creating a second payment.
func (s *Service) CreateIntent(ctx context.Context, params CreateIntentParams) (*types.PaymentIntent, error) {
	if !params.Amount.IsPositive() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidAmount, "amount must be greater than zero", nil)
	}
	currency := params.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}

	created, err := s.provider.CreatePayment(ctx, external.CreatePaymentRequest{
		Amount:      params.Amount,
		Currency:    currency,
		Description: params.Description,
		Metadata:    params.Metadata,
	})
	if err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "provider response did not include a payment id", nil)
	}

	intent, err := s.intents.Create(ctx, &types.PaymentIntent{
		ExternalID:  created.ID,
		Amount:      params.Amount,
		Currency:    currency,
		Description: params.Description,
		Metadata:    params.Metadata,
		Status:      types.PaymentStatusCreated,
		CheckoutURL: created.CheckoutURL,
	})
	if err != nil {
		return nil, err
	}

	if created.CheckoutURL == "" {
		// The raw response goes to the log for support diagnosis; it never
		// reaches the client.
		s.logger.WarnContext(ctx, "provider response carried no checkout url",
			slog.String("payment_id", intent.ID),
			slog.String("external_id", intent.ExternalID),
			slog.Any("provider_response", created.Raw),
		)
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeCheckoutURLMissing,
			"payment was created but the provider returned no checkout url",
			nil,
			map[string]any{
				"payment_id":  intent.ID,
				"external_id": intent.ExternalID,
			},
		)
	}

	s.logger.InfoContext(ctx, "payment intent created",
		slog.String("payment_id", intent.ID),
		slog.String("external_id", intent.ExternalID),
		slog.String("amount", intent.Amount.String()),
		slog.String("currency", intent.Currency),
	)
	return intent, nil
}

// resolveIntent looks up an intent by local id, falling back to the
// provider's external id. Approve and complete callbacks carry the payment id
// the checkout flow handed the client, which is the provider's id; only
// intents created through this service resolve, so foreign provider ids come
// back not found.
func (s *Service) resolveIntent(ctx context.Context, id string) (*types.PaymentIntent, error) {
	intent, err := s.intents.GetByID(ctx, id)
	if err == nil {
		return intent, nil
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundIntent {
		return s.intents.GetByExternalID(ctx, id)
	}
	return nil, err
}

// Approve confirms the payment with the provider and moves the local intent
// to approved. Approving an already-approved intent is a no-op that returns
// the current intent.
func (s *Service) Approve(ctx context.Context, id string) (*types.PaymentIntent, error) {
	intent, err := s.resolveIntent(ctx, id)
	if err != nil {
		return nil, err
	}

	if intent.Status != types.PaymentStatusCreated {
		// Idempotent for approved and completed; conflict for other states.
		alreadyDone, err := s.intents.MarkApproved(ctx, intent.ID)
		if err != nil {
			return nil, err
		}
		if alreadyDone {
			s.logger.InfoContext(ctx, "approve is a no-op; intent already approved",
				slog.String("payment_id", intent.ID),
			)
		}
		return s.intents.GetByID(ctx, intent.ID)
	}

	if _, err := s.provider.ApprovePayment(ctx, intent.ExternalID); err != nil {
		return nil, err
	}

	if _, err := s.intents.MarkApproved(ctx, intent.ID); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment intent approved",
		slog.String("payment_id", intent.ID),
		slog.String("external_id", intent.ExternalID),
	)
	return s.intents.GetByID(ctx, intent.ID)
}

// Complete settles the payment with the provider, recording the blockchain
// transaction id. Completing a completed intent with the same txid is a
// no-op; a different txid is a conflict; completing an unapproved intent is
// rejected. The provider is only called for the first completion.
func (s *Service) Complete(ctx context.Context, id string, txid string) (*types.PaymentIntent, error) {
	if txid == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingTxid, "txid is required to complete a payment", nil)
	}

	intent, err := s.resolveIntent(ctx, id)
	if err != nil {
		return nil, err
	}

	switch intent.Status {
	case types.PaymentStatusCompleted:
		// MarkCompleted decides between idempotent no-op and txid conflict.
		if _, err := s.intents.MarkCompleted(ctx, intent.ID, txid); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "complete is a no-op; intent already completed",
			slog.String("payment_id", intent.ID),
		)
		return intent, nil

	case types.PaymentStatusCreated:
		return nil, types.NewAppError(types.ErrCodeConflictNotApproved, "payment intent must be approved before completion", nil)

	case types.PaymentStatusApproved:
		if _, err := s.provider.CompletePayment(ctx, intent.ExternalID, txid); err != nil {
			return nil, err
		}
		if _, err := s.intents.MarkCompleted(ctx, intent.ID, txid); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "payment intent completed",
			slog.String("payment_id", intent.ID),
			slog.String("external_id", intent.ExternalID),
			slog.String("txid", txid),
		)
		return s.intents.GetByID(ctx, intent.ID)

	default:
		return nil, types.NewAppError(
			types.ErrCodeConflictStatus,
			"payment intent is in status "+string(intent.Status)+" and cannot be completed",
			nil,
		)
	}
}

// Get returns the current local view of a payment intent, addressable by
// either the provider's external id or the local id. For a non-terminal
// intent that is still missing its checkout URL, the provider is probed and a
// URL found there is filled into the returned view, so clients recovering from
// a degraded create can fetch the URL without creating a second payment.
// Provider failures degrade to the local view.
func (s *Service) Get(ctx context.Context, id string) (*types.PaymentIntent, error) {
	intent, err := s.resolveIntent(ctx, id)
	if err != nil {
		return nil, err
	}

	if intent.CheckoutURL == "" && !intent.Status.IsTerminal() {
		remote, perr := s.provider.GetPayment(ctx, intent.ExternalID)
		if perr != nil {
			s.logger.Warn("provider probe failed, returning local view",
				slog.String("payment_id", intent.ID),
				slog.String("external_id", intent.ExternalID),
				slog.String("error", perr.Error()),
			)
			return intent, nil
		}
		intent.CheckoutURL = remote.CheckoutURL
	}

	return intent, nil
}
