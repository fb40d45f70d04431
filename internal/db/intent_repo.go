package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"droplink/internal/types"
)

// PaymentIntentRepo manages the local payment intent lifecycle table.
//
// Key invariants:
//   - Status transitions are monotonic: created -> approved -> terminal.
//     A terminal row (completed, cancelled, failed) is never moved back.
//   - All transitions use a single compare-and-set UPDATE with WHERE guards
//     on the current status, then inspect rows affected. Concurrent callers
//     therefore cannot race a row into an invalid state.
type PaymentIntentRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewPaymentIntentRepo creates a new PaymentIntentRepo backed by the given
// database connection (pool or transaction).
func NewPaymentIntentRepo(db DBTX, logger *slog.Logger) *PaymentIntentRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentIntentRepo{db: db, logger: logger}
}

const intentColumns = `id, external_id, amount, currency, description, metadata,
	 status, txid, checkout_url, created_at, updated_at`

// Create persists a new payment intent in status "created" and returns the
// stored row. The external id comes from the payment provider and is unique.
func (r *PaymentIntentRepo) Create(ctx context.Context, intent *types.PaymentIntent) (*types.PaymentIntent, error) {
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO payment_intents
		   (id, external_id, amount, currency, description, metadata, status, checkout_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+intentColumns,
		intent.ID,
		intent.ExternalID,
		intent.Amount,
		intent.Currency,
		intent.Description,
		intent.Metadata,
		types.PaymentStatusCreated,
		intent.CheckoutURL,
	)
	stored, err := scanIntent(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, types.NewAppError(types.ErrCodeConflictStatus, "payment intent already exists for external id", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create payment intent", err)
	}
	return stored, nil
}

// GetByID fetches a payment intent by its local identifier.
func (r *PaymentIntentRepo) GetByID(ctx context.Context, id string) (*types.PaymentIntent, error) {
	return r.getBy(ctx, "id", id)
}

// GetByExternalID fetches a payment intent by the provider's identifier.
func (r *PaymentIntentRepo) GetByExternalID(ctx context.Context, externalID string) (*types.PaymentIntent, error) {
	return r.getBy(ctx, "external_id", externalID)
}

func (r *PaymentIntentRepo) getBy(ctx context.Context, column, value string) (*types.PaymentIntent, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+intentColumns+`
		 FROM payment_intents
		 WHERE `+column+` = $1`,
		value,
	)
	intent, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundIntent, "payment intent not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load payment intent", err)
	}
	return intent, nil
}

// MarkApproved transitions an intent from created to approved.
//
// The transition is idempotent: if the row is already approved (or further
// along), MarkApproved reports alreadyDone=true and no error, so repeated
// approval calls are safe.
func (r *PaymentIntentRepo) MarkApproved(ctx context.Context, id string) (alreadyDone bool, err error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE payment_intents
		 SET status = $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND status = $3`,
		types.PaymentStatusApproved,
		id,
		types.PaymentStatusCreated,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to approve payment intent", err)
	}
	if tag.RowsAffected() == 1 {
		return false, nil
	}

	// The CAS did not apply. Distinguish not-found, already-approved, and
	// invalid-state by reading the current row.
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	switch current.Status {
	case types.PaymentStatusApproved, types.PaymentStatusCompleted:
		return true, nil
	default:
		return false, types.NewAppError(
			types.ErrCodeConflictStatus,
			"payment intent is in status "+string(current.Status)+" and cannot be approved",
			nil,
		)
	}
}

// MarkCompleted transitions an intent from approved to completed, recording
// the blockchain transaction id.
//
// Idempotency: completing an already-completed intent with the same txid is a
// no-op (alreadyDone=true). A different txid on a completed intent is a
// conflict. Completing an intent that was never approved is rejected.
func (r *PaymentIntentRepo) MarkCompleted(ctx context.Context, id string, txid string) (alreadyDone bool, err error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE payment_intents
		 SET status = $1,
		     txid = $2,
		     updated_at = NOW()
		 WHERE id = $3
		   AND status = $4`,
		types.PaymentStatusCompleted,
		txid,
		id,
		types.PaymentStatusApproved,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to complete payment intent", err)
	}
	if tag.RowsAffected() == 1 {
		return false, nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	switch current.Status {
	case types.PaymentStatusCompleted:
		if current.Txid != nil && *current.Txid == txid {
			return true, nil
		}
		return false, types.NewAppError(
			types.ErrCodeConflictTxid,
			"payment intent already completed with a different txid",
			nil,
		)
	case types.PaymentStatusCreated:
		return false, types.NewAppError(
			types.ErrCodeConflictNotApproved,
			"payment intent must be approved before completion",
			nil,
		)
	default:
		return false, types.NewAppError(
			types.ErrCodeConflictStatus,
			"payment intent is in status "+string(current.Status)+" and cannot be completed",
			nil,
		)
	}
}

// MarkTerminal moves an intent to a terminal status (completed, cancelled or
// failed) from any non-terminal state, optionally recording a txid. This is
// the reconciliation path: the provider is authoritative, so the guard only
// protects already-terminal rows from being rewritten.
func (r *PaymentIntentRepo) MarkTerminal(ctx context.Context, externalID string, status types.PaymentStatus, txid *string) error {
	if !status.IsTerminal() {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "status "+string(status)+" is not terminal", nil)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE payment_intents
		 SET status = $1,
		     txid = COALESCE($2, txid),
		     updated_at = NOW()
		 WHERE external_id = $3
		   AND status IN ($4, $5)`,
		status,
		txid,
		externalID,
		types.PaymentStatusCreated,
		types.PaymentStatusApproved,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finalize payment intent", err)
	}
	if tag.RowsAffected() == 0 {
		// Row is already terminal or unknown. Reconciliation treats both as
		// a no-op; the effect ledger is what guards side effects.
		r.logger.Info("terminal status update skipped",
			slog.String("external_id", externalID),
			slog.String("status", string(status)),
		)
	}
	return nil
}

func scanIntent(row pgx.Row) (*types.PaymentIntent, error) {
	var (
		intent      types.PaymentIntent
		description *string
		checkoutURL *string
		createdAt   time.Time
		updatedAt   time.Time
	)
	err := row.Scan(
		&intent.ID,
		&intent.ExternalID,
		&intent.Amount,
		&intent.Currency,
		&description,
		&intent.Metadata,
		&intent.Status,
		&intent.Txid,
		&checkoutURL,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if description != nil {
		intent.Description = *description
	}
	if checkoutURL != nil {
		intent.CheckoutURL = *checkoutURL
	}
	intent.CreatedAt = createdAt
	intent.UpdatedAt = updatedAt
	return &intent, nil
}
