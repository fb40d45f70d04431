package db

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"droplink/internal/types"
)

// SubscriptionRepo manages profile subscription state and its change history.
//
// Subscriptions are keyed by profile_id: a profile has at most one active
// subscription row, and each grant upserts it. Every grant also appends a row
// to subscription_transactions so the billing history survives upgrades and
// renewals.
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepo creates a new SubscriptionRepo backed by the given
// database connection (pool or transaction).
func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

// Grant upserts the profile's subscription to the given plan and period and
// appends a history row. Both writes should run inside the same transaction
// as the effect ledger insert so a crash cannot apply half the effect.
func (r *SubscriptionRepo) Grant(ctx context.Context, grant types.SubscriptionGrant) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions
		   (id, profile_id, plan, period, status, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'active', $5, NOW())
		 ON CONFLICT (profile_id) DO UPDATE
		 SET plan = EXCLUDED.plan,
		     period = EXCLUDED.period,
		     status = 'active',
		     expires_at = EXCLUDED.expires_at,
		     updated_at = NOW()`,
		uuid.NewString(),
		grant.ProfileID,
		grant.Plan,
		grant.Period,
		grant.ExpiresAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO subscription_transactions
		   (id, profile_id, plan, period, amount, txid, source_payment_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(),
		grant.ProfileID,
		grant.Plan,
		grant.Period,
		grant.Amount,
		grant.Txid,
		grant.SourcePaymentID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record subscription transaction", err)
	}

	r.logger.Info("subscription granted",
		slog.String("profile_id", grant.ProfileID),
		slog.String("plan", grant.Plan),
		slog.String("period", string(grant.Period)),
		slog.Time("expires_at", grant.ExpiresAt),
	)
	return nil
}
