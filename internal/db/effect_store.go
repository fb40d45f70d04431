package db

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"droplink/internal/types"
)

// TxBeginner is the subset of *pgxpool.Pool needed to start transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// EffectStore applies webhook side effects transactionally. Each Apply method
// runs the effect ledger insert and the domain writes in a single database
// transaction, so an effect is either fully applied and recorded, or neither.
type EffectStore struct {
	pool   TxBeginner
	logger *slog.Logger
}

// NewEffectStore creates an EffectStore backed by the given pool.
func NewEffectStore(pool TxBeginner, logger *slog.Logger) *EffectStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &EffectStore{pool: pool, logger: logger}
}

// ApplySubscriptionGrant claims the subscription-grant effect key for the
// payment and, if this is the first claim, upserts the subscription and its
// history row. Returns applied=false when the effect was already applied by
// an earlier webhook delivery.
func (s *EffectStore) ApplySubscriptionGrant(ctx context.Context, grant types.SubscriptionGrant) (applied bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	ledger := NewEffectLedgerRepo(tx, s.logger)
	applied, err = ledger.Record(ctx, types.EffectSubscriptionGrant, grant.SourcePaymentID, map[string]any{
		"profile_id": grant.ProfileID,
		"plan":       grant.Plan,
		"period":     string(grant.Period),
		"txid":       grant.Txid,
	})
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	if err := NewSubscriptionRepo(tx, s.logger).Grant(ctx, grant); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to commit subscription grant", err)
	}
	return true, nil
}

// ApplyOrderFulfillment claims the order-fulfillment effect key for the
// payment and, if this is the first claim, records the order. Returns
// applied=false when the effect was already applied.
func (s *EffectStore) ApplyOrderFulfillment(ctx context.Context, order types.OrderRecord) (applied bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	ledger := NewEffectLedgerRepo(tx, s.logger)
	applied, err = ledger.Record(ctx, types.EffectOrderFulfillment, order.ExternalID, map[string]any{
		"profile_id": order.ProfileID,
		"product_id": order.ProductID,
		"txid":       order.Txid,
	})
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	if err := NewOrderRepo(tx, s.logger).Insert(ctx, order); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to commit order fulfillment", err)
	}
	return true, nil
}
