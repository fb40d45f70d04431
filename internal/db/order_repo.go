package db

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"droplink/internal/types"
)

// OrderRepo records fulfilled product orders in payment_transactions.
type OrderRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewOrderRepo creates a new OrderRepo backed by the given database
// connection (pool or transaction).
func NewOrderRepo(db DBTX, logger *slog.Logger) *OrderRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderRepo{db: db, logger: logger}
}

// Insert appends a confirmed order row. Duplicate protection lives in the
// effect ledger, not here, so Insert always writes.
func (r *OrderRepo) Insert(ctx context.Context, order types.OrderRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO payment_transactions
		   (id, profile_id, product_id, external_id, amount, txid, memo, status, metadata, confirmed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.NewString(),
		order.ProfileID,
		order.ProductID,
		order.ExternalID,
		order.Amount,
		order.Txid,
		order.Memo,
		order.Status,
		order.Metadata,
		order.ConfirmedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record order", err)
	}

	r.logger.Info("order recorded",
		slog.String("profile_id", order.ProfileID),
		slog.String("product_id", order.ProductID),
		slog.String("external_id", order.ExternalID),
	)
	return nil
}
