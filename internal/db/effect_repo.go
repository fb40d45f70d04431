package db

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"droplink/internal/types"
)

// EffectLedgerRepo records applied side effects. Each effect has a unique
// key derived from its kind and the payment's external id; the UNIQUE
// constraint on that key is the sole idempotency mechanism for webhook
// processing. No row means the effect has never been applied.
type EffectLedgerRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewEffectLedgerRepo creates a new EffectLedgerRepo backed by the given
// database connection (pool or transaction).
func NewEffectLedgerRepo(db DBTX, logger *slog.Logger) *EffectLedgerRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &EffectLedgerRepo{db: db, logger: logger}
}

// Record claims an effect key. It returns applied=true when this call
// inserted the row and the caller must now perform the side effect, or
// applied=false when the key already exists and the effect was applied by an
// earlier delivery.
//
// The insert uses ON CONFLICT DO NOTHING so concurrent deliveries of the same
// webhook race safely: exactly one of them observes applied=true.
func (r *EffectLedgerRepo) Record(ctx context.Context, kind types.EffectKind, externalID string, payload map[string]any) (applied bool, err error) {
	key := kind.Key(externalID)
	tag, err := r.db.Exec(ctx,
		`INSERT INTO effect_ledger (id, key, kind, payload)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO NOTHING`,
		uuid.NewString(),
		key,
		kind,
		payload,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record effect", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Info("effect already applied; skipping",
			slog.String("effect_key", key),
		)
		return false, nil
	}
	return true, nil
}
