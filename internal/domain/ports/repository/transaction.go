package repository

import (
	"context"

	"quiz-payment-relay/internal/domain/model"
)

type TransactionRepository interface {
	// Insert appends one ledger row. The ledger is append-only; there is no
	// update path.
	Insert(ctx context.Context, tx Tx, rec *model.TransactionRecord) error

	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.TransactionRecord, error)
}
