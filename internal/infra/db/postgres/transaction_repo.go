package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-payment-relay/internal/domain"
	"quiz-payment-relay/internal/domain/model"
	"quiz-payment-relay/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct{ pool *pgxpool.Pool }

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

func (r *transactionRepo) Insert(ctx context.Context, tx repository.Tx, rec *model.TransactionRecord) error {
	const q = `
INSERT INTO quiz_transactions (
  id, session_id, user_id, category_id, gateway, gateway_transaction_id, webhook_id,
  expected_amount, actual_amount, discount, discount_percentage, coupon_used,
  matching_method, raw_payload, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15);`

	_, err := execSQL(ctx, r.pool, tx, q,
		rec.ID, rec.SessionID, rec.UserID, rec.CategoryID, rec.Gateway, rec.GatewayTransactionID, rec.WebhookID,
		rec.ExpectedAmount, rec.ActualAmount, rec.Discount, rec.DiscountPercentage, rec.CouponUsed,
		rec.MatchingMethod, rec.RawPayload, rec.CreatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *transactionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.TransactionRecord, error) {
	const q = `
SELECT id, session_id, user_id, category_id, gateway, gateway_transaction_id, webhook_id,
       expected_amount, actual_amount, discount, discount_percentage, coupon_used,
       matching_method, raw_payload, created_at
FROM quiz_transactions WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2;`

	rows, err := queryRows(ctx, r.pool, tx, q, userID, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.TransactionRecord
	for rows.Next() {
		rec := &model.TransactionRecord{}
		err := rows.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.CategoryID, &rec.Gateway,
			&rec.GatewayTransactionID, &rec.WebhookID, &rec.ExpectedAmount, &rec.ActualAmount,
			&rec.Discount, &rec.DiscountPercentage, &rec.CouponUsed, &rec.MatchingMethod,
			&rec.RawPayload, &rec.CreatedAt)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}
