package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-payment-relay/internal/domain"
	"quiz-payment-relay/internal/domain/model"
	"quiz-payment-relay/internal/domain/ports/repository"
)

var _ repository.AccessGrantRepository = (*accessRepo)(nil)

type accessRepo struct{ pool *pgxpool.Pool }

func NewAccessRepo(pool *pgxpool.Pool) *accessRepo {
	return &accessRepo{pool: pool}
}

func (r *accessRepo) Upsert(ctx context.Context, tx repository.Tx, g *model.AccessGrant) error {
	// The unique (user_id, category_id) pair plus DO NOTHING makes repeat
	// grants no-op successes under concurrent deliveries.
	const q = `
INSERT INTO user_quiz_access (user_id, category_id, access_type, granted_at, expires_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (user_id, category_id) DO NOTHING;`

	_, err := execSQL(ctx, r.pool, tx, q, g.UserID, g.CategoryID, g.AccessType, g.GrantedAt, g.ExpiresAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *accessRepo) Find(ctx context.Context, tx repository.Tx, userID, categoryID string) (*model.AccessGrant, error) {
	const q = `SELECT user_id, category_id, access_type, granted_at, expires_at FROM user_quiz_access WHERE user_id=$1 AND category_id=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, categoryID)
	if err != nil {
		return nil, err
	}

	g := &model.AccessGrant{}
	if err := row.Scan(&g.UserID, &g.CategoryID, &g.AccessType, &g.GrantedAt, &g.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return g, nil
}
