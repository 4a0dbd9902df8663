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

var _ repository.CategoryRepository = (*categoryRepo)(nil)

type categoryRepo struct{ pool *pgxpool.Pool }

func NewCategoryRepo(pool *pgxpool.Pool) *categoryRepo {
	return &categoryRepo{pool: pool}
}

func (r *categoryRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Category, error) {
	const q = `SELECT id, name, description, quiz_type, price_amount FROM quiz_categories WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	c := &model.Category{}
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Type, &c.PriceAmount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return c, nil
}
