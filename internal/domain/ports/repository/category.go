package repository

import (
	"context"

	"quiz-payment-relay/internal/domain/model"
)

type CategoryRepository interface {
	// FindByID returns the category or domain.ErrNotFound.
	FindByID(ctx context.Context, tx Tx, id string) (*model.Category, error)
}
