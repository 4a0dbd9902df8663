package repository

import (
	"context"

	"quiz-payment-relay/internal/domain/model"
)

type AccessGrantRepository interface {
	// Upsert creates the grant if absent; a second call with the same
	// (UserID, CategoryID) is a no-op success, never an error.
	Upsert(ctx context.Context, tx Tx, g *model.AccessGrant) error

	// Find returns the active grant or domain.ErrNotFound.
	Find(ctx context.Context, tx Tx, userID, categoryID string) (*model.AccessGrant, error)
}
