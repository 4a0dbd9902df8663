package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrAccessExists       = errors.New("user already has access to this category")
	ErrUnauthorized       = errors.New("unauthorized access to payment session")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidPayload     = errors.New("invalid webhook payload")
	ErrInvalidExecContext = errors.New("invalid query execution context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
