package model

import "time"

type AccessType string

const (
	AccessTypeFree AccessType = "free"
	AccessTypePaid AccessType = "paid"
)

// AccessGrant is the durable record that a user is entitled to a quiz
// category, independent of how payment was achieved. At most one active
// grant exists per (UserID, CategoryID).
type AccessGrant struct {
	UserID     string
	CategoryID string
	AccessType AccessType
	GrantedAt  time.Time
	ExpiresAt  *time.Time // nil: perpetual access (current policy)
}
