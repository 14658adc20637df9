package repository

import (
	"context"

	"ridehail/internal/domain"
)

// UserRepository defines the persistence operations for accounts.
type UserRepository interface {
	// Create adds a new user. Returns ErrDuplicate for a taken email.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetAll retrieves all users.
	GetAll(ctx context.Context) ([]*domain.User, error)

	// SetActive activates or blocks an account.
	SetActive(ctx context.Context, id string, active bool) error
}
