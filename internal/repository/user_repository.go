package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UserRepository reads the roles the campaign service checks before writes.
// The users and businesses tables are owned by the platform.
type UserRepository struct{}

// NewUserRepository creates a new user repository
func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

// IsAdmin reports whether userID is an administrator. Unknown users are not.
func (r *UserRepository) IsAdmin(ctx context.Context, db DBExecutor, userID int64) (bool, error) {
	var isAdmin bool
	err := db.GetContext(ctx, &isAdmin, db.Rebind(`SELECT is_admin FROM users WHERE id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get user role: %w", err)
	}
	return isAdmin, nil
}

// BusinessForOwner returns the first business owned by userID.
func (r *UserRepository) BusinessForOwner(ctx context.Context, db DBExecutor, userID int64) (int64, error) {
	var businessID int64
	err := db.GetContext(ctx, &businessID,
		db.Rebind(`SELECT id FROM businesses WHERE user_id = ? ORDER BY id LIMIT 1`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get business for owner: %w", err)
	}
	return businessID, nil
}
