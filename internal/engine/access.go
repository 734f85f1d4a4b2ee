package engine

import (
	"context"
	"errors"
	"fmt"
)

// RequireAdmin returns ErrForbidden unless userID is an administrator.
func (e *Engine) RequireAdmin(ctx context.Context, userID int64) error {
	isAdmin, err := e.store.IsAdmin(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check user role: %w", err)
	}
	if !isAdmin {
		return fmt.Errorf("%w: user %d is not an administrator", ErrForbidden, userID)
	}
	return nil
}

// OperatedBusiness returns the business userID redeems tokens for, or
// ErrForbidden when the user owns none.
func (e *Engine) OperatedBusiness(ctx context.Context, userID int64) (int64, error) {
	businessID, err := e.store.BusinessForOwner(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("%w: user %d operates no business", ErrForbidden, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve business: %w", err)
	}
	return businessID, nil
}
