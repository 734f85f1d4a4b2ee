package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kkkkikiki/campaign/internal/rules"
)

// MetricsRepository reads the user history the rule engine evaluates. The
// underlying tables are owned by the user, reservation and comment services.
type MetricsRepository struct{}

// NewMetricsRepository creates a new metrics repository
func NewMetricsRepository() *MetricsRepository {
	return &MetricsRepository{}
}

// UserMetrics returns the rating, reservation count and comment count of a
// user. A user without a profile row has no rating.
func (r *MetricsRepository) UserMetrics(ctx context.Context, db DBExecutor, userID int64) (rules.Metrics, error) {
	var m rules.Metrics

	var rating sql.NullFloat64
	err := db.GetContext(ctx, &rating, db.Rebind(`SELECT rating FROM users WHERE id = ?`), userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return m, fmt.Errorf("failed to get user rating: %w", err)
	}
	if rating.Valid {
		v := rating.Float64
		m.Rating = &v
	}

	err = db.GetContext(ctx, &m.ReservationCount,
		db.Rebind(`SELECT COUNT(*) FROM reservations WHERE user_id = ?`), userID)
	if err != nil {
		return m, fmt.Errorf("failed to count reservations: %w", err)
	}

	err = db.GetContext(ctx, &m.CommentCount,
		db.Rebind(`SELECT COUNT(*) FROM comments WHERE user_id = ?`), userID)
	if err != nil {
		return m, fmt.Errorf("failed to count comments: %w", err)
	}

	return m, nil
}
