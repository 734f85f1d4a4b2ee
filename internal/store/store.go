// Package store implements engine.Store on sqlx repositories.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/campaign/internal/engine"
	"github.com/kkkkikiki/campaign/internal/model"
	"github.com/kkkkikiki/campaign/internal/repository"
	"github.com/kkkkikiki/campaign/internal/rules"
)

// Store runs engine operations against PostgreSQL or SQLite.
type Store struct {
	db          *sqlx.DB
	ex          repository.DBExecutor
	inTx        bool
	campaigns   *repository.CampaignRepository
	assignments *repository.AssignmentRepository
	audit       *repository.AuditRepository
	metrics     *repository.MetricsRepository
	users       *repository.UserRepository
}

var _ engine.Store = (*Store)(nil)

// New creates a Store over db.
func New(db *sqlx.DB) *Store {
	return &Store{
		db:          db,
		ex:          db,
		campaigns:   repository.NewCampaignRepository(),
		assignments: repository.NewAssignmentRepository(),
		audit:       repository.NewAuditRepository(),
		metrics:     repository.NewMetricsRepository(),
		users:       repository.NewUserRepository(),
	}
}

// Atomic runs fn inside a database transaction. Nested calls join the
// enclosing transaction.
func (s *Store) Atomic(ctx context.Context, fn func(engine.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txStore := *s
	txStore.ex = tx
	txStore.inTx = true

	if err := fn(&txStore); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) UserMetrics(ctx context.Context, userID int64) (rules.Metrics, error) {
	return s.metrics.UserMetrics(ctx, s.ex, userID)
}

func (s *Store) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	return s.users.IsAdmin(ctx, s.ex, userID)
}

func (s *Store) BusinessForOwner(ctx context.Context, userID int64) (int64, error) {
	id, err := s.users.BusinessForOwner(ctx, s.ex, userID)
	return id, mapErr(err)
}

func (s *Store) ActiveDynamicCampaigns(ctx context.Context) ([]model.Campaign, error) {
	return s.campaigns.ListActiveDynamic(ctx, s.ex)
}

func (s *Store) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	return s.campaigns.CreateCampaign(ctx, s.ex, c)
}

// GetCampaign is not part of engine.Store; the transport uses it to echo
// stored campaigns.
func (s *Store) GetCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	c, err := s.campaigns.GetCampaign(ctx, s.ex, id)
	return c, mapErr(err)
}

func (s *Store) FindAssignment(ctx context.Context, userID, campaignID int64) (*model.Assignment, error) {
	a, err := s.assignments.FindAssignment(ctx, s.ex, userID, campaignID)
	return a, mapErr(err)
}

func (s *Store) CreateAssignment(ctx context.Context, a *model.Assignment) (bool, error) {
	return s.assignments.CreateAssignment(ctx, s.ex, a)
}

func (s *Store) AssignmentForUser(ctx context.Context, id, userID int64) (*model.ActiveCampaign, error) {
	row, err := s.assignments.GetForUser(ctx, s.ex, id, userID)
	return row, mapErr(err)
}

func (s *Store) AssignmentByToken(ctx context.Context, token string) (*model.ActiveCampaign, error) {
	row, err := s.assignments.GetByToken(ctx, s.ex, token)
	return row, mapErr(err)
}

func (s *Store) UnusedAssignments(ctx context.Context, userID int64) ([]model.ActiveCampaign, error) {
	return s.assignments.ListUnused(ctx, s.ex, userID)
}

func (s *Store) SwapToken(ctx context.Context, id, userID int64, prev, token string, expiresAt time.Time) (bool, error) {
	ok, err := s.assignments.SwapToken(ctx, s.ex, id, userID, prev, token, expiresAt)
	return ok, mapErr(err)
}

func (s *Store) MarkRedeemed(ctx context.Context, id int64, token string, markUsed bool) (bool, error) {
	return s.assignments.MarkRedeemed(ctx, s.ex, id, token, markUsed)
}

func (s *Store) AppendRuleLog(ctx context.Context, entry *model.RuleEvaluationLog) error {
	return s.audit.AppendRuleLog(ctx, s.ex, entry)
}

// RuleLogs returns the evaluation history of a user against a campaign.
func (s *Store) RuleLogs(ctx context.Context, userID, campaignID int64) ([]model.RuleEvaluationLog, error) {
	return s.audit.ListRuleLogs(ctx, s.ex, userID, campaignID)
}

func (s *Store) AppendUsage(ctx context.Context, usage *model.Usage) error {
	return s.audit.AppendUsage(ctx, s.ex, usage)
}

func (s *Store) ListUsages(ctx context.Context, userID int64) ([]model.Usage, error) {
	return s.audit.ListUsages(ctx, s.ex, userID)
}

func (s *Store) LogActivity(ctx context.Context, activity model.Activity) error {
	return s.audit.LogActivity(ctx, s.ex, activity)
}

// Activities returns the activity feed entries of a user.
func (s *Store) Activities(ctx context.Context, userID int64) ([]model.Activity, error) {
	return s.audit.ListActivities(ctx, s.ex, userID)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return engine.ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", engine.ErrConflict, err)
	default:
		return err
	}
}
