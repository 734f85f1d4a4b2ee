package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kkkkikiki/campaign/internal/database"
	"github.com/kkkkikiki/campaign/internal/engine"
	"github.com/kkkkikiki/campaign/internal/model"
	"github.com/kkkkikiki/campaign/internal/rules"
)

func setupTestStore(t *testing.T) (*Store, *database.DB) {
	t.Helper()

	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "campaign.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return New(db.SQL), db
}

func seedUser(t *testing.T, db *database.DB, id int64, rating *float64, reservations, comments int) {
	t.Helper()
	ctx := context.Background()

	if _, err := db.SQL.ExecContext(ctx, `INSERT INTO users (id, rating) VALUES (?, ?)`, id, rating); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	for i := 0; i < reservations; i++ {
		if _, err := db.SQL.ExecContext(ctx, `INSERT INTO reservations (user_id, business_id) VALUES (?, 1)`, id); err != nil {
			t.Fatalf("failed to seed reservation: %v", err)
		}
	}
	for i := 0; i < comments; i++ {
		if _, err := db.SQL.ExecContext(ctx, `INSERT INTO comments (user_id, business_id) VALUES (?, 1)`, id); err != nil {
			t.Fatalf("failed to seed comment: %v", err)
		}
	}
}

func newCampaign(t *testing.T, s *Store, now time.Time, raw map[string]float64, businesses ...int64) *model.Campaign {
	t.Helper()

	criteria, unknown := rules.ParseCriteria(raw)
	if len(unknown) > 0 {
		t.Fatalf("unexpected unknown criteria %v", unknown)
	}
	c := &model.Campaign{
		Title:                "Loyalty",
		StartDate:            now.Add(-time.Hour),
		EndDate:              now.Add(48 * time.Hour),
		IsActive:             true,
		IsSingleUse:          true,
		UsageDurationMinutes: 10,
		RuleType:             model.RuleTypeDynamic,
		TriggerEvent:         model.TriggerReservation,
		Criteria:             criteria,
		AllowedBusinessIDs:   businesses,
		CreatedAt:            now,
	}
	if err := s.CreateCampaign(context.Background(), c); err != nil {
		t.Fatalf("failed to create campaign: %v", err)
	}
	return c
}

func rating(v float64) *float64 { return &v }

func TestUserMetrics(t *testing.T) {
	s, db := setupTestStore(t)
	ctx := context.Background()
	seedUser(t, db, 1, rating(4.5), 3, 2)
	seedUser(t, db, 2, nil, 0, 0)

	m, err := s.UserMetrics(ctx, 1)
	if err != nil {
		t.Fatalf("UserMetrics() error = %v", err)
	}
	if m.Rating == nil || *m.Rating != 4.5 || m.ReservationCount != 3 || m.CommentCount != 2 {
		t.Errorf("UserMetrics(1) = %+v", m)
	}

	m, err = s.UserMetrics(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if m.Rating != nil {
		t.Errorf("user without rating got %v", *m.Rating)
	}

	// Unknown users have no history rather than an error.
	m, err = s.UserMetrics(ctx, 99)
	if err != nil {
		t.Fatal(err)
	}
	if m.Rating != nil || m.ReservationCount != 0 || m.CommentCount != 0 {
		t.Errorf("UserMetrics(99) = %+v", m)
	}
}

func TestUserRoles(t *testing.T) {
	s, db := setupTestStore(t)
	ctx := context.Background()
	seedUser(t, db, 1, nil, 0, 0)
	for _, stmt := range []string{
		`INSERT INTO users (id, is_admin) VALUES (2, 1)`,
		`INSERT INTO businesses (id, user_id) VALUES (8, 3)`,
		`INSERT INTO businesses (id, user_id) VALUES (5, 3)`,
	} {
		if _, err := db.SQL.ExecContext(ctx, stmt); err != nil {
			t.Fatal(err)
		}
	}

	for userID, want := range map[int64]bool{1: false, 2: true, 99: false} {
		got, err := s.IsAdmin(ctx, userID)
		if err != nil {
			t.Fatalf("IsAdmin(%d) error = %v", userID, err)
		}
		if got != want {
			t.Errorf("IsAdmin(%d) = %v, want %v", userID, got, want)
		}
	}

	businessID, err := s.BusinessForOwner(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if businessID != 5 {
		t.Errorf("BusinessForOwner(3) = %d, want 5", businessID)
	}
	if _, err := s.BusinessForOwner(ctx, 1); !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("BusinessForOwner(1) error = %v, want ErrNotFound", err)
	}
}

func TestCampaignRoundTrip(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	created := newCampaign(t, s, now, map[string]float64{"min_rating": 4, "min_comments": 1}, 3, 8)
	got, err := s.GetCampaign(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetCampaign() error = %v", err)
	}

	if got.Title != created.Title || !got.StartDate.Equal(created.StartDate) || !got.EndDate.Equal(created.EndDate) {
		t.Errorf("GetCampaign() = %+v", got)
	}
	if got.RuleType != model.RuleTypeDynamic || got.TriggerEvent != model.TriggerReservation {
		t.Errorf("rule type/trigger = %s/%s", got.RuleType, got.TriggerEvent)
	}
	raw := got.Criteria.Raw()
	if len(raw) != 2 || raw["min_rating"] != 4 || raw["min_comments"] != 1 {
		t.Errorf("criteria = %v", raw)
	}
	if len(got.AllowedBusinessIDs) != 2 || got.AllowedBusinessIDs[0] != 3 || got.AllowedBusinessIDs[1] != 8 {
		t.Errorf("AllowedBusinessIDs = %v", got.AllowedBusinessIDs)
	}

	if _, err := s.GetCampaign(ctx, 999); !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("GetCampaign(999) error = %v, want ErrNotFound", err)
	}

	inactive := newCampaign(t, s, now, nil)
	if _, err := s.db.ExecContext(ctx, `UPDATE campaigns SET is_active = 0 WHERE id = ?`, inactive.ID); err != nil {
		t.Fatal(err)
	}
	dynamic, err := s.ActiveDynamicCampaigns(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dynamic) != 1 || dynamic[0].ID != created.ID {
		t.Errorf("ActiveDynamicCampaigns() = %+v", dynamic)
	}
}

func TestCreateAssignmentIsIdempotent(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	c := newCampaign(t, s, now, nil)

	first := &model.Assignment{UserID: 1, CampaignID: c.ID, AssignedAt: now, AssignedByRuleEngine: true}
	created, err := s.CreateAssignment(ctx, first)
	if err != nil || !created || first.ID == 0 {
		t.Fatalf("CreateAssignment() = %v, %v (id %d)", created, err, first.ID)
	}

	dup := &model.Assignment{UserID: 1, CampaignID: c.ID, AssignedAt: now}
	created, err = s.CreateAssignment(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate CreateAssignment() error = %v", err)
	}
	if created {
		t.Error("duplicate assignment reported as created")
	}

	got, err := s.FindAssignment(ctx, 1, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != first.ID || !got.AssignedByRuleEngine {
		t.Errorf("FindAssignment() = %+v", got)
	}
	if _, err := s.FindAssignment(ctx, 2, c.ID); !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("FindAssignment(2) error = %v, want ErrNotFound", err)
	}
}

func TestSwapTokenIsConditional(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	c := newCampaign(t, s, now, nil)
	a := &model.Assignment{UserID: 1, CampaignID: c.ID, AssignedAt: now}
	if _, err := s.CreateAssignment(ctx, a); err != nil {
		t.Fatal(err)
	}
	expires := now.Add(10 * time.Minute)

	ok, err := s.SwapToken(ctx, a.ID, 1, "", "tok-1", expires)
	if err != nil || !ok {
		t.Fatalf("first swap = %v, %v", ok, err)
	}
	// A stale expectation loses.
	if ok, err := s.SwapToken(ctx, a.ID, 1, "", "tok-2", expires); err != nil || ok {
		t.Errorf("stale swap = %v, %v, want false", ok, err)
	}
	// Another user's assignment never matches.
	if ok, err := s.SwapToken(ctx, a.ID, 2, "tok-1", "tok-3", expires); err != nil || ok {
		t.Errorf("foreign swap = %v, %v, want false", ok, err)
	}
	if ok, err := s.SwapToken(ctx, a.ID, 1, "tok-1", "tok-4", expires.Add(time.Minute)); err != nil || !ok {
		t.Errorf("chained swap = %v, %v", ok, err)
	}

	row, err := s.AssignmentByToken(ctx, "tok-4")
	if err != nil {
		t.Fatal(err)
	}
	if row.Assignment.ID != a.ID || !row.Assignment.TokenExpiresAt.Equal(expires.Add(time.Minute)) {
		t.Errorf("AssignmentByToken() = %+v", row.Assignment)
	}
	if _, err := s.AssignmentByToken(ctx, "tok-1"); !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("old token lookup error = %v, want ErrNotFound", err)
	}

	// Tokens are unique across assignments.
	other := &model.Assignment{UserID: 2, CampaignID: c.ID, AssignedAt: now}
	if _, err := s.CreateAssignment(ctx, other); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SwapToken(ctx, other.ID, 2, "", "tok-4", expires); !errors.Is(err, engine.ErrConflict) {
		t.Errorf("duplicate token error = %v, want ErrConflict", err)
	}
}

func TestMarkRedeemed(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	c := newCampaign(t, s, now, nil)
	a := &model.Assignment{UserID: 1, CampaignID: c.ID, AssignedAt: now}
	if _, err := s.CreateAssignment(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SwapToken(ctx, a.ID, 1, "", "tok", now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	if ok, err := s.MarkRedeemed(ctx, a.ID, "wrong", true); err != nil || ok {
		t.Errorf("wrong token = %v, %v, want false", ok, err)
	}
	if ok, err := s.MarkRedeemed(ctx, a.ID, "tok", true); err != nil || !ok {
		t.Fatalf("MarkRedeemed() = %v, %v", ok, err)
	}
	if ok, err := s.MarkRedeemed(ctx, a.ID, "tok", true); err != nil || ok {
		t.Errorf("second redemption = %v, %v, want false", ok, err)
	}

	row, err := s.AssignmentForUser(ctx, a.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !row.Assignment.IsUsed || row.Assignment.Token != nil || row.Assignment.TokenExpiresAt != nil {
		t.Errorf("assignment after redemption = %+v", row.Assignment)
	}

	unused, err := s.UnusedAssignments(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(unused) != 0 {
		t.Errorf("UnusedAssignments() = %d rows, want 0", len(unused))
	}
}

func TestAtomicRollsBack(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	c := newCampaign(t, s, now, nil)
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(tx engine.Store) error {
		if _, err := tx.CreateAssignment(ctx, &model.Assignment{UserID: 1, CampaignID: c.ID, AssignedAt: now}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Atomic() error = %v, want boom", err)
	}
	if _, err := s.FindAssignment(ctx, 1, c.ID); !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("assignment survived rollback: %v", err)
	}
}

func TestEngineFlow(t *testing.T) {
	s, db := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	clock := now
	eng := engine.New(s, engine.WithClock(func() time.Time { return clock }))

	seedUser(t, db, 1, rating(4.5), 3, 0)
	rated := newCampaign(t, s, now, map[string]float64{"min_rating": 4}, 11)
	busy := newCampaign(t, s, now, map[string]float64{"min_reservations": 5})

	result, err := eng.AssignEligibleCampaigns(ctx, 1)
	if err != nil {
		t.Fatalf("AssignEligibleCampaigns() error = %v", err)
	}
	if len(result.Assigned) != 1 || result.Assigned[0].CampaignID != rated.ID {
		t.Fatalf("Assigned = %+v", result.Assigned)
	}

	logs, err := s.RuleLogs(ctx, 1, busy.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Eligible || logs[0].Results["min_reservations"] || logs[0].RunID != result.RunID {
		t.Errorf("RuleLogs(busy) = %+v", logs)
	}

	if _, err := eng.AssignEligibleCampaigns(ctx, 1); err != nil {
		t.Fatal(err)
	}
	listed, err := eng.ListActiveCampaigns(ctx, 1, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 || listed[0].Campaign.ID != rated.ID {
		t.Fatalf("ListActiveCampaigns() = %+v", listed)
	}
	assignmentID := listed[0].Assignment.ID

	business := int64(11)
	token, err := eng.UseCampaign(ctx, assignmentID, 1, &business)
	if err != nil {
		t.Fatalf("UseCampaign() error = %v", err)
	}
	clock = now.Add(5 * time.Minute)
	again, err := eng.UseCampaign(ctx, assignmentID, 1, &business)
	if err != nil {
		t.Fatal(err)
	}
	if again.Value != token.Value || !again.ExpiresAt.Equal(token.ExpiresAt) {
		t.Errorf("token changed within validity: %+v vs %+v", again, token)
	}

	if _, err := eng.RedeemToken(ctx, token.Value, 12); !errors.Is(err, engine.ErrBusinessNotAllowed) {
		t.Errorf("redeem at wrong business error = %v", err)
	}
	usage, err := eng.RedeemToken(ctx, token.Value, 11)
	if err != nil {
		t.Fatalf("RedeemToken() error = %v", err)
	}
	if usage.CampaignID != rated.ID {
		t.Errorf("usage = %+v", usage)
	}

	usages, err := eng.ListUsages(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(usages) != 1 || usages[0].CampaignID != rated.ID || usages[0].BusinessID != 11 {
		t.Errorf("ListUsages() = %+v", usages)
	}
	if _, err := eng.UseCampaign(ctx, assignmentID, 1, nil); !errors.Is(err, engine.ErrAlreadyUsed) {
		t.Errorf("UseCampaign after redemption error = %v, want ErrAlreadyUsed", err)
	}

	activities, err := s.Activities(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(activities) != 2 {
		t.Fatalf("got %d activities, want 2", len(activities))
	}
	if activities[0].ActionType != model.ActionCampaignUsage || activities[1].ActionType != model.ActionCampaignRedeemed {
		t.Errorf("activities = %+v", activities)
	}
}

func TestConcurrentUseCampaignSharesToken(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	c := newCampaign(t, s, now, nil)
	a := &model.Assignment{UserID: 1, CampaignID: c.ID, AssignedAt: now}
	if _, err := s.CreateAssignment(ctx, a); err != nil {
		t.Fatal(err)
	}
	eng := engine.New(s)

	const workers = 8
	tokens := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := eng.UseCampaign(ctx, a.ID, 1, nil)
			if err != nil {
				errs[i] = err
				return
			}
			tokens[i] = token.Value
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if tokens[i] != tokens[0] {
			t.Errorf("worker %d got token %q, want %q", i, tokens[i], tokens[0])
		}
	}
}
