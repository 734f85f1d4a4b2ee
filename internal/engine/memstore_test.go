package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kkkkikiki/campaign/internal/model"
	"github.com/kkkkikiki/campaign/internal/rules"
)

var errInjected = errors.New("injected failure")

// memState is the data behind memStore. Atomic works on a copy and swaps it
// in on success.
type memState struct {
	nextID      int64
	campaigns   map[int64]model.Campaign
	assignments map[int64]model.Assignment
	metrics     map[int64]rules.Metrics
	admins      map[int64]bool
	businesses  map[int64]int64 // owner user ID to business ID
	ruleLogs    []model.RuleEvaluationLog
	usages      []model.Usage
	activities  []model.Activity

	// failRuleLogAt makes the n-th AppendRuleLog call (1-based) fail.
	failRuleLogAt int
	ruleLogCalls  int
	// beforeSwap runs at the start of SwapToken.
	beforeSwap func(s *memState)
}

func (s *memState) clone() *memState {
	c := *s
	c.campaigns = make(map[int64]model.Campaign, len(s.campaigns))
	for k, v := range s.campaigns {
		c.campaigns[k] = v
	}
	c.assignments = make(map[int64]model.Assignment, len(s.assignments))
	for k, v := range s.assignments {
		c.assignments[k] = v
	}
	c.metrics = make(map[int64]rules.Metrics, len(s.metrics))
	for k, v := range s.metrics {
		c.metrics[k] = v
	}
	c.admins = make(map[int64]bool, len(s.admins))
	for k, v := range s.admins {
		c.admins[k] = v
	}
	c.businesses = make(map[int64]int64, len(s.businesses))
	for k, v := range s.businesses {
		c.businesses[k] = v
	}
	c.ruleLogs = append([]model.RuleEvaluationLog(nil), s.ruleLogs...)
	c.usages = append([]model.Usage(nil), s.usages...)
	c.activities = append([]model.Activity(nil), s.activities...)
	return &c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

type memTx struct {
	s *memState
}

func (t *memTx) UserMetrics(ctx context.Context, userID int64) (rules.Metrics, error) {
	return t.s.metrics[userID], nil
}

func (t *memTx) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	return t.s.admins[userID], nil
}

func (t *memTx) BusinessForOwner(ctx context.Context, userID int64) (int64, error) {
	id, ok := t.s.businesses[userID]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

func (t *memTx) ActiveDynamicCampaigns(ctx context.Context) ([]model.Campaign, error) {
	var out []model.Campaign
	for _, c := range t.s.campaigns {
		if c.RuleType == model.RuleTypeDynamic && c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	c.ID = t.s.id()
	t.s.campaigns[c.ID] = *c
	return nil
}

func (t *memTx) FindAssignment(ctx context.Context, userID, campaignID int64) (*model.Assignment, error) {
	for _, a := range t.s.assignments {
		if a.UserID == userID && a.CampaignID == campaignID {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) CreateAssignment(ctx context.Context, a *model.Assignment) (bool, error) {
	if _, err := t.FindAssignment(ctx, a.UserID, a.CampaignID); err == nil {
		return false, nil
	}
	a.ID = t.s.id()
	t.s.assignments[a.ID] = *a
	return true, nil
}

func (t *memTx) joined(a model.Assignment) *model.ActiveCampaign {
	return &model.ActiveCampaign{Assignment: a, Campaign: t.s.campaigns[a.CampaignID]}
}

func (t *memTx) AssignmentForUser(ctx context.Context, id, userID int64) (*model.ActiveCampaign, error) {
	a, ok := t.s.assignments[id]
	if !ok || a.UserID != userID {
		return nil, ErrNotFound
	}
	return t.joined(a), nil
}

func (t *memTx) AssignmentByToken(ctx context.Context, token string) (*model.ActiveCampaign, error) {
	for _, a := range t.s.assignments {
		if a.Token != nil && *a.Token == token {
			return t.joined(a), nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) UnusedAssignments(ctx context.Context, userID int64) ([]model.ActiveCampaign, error) {
	var out []model.ActiveCampaign
	for _, a := range t.s.assignments {
		if a.UserID == userID && !a.IsUsed {
			out = append(out, *t.joined(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Assignment.ID < out[j].Assignment.ID })
	return out, nil
}

func (t *memTx) SwapToken(ctx context.Context, id, userID int64, prev, token string, expiresAt time.Time) (bool, error) {
	if t.s.beforeSwap != nil {
		hook := t.s.beforeSwap
		t.s.beforeSwap = nil
		hook(t.s)
	}
	a, ok := t.s.assignments[id]
	if !ok || a.UserID != userID || a.CurrentToken() != prev {
		return false, nil
	}
	a.Token = &token
	a.TokenExpiresAt = &expiresAt
	t.s.assignments[id] = a
	return true, nil
}

func (t *memTx) MarkRedeemed(ctx context.Context, id int64, token string, markUsed bool) (bool, error) {
	a, ok := t.s.assignments[id]
	if !ok || a.IsUsed || a.CurrentToken() != token {
		return false, nil
	}
	a.IsUsed = markUsed
	a.Token = nil
	a.TokenExpiresAt = nil
	t.s.assignments[id] = a
	return true, nil
}

func (t *memTx) AppendRuleLog(ctx context.Context, entry *model.RuleEvaluationLog) error {
	t.s.ruleLogCalls++
	if t.s.failRuleLogAt > 0 && t.s.ruleLogCalls == t.s.failRuleLogAt {
		return errInjected
	}
	entry.ID = t.s.id()
	t.s.ruleLogs = append(t.s.ruleLogs, *entry)
	return nil
}

func (t *memTx) AppendUsage(ctx context.Context, usage *model.Usage) error {
	usage.ID = t.s.id()
	t.s.usages = append(t.s.usages, *usage)
	return nil
}

func (t *memTx) ListUsages(ctx context.Context, userID int64) ([]model.Usage, error) {
	var out []model.Usage
	for i := len(t.s.usages) - 1; i >= 0; i-- {
		if t.s.usages[i].UserID == userID {
			out = append(out, t.s.usages[i])
		}
	}
	return out, nil
}

func (t *memTx) LogActivity(ctx context.Context, activity model.Activity) error {
	t.s.activities = append(t.s.activities, activity)
	return nil
}

func (t *memTx) Atomic(ctx context.Context, fn func(Store) error) error {
	return fn(t)
}

// memStore is an in-memory Store for engine tests. It is not safe for
// concurrent use outside Atomic.
type memStore struct {
	mu sync.Mutex
	*memTx
}

func newMemStore() *memStore {
	return &memStore{memTx: &memTx{s: &memState{
		campaigns:   make(map[int64]model.Campaign),
		assignments: make(map[int64]model.Assignment),
		metrics:     make(map[int64]rules.Metrics),
		admins:      make(map[int64]bool),
		businesses:  make(map[int64]int64),
	}}}
}

func (m *memStore) Atomic(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.s.clone()
	if err := fn(&memTx{s: work}); err != nil {
		// Keep the failure counters so injected failures fire once.
		m.s.ruleLogCalls = work.ruleLogCalls
		m.s.beforeSwap = work.beforeSwap
		return err
	}
	m.s = work
	return nil
}

func (m *memStore) addCampaign(c model.Campaign) model.Campaign {
	c.ID = m.s.id()
	if c.UsageDurationMinutes == 0 {
		c.UsageDurationMinutes = model.DefaultUsageDurationMinutes
	}
	m.s.campaigns[c.ID] = c
	return c
}

func (m *memStore) addAssignment(a model.Assignment) model.Assignment {
	a.ID = m.s.id()
	m.s.assignments[a.ID] = a
	return a
}

func (m *memStore) assignmentsFor(userID int64) []model.Assignment {
	var out []model.Assignment
	for _, a := range m.s.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
