package billing

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/squirrelhq/billing-service/internal/shared/config"
	"github.com/squirrelhq/billing-service/internal/shared/metrics"
)

// --- Mock implementations ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) EnsureAccount(ctx context.Context, account AccountScope) (*AccountState, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AccountState), args.Error(1)
}

func (m *MockRepository) GetAccount(ctx context.Context, account AccountScope) (*AccountState, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AccountState), args.Error(1)
}

func (m *MockRepository) AddCredits(ctx context.Context, account AccountScope, amount int64, eventType string, metadata map[string]any) (*AccountState, error) {
	args := m.Called(ctx, account, amount, eventType, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AccountState), args.Error(1)
}

func (m *MockRepository) DeductCredits(ctx context.Context, account AccountScope, amount int64, eventType string, metadata map[string]any) (*AccountState, error) {
	args := m.Called(ctx, account, amount, eventType, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AccountState), args.Error(1)
}

func (m *MockRepository) AppendEvent(ctx context.Context, account AccountScope, eventType string, amount int64, metadata map[string]any) (*UsageEvent, error) {
	args := m.Called(ctx, account, eventType, amount, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UsageEvent), args.Error(1)
}

func (m *MockRepository) ListEvents(ctx context.Context, account AccountScope, filter UsageFilter) ([]*UsageEvent, error) {
	args := m.Called(ctx, account, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*UsageEvent), args.Error(1)
}

func (m *MockRepository) SumEventAmounts(ctx context.Context, account AccountScope, from, to time.Time) (int64, error) {
	args := m.Called(ctx, account, from, to)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) SetPlan(ctx context.Context, account AccountScope, planName string) (*AccountState, error) {
	args := m.Called(ctx, account, planName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AccountState), args.Error(1)
}

type MockPlanFinder struct {
	mock.Mock
}

func (m *MockPlanFinder) FindByName(ctx context.Context, name string) (*Plan, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Plan), args.Error(1)
}

// --- In-memory repository for concurrency tests ---

// fakeRepo mimics the transactional repository semantics in memory so
// the ledger's concurrency contract can be exercised without Postgres.
type fakeRepo struct {
	mu       sync.Mutex
	balances map[AccountScope]int64
	plans    map[AccountScope]string
	events   map[AccountScope][]*UsageEvent
	nextID   int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		balances: make(map[AccountScope]int64),
		plans:    make(map[AccountScope]string),
		events:   make(map[AccountScope][]*UsageEvent),
	}
}

func (f *fakeRepo) ensureLocked(account AccountScope) {
	if _, ok := f.plans[account]; !ok {
		f.plans[account] = PlanFree
		f.balances[account] = DefaultCreditsFor(PlanFree)
	}
}

func (f *fakeRepo) stateLocked(account AccountScope) *AccountState {
	plan := f.plans[account]
	return &AccountState{
		AccountID:      account.ID,
		Scope:          account.Scope,
		CurrentPlan:    &plan,
		CreditsBalance: f.balances[account],
		Status:         AccountStatusActive,
	}
}

func (f *fakeRepo) appendLocked(account AccountScope, eventType string, amount int64, metadata map[string]any) *UsageEvent {
	f.nextID++
	event := &UsageEvent{
		ID:        f.nextID,
		AccountID: account.ID,
		Scope:     account.Scope,
		Type:      eventType,
		Amount:    amount,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	f.events[account] = append(f.events[account], event)
	return event
}

func (f *fakeRepo) EnsureAccount(ctx context.Context, account AccountScope) (*AccountState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureLocked(account)
	return f.stateLocked(account), nil
}

func (f *fakeRepo) GetAccount(ctx context.Context, account AccountScope) (*AccountState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.plans[account]; !ok {
		return nil, ErrAccountNotFound
	}
	return f.stateLocked(account), nil
}

func (f *fakeRepo) AddCredits(ctx context.Context, account AccountScope, amount int64, eventType string, metadata map[string]any) (*AccountState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureLocked(account)
	f.balances[account] += amount
	f.appendLocked(account, eventType, amount, metadata)
	return f.stateLocked(account), nil
}

func (f *fakeRepo) DeductCredits(ctx context.Context, account AccountScope, amount int64, eventType string, metadata map[string]any) (*AccountState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureLocked(account)
	if f.balances[account] < amount {
		return nil, ErrInsufficientCredit
	}
	f.balances[account] -= amount
	f.appendLocked(account, eventType, amount, metadata)
	return f.stateLocked(account), nil
}

func (f *fakeRepo) AppendEvent(ctx context.Context, account AccountScope, eventType string, amount int64, metadata map[string]any) (*UsageEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appendLocked(account, eventType, amount, metadata), nil
}

func (f *fakeRepo) ListEvents(ctx context.Context, account AccountScope, filter UsageFilter) ([]*UsageEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.events[account]
	var out []*UsageEvent
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.From != nil && e.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.CreatedAt.After(*filter.To) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) SumEventAmounts(ctx context.Context, account AccountScope, from, to time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, e := range f.events[account] {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			total += e.Amount
		}
	}
	return total, nil
}

func (f *fakeRepo) SetPlan(ctx context.Context, account AccountScope, planName string) (*AccountState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureLocked(account)
	f.plans[account] = planName
	return f.stateLocked(account), nil
}

// --- Helpers ---

func testBillingConfig() config.BillingConfig {
	return config.BillingConfig{
		UsageReportTopic:     "billing.usage.reported",
		PlanChangedTopic:     "billing.plan.changed",
		CreditsAdjustedTopic: "billing.credits.adjusted",
		Currency:             "USD",
		CommitTimeout:        5 * time.Second,
		HistoryLimit:         50,
	}
}

func newTestLedger(repo Repository) *Ledger {
	m := metrics.NewWith("test", prometheus.NewRegistry())
	return NewLedger(repo, testBillingConfig(), m, zap.NewNop())
}
