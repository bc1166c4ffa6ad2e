package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestLedger_AddCredits(t *testing.T) {
	account := UserScope("user-1")

	t.Run("success", func(t *testing.T) {
		repo := new(MockRepository)
		ledger := newTestLedger(repo)

		repo.On("AddCredits", mock.Anything, account, int64(500), EventCreditsAdded,
			map[string]any{"reason": "bonus"}).
			Return(&AccountState{AccountID: "user-1", Scope: ScopeUser, CreditsBalance: 1500}, nil)

		state, err := ledger.AddCredits(context.Background(), account, 500, "bonus")

		assert.NoError(t, err)
		assert.Equal(t, int64(1500), state.CreditsBalance)
		repo.AssertExpectations(t)
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		repo := new(MockRepository)
		ledger := newTestLedger(repo)

		state, err := ledger.AddCredits(context.Background(), account, 0, "bonus")

		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.Nil(t, state)
		repo.AssertNotCalled(t, "AddCredits")
	})

	t.Run("negative amount rejected", func(t *testing.T) {
		repo := new(MockRepository)
		ledger := newTestLedger(repo)

		state, err := ledger.AddCredits(context.Background(), account, -100, "bonus")

		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.Nil(t, state)
		repo.AssertNotCalled(t, "AddCredits")
	})

	t.Run("invalid scope rejected", func(t *testing.T) {
		repo := new(MockRepository)
		ledger := newTestLedger(repo)

		_, err := ledger.AddCredits(context.Background(), AccountScope{}, 100, "bonus")

		assert.ErrorIs(t, err, ErrInvalidScope)
	})
}

func TestLedger_DeductCredits(t *testing.T) {
	account := UserScope("user-1")

	t.Run("success", func(t *testing.T) {
		repo := new(MockRepository)
		ledger := newTestLedger(repo)

		repo.On("DeductCredits", mock.Anything, account, int64(200), "ai_call", mock.Anything).
			Return(&AccountState{AccountID: "user-1", Scope: ScopeUser, CreditsBalance: 1300}, nil)

		state, err := ledger.DeductCredits(context.Background(), account, 200, "ai_call", nil)

		assert.NoError(t, err)
		assert.Equal(t, int64(1300), state.CreditsBalance)
		repo.AssertExpectations(t)
	})

	t.Run("negative amount rejected", func(t *testing.T) {
		repo := new(MockRepository)
		ledger := newTestLedger(repo)

		_, err := ledger.DeductCredits(context.Background(), account, -1, "ai_call", nil)

		assert.ErrorIs(t, err, ErrInvalidAmount)
		repo.AssertNotCalled(t, "DeductCredits")
	})

	t.Run("zero amount allowed", func(t *testing.T) {
		repo := new(MockRepository)
		ledger := newTestLedger(repo)

		repo.On("DeductCredits", mock.Anything, account, int64(0), "ping", mock.Anything).
			Return(&AccountState{AccountID: "user-1", Scope: ScopeUser, CreditsBalance: 1000}, nil)

		_, err := ledger.DeductCredits(context.Background(), account, 0, "ping", nil)

		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("insufficient credit surfaces", func(t *testing.T) {
		repo := new(MockRepository)
		ledger := newTestLedger(repo)

		repo.On("DeductCredits", mock.Anything, account, int64(5000), "overuse", mock.Anything).
			Return(nil, ErrInsufficientCredit)

		_, err := ledger.DeductCredits(context.Background(), account, 5000, "overuse", nil)

		assert.ErrorIs(t, err, ErrInsufficientCredit)
	})
}

func TestLedger_RecordUsage(t *testing.T) {
	account := OrgScope("org-1")

	t.Run("ensures account then appends", func(t *testing.T) {
		repo := new(MockRepository)
		ledger := newTestLedger(repo)

		repo.On("EnsureAccount", mock.Anything, account).
			Return(&AccountState{AccountID: "org-1", Scope: ScopeOrganization, CreditsBalance: 1000}, nil)
		repo.On("AppendEvent", mock.Anything, account, "export", int64(10), mock.Anything).
			Return(&UsageEvent{ID: 1, AccountID: "org-1", Type: "export", Amount: 10}, nil)

		event, err := ledger.RecordUsage(context.Background(), account, "export", 10, nil)

		assert.NoError(t, err)
		assert.Equal(t, "export", event.Type)
		assert.Equal(t, int64(10), event.Amount)
		repo.AssertExpectations(t)
	})
}

func TestLedger_Overview(t *testing.T) {
	account := UserScope("user-1")
	repo := new(MockRepository)
	ledger := newTestLedger(repo)

	freePlan := PlanFree
	repo.On("EnsureAccount", mock.Anything, account).
		Return(&AccountState{AccountID: "user-1", Scope: ScopeUser, CurrentPlan: &freePlan, CreditsBalance: 700}, nil)
	repo.On("ListEvents", mock.Anything, account, UsageFilter{Limit: 50}).
		Return([]*UsageEvent{{ID: 2, Type: "ai_call"}, {ID: 1, Type: EventCreditsAdded}}, nil)

	overview, err := ledger.Overview(context.Background(), account)

	assert.NoError(t, err)
	assert.Equal(t, int64(700), overview.Balance)
	assert.Equal(t, PlanFree, overview.Plan)
	assert.Len(t, overview.Events, 2)
	repo.AssertExpectations(t)
}

func TestLedger_PeriodTotal(t *testing.T) {
	repo := newFakeRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()
	account := OrgScope("org-2")

	_, err := ledger.RecordUsage(ctx, account, "ai_call", 40, nil)
	assert.NoError(t, err)
	_, err = ledger.RecordUsage(ctx, account, "export", 60, nil)
	assert.NoError(t, err)

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)
	total, err := ledger.PeriodTotal(ctx, account, from, to)

	assert.NoError(t, err)
	assert.Equal(t, int64(100), total)

	// Empty window.
	total, err = ledger.PeriodTotal(ctx, account, from.Add(-2*time.Hour), from)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

// Full walk through the credit lifecycle against the in-memory
// repository.
func TestLedger_Lifecycle(t *testing.T) {
	repo := newFakeRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()
	account := UserScope("user-42")

	state, err := ledger.Ensure(ctx, account)
	assert.NoError(t, err)
	assert.Equal(t, int64(1000), state.CreditsBalance)
	assert.Equal(t, PlanFree, state.PlanName())

	state, err = ledger.AddCredits(ctx, account, 500, "bonus")
	assert.NoError(t, err)
	assert.Equal(t, int64(1500), state.CreditsBalance)

	state, err = ledger.DeductCredits(ctx, account, 200, "ai_call", nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(1300), state.CreditsBalance)

	_, err = ledger.DeductCredits(ctx, account, 5000, "overuse", nil)
	assert.ErrorIs(t, err, ErrInsufficientCredit)

	// A failed deduction leaves no trace.
	state, err = ledger.Ensure(ctx, account)
	assert.NoError(t, err)
	assert.Equal(t, int64(1300), state.CreditsBalance)
	events, err := ledger.ListUsage(ctx, account, UsageFilter{Type: "overuse"})
	assert.NoError(t, err)
	assert.Empty(t, events)

	// Record-only usage never touches the balance.
	_, err = ledger.RecordUsage(ctx, account, "export", 10, nil)
	assert.NoError(t, err)
	state, err = ledger.Ensure(ctx, account)
	assert.NoError(t, err)
	assert.Equal(t, int64(1300), state.CreditsBalance)

	events, err = ledger.ListUsage(ctx, account, UsageFilter{Type: "export"})
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, int64(10), events[0].Amount)
}

func TestLedger_ListUsageOrder(t *testing.T) {
	repo := newFakeRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()
	account := UserScope("user-7")

	for _, typ := range []string{"first", "second", "third"} {
		_, err := ledger.RecordUsage(ctx, account, typ, 1, nil)
		assert.NoError(t, err)
	}

	events, err := ledger.ListUsage(ctx, account, UsageFilter{})
	assert.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, "third", events[0].Type)
	assert.Equal(t, "first", events[2].Type)
}

func TestLedger_ListUsageTimeRange(t *testing.T) {
	repo := newFakeRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()
	account := UserScope("user-8")

	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	for i, typ := range []string{"early", "middle", "late"} {
		event, err := ledger.RecordUsage(ctx, account, typ, 1, nil)
		assert.NoError(t, err)
		event.CreatedAt = base.Add(time.Duration(i) * time.Hour)
	}

	from := base.Add(30 * time.Minute)
	to := base.Add(90 * time.Minute)

	events, err := ledger.ListUsage(ctx, account, UsageFilter{From: &from, To: &to})
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, "middle", events[0].Type)

	events, err = ledger.ListUsage(ctx, account, UsageFilter{From: &from})
	assert.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, "late", events[0].Type)

	events, err = ledger.ListUsage(ctx, account, UsageFilter{To: &to})
	assert.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, "early", events[1].Type)
}

// Concurrent deductions against one account: exactly as many succeed
// as the balance covers, and the balance never goes negative.
func TestLedger_ConcurrentDeductions(t *testing.T) {
	repo := newFakeRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()
	account := UserScope("user-race")

	_, err := ledger.Ensure(ctx, account)
	assert.NoError(t, err)

	const workers = 10
	const amount = 300 // 1000 / 300 -> exactly 3 can succeed

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.DeductCredits(ctx, account, amount, "ai_call", nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case err == ErrInsufficientCredit:
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, workers-3, rejected)

	state, err := ledger.Ensure(ctx, account)
	assert.NoError(t, err)
	assert.Equal(t, int64(100), state.CreditsBalance)
	assert.GreaterOrEqual(t, state.CreditsBalance, int64(0))

	events, err := ledger.ListUsage(ctx, account, UsageFilter{Type: "ai_call"})
	assert.NoError(t, err)
	assert.Len(t, events, 3)
}
