package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageFilter narrows a usage event listing.
type UsageFilter struct {
	From *time.Time
	To   *time.Time
	Type string
	// Limit caps the number of returned events; zero means unbounded.
	Limit int
}

// Repository defines the data access surface of the ledger. All
// balance-affecting methods commit the balance change and its usage
// event as a single transaction.
type Repository interface {
	// EnsureAccount returns the account state, creating it with the base
	// plan and its default credit grant on first touch. Safe under
	// concurrent first-touch: at most one row is ever created.
	EnsureAccount(ctx context.Context, account AccountScope) (*AccountState, error)

	// GetAccount returns the account state without creating it.
	GetAccount(ctx context.Context, account AccountScope) (*AccountState, error)

	// AddCredits atomically increments the balance and appends a usage
	// event of the given type.
	AddCredits(ctx context.Context, account AccountScope, amount int64, eventType string, metadata map[string]any) (*AccountState, error)

	// DeductCredits atomically decrements the balance and appends a usage
	// event, or returns ErrInsufficientCredit leaving no trace. Racing
	// deductions are serialized against each other; the balance can
	// never go negative.
	DeductCredits(ctx context.Context, account AccountScope, amount int64, eventType string, metadata map[string]any) (*AccountState, error)

	// AppendEvent appends a usage event without touching the balance.
	AppendEvent(ctx context.Context, account AccountScope, eventType string, amount int64, metadata map[string]any) (*UsageEvent, error)

	// ListEvents returns usage events in descending time order.
	ListEvents(ctx context.Context, account AccountScope, filter UsageFilter) ([]*UsageEvent, error)

	// SumEventAmounts sums event amounts over [from, to), for invoice
	// computation.
	SumEventAmounts(ctx context.Context, account AccountScope, from, to time.Time) (int64, error)

	// SetPlan assigns a plan to the account, creating the account first
	// if needed.
	SetPlan(ctx context.Context, account AccountScope, planName string) (*AccountState, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new ledger repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// ensureTx creates the account row if missing, inside the caller's
// transaction. The insert is guarded by the primary key, so a racing
// first touch creates exactly one row and one default grant.
func (r *repository) ensureTx(tx *gorm.DB, account AccountScope) error {
	var base Plan
	var planName *string
	var grant int64
	err := tx.First(&base, "name = ?", PlanFree).Error
	switch {
	case err == nil:
		planName = &base.Name
		grant = base.DefaultCredits
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Unseeded catalog: the account starts plan-less with no credits.
	default:
		return fmt.Errorf("load base plan: %w", err)
	}

	state := &AccountState{
		AccountID:      account.ID,
		Scope:          account.Scope,
		CurrentPlan:    planName,
		CreditsBalance: grant,
		Status:         AccountStatusActive,
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(state)
	if res.Error != nil {
		return fmt.Errorf("ensure account: %w", res.Error)
	}
	return nil
}

func (r *repository) getTx(tx *gorm.DB, account AccountScope) (*AccountState, error) {
	var state AccountState
	err := tx.Preload("Plan").
		First(&state, "account_id = ? AND scope = ?", account.ID, account.Scope).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &state, nil
}

func (r *repository) EnsureAccount(ctx context.Context, account AccountScope) (*AccountState, error) {
	var state *AccountState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.ensureTx(tx, account); err != nil {
			return err
		}
		var err error
		state, err = r.getTx(tx, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (r *repository) GetAccount(ctx context.Context, account AccountScope) (*AccountState, error) {
	return r.getTx(r.db.WithContext(ctx), account)
}

func (r *repository) AddCredits(ctx context.Context, account AccountScope, amount int64, eventType string, metadata map[string]any) (*AccountState, error) {
	if _, err := r.EnsureAccount(ctx, account); err != nil {
		return nil, err
	}
	var state *AccountState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&AccountState{}).
			Where("account_id = ? AND scope = ?", account.ID, account.Scope).
			Update("credits_balance", gorm.Expr("credits_balance + ?", amount)).Error
		if err != nil {
			return fmt.Errorf("increment balance: %w", err)
		}
		if err := appendEventTx(tx, account, eventType, amount, metadata); err != nil {
			return err
		}
		state, err = r.getTx(tx, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (r *repository) DeductCredits(ctx context.Context, account AccountScope, amount int64, eventType string, metadata map[string]any) (*AccountState, error) {
	// The account is ensured outside the deduction transaction so a
	// rejected deduction does not roll back first-touch creation.
	if _, err := r.EnsureAccount(ctx, account); err != nil {
		return nil, err
	}
	var state *AccountState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Single conditional decrement: the row lock taken by UPDATE
		// serializes racing deductions, and the balance guard keeps the
		// invariant without a read-then-write window.
		res := tx.Model(&AccountState{}).
			Where("account_id = ? AND scope = ? AND credits_balance >= ?", account.ID, account.Scope, amount).
			Update("credits_balance", gorm.Expr("credits_balance - ?", amount))
		if res.Error != nil {
			return fmt.Errorf("decrement balance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientCredit
		}
		if err := appendEventTx(tx, account, eventType, amount, metadata); err != nil {
			return err
		}
		var err error
		state, err = r.getTx(tx, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func appendEventTx(tx *gorm.DB, account AccountScope, eventType string, amount int64, metadata map[string]any) error {
	event := &UsageEvent{
		AccountID: account.ID,
		Scope:     account.Scope,
		Type:      eventType,
		Amount:    amount,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Create(event).Error; err != nil {
		return fmt.Errorf("append usage event: %w", err)
	}
	return nil
}

func (r *repository) AppendEvent(ctx context.Context, account AccountScope, eventType string, amount int64, metadata map[string]any) (*UsageEvent, error) {
	event := &UsageEvent{
		AccountID: account.ID,
		Scope:     account.Scope,
		Type:      eventType,
		Amount:    amount,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, fmt.Errorf("append usage event: %w", err)
	}
	return event, nil
}

func (r *repository) ListEvents(ctx context.Context, account AccountScope, filter UsageFilter) ([]*UsageEvent, error) {
	query := r.db.WithContext(ctx).
		Where("account_id = ? AND scope = ?", account.ID, account.Scope)

	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var events []*UsageEvent
	if err := query.Order("created_at DESC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list usage events: %w", err)
	}
	return events, nil
}

func (r *repository) SumEventAmounts(ctx context.Context, account AccountScope, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&UsageEvent{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("account_id = ? AND scope = ? AND created_at >= ? AND created_at < ?",
			account.ID, account.Scope, from, to).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum usage amounts: %w", err)
	}
	return total, nil
}

func (r *repository) SetPlan(ctx context.Context, account AccountScope, planName string) (*AccountState, error) {
	if _, err := r.EnsureAccount(ctx, account); err != nil {
		return nil, err
	}
	var state *AccountState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&AccountState{}).
			Where("account_id = ? AND scope = ?", account.ID, account.Scope).
			Update("current_plan", planName).Error
		if err != nil {
			return fmt.Errorf("set plan: %w", err)
		}
		state, err = r.getTx(tx, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}
