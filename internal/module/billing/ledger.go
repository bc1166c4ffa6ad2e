package billing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/squirrelhq/billing-service/internal/shared/config"
	"github.com/squirrelhq/billing-service/internal/shared/metrics"
)

// Ledger is the credit ledger service. Every balance change goes through
// it, with a usage event committed alongside in the same transaction.
type Ledger struct {
	repo    Repository
	cfg     config.BillingConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewLedger creates a new ledger service.
func NewLedger(repo Repository, cfg config.BillingConfig, m *metrics.Metrics, logger *zap.Logger) *Ledger {
	return &Ledger{repo: repo, cfg: cfg, metrics: m, logger: logger}
}

// Ensure returns the account state, creating it on first touch with the
// base plan and its default credit grant. No usage event is recorded for
// the initial grant.
func (l *Ledger) Ensure(ctx context.Context, account AccountScope) (*AccountState, error) {
	if !account.Valid() {
		return nil, ErrInvalidScope
	}
	ctx, cancel := context.WithTimeout(ctx, l.cfg.CommitTimeout)
	defer cancel()
	return l.repo.EnsureAccount(ctx, account)
}

// AddCredits credits the account and records a usage event. The amount
// must be strictly positive.
func (l *Ledger) AddCredits(ctx context.Context, account AccountScope, amount int64, reason string) (*AccountState, error) {
	if !account.Valid() {
		return nil, ErrInvalidScope
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	ctx, cancel := context.WithTimeout(ctx, l.cfg.CommitTimeout)
	defer cancel()

	metadata := map[string]any{"reason": reason}
	state, err := l.repo.AddCredits(ctx, account, amount, EventCreditsAdded, metadata)
	if err != nil {
		return nil, err
	}

	l.metrics.CreditsAddedTotal.WithLabelValues(string(account.Scope), reason).Add(float64(amount))
	l.metrics.UsageEventsTotal.WithLabelValues(EventCreditsAdded).Inc()
	l.logger.Info("credits added",
		append(account.Fields(),
			zap.Int64("amount", amount),
			zap.String("reason", reason),
			zap.Int64("balance", state.CreditsBalance))...)
	return state, nil
}

// DeductCredits debits the account and records a usage event of the
// given type. A zero amount is a pure usage record with no balance
// check. An insufficient balance rejects the deduction, leaving neither
// a balance change nor a usage event.
func (l *Ledger) DeductCredits(ctx context.Context, account AccountScope, amount int64, eventType string, metadata map[string]any) (*AccountState, error) {
	if !account.Valid() {
		return nil, ErrInvalidScope
	}
	if amount < 0 {
		return nil, ErrInvalidAmount
	}
	ctx, cancel := context.WithTimeout(ctx, l.cfg.CommitTimeout)
	defer cancel()

	state, err := l.repo.DeductCredits(ctx, account, amount, eventType, metadata)
	if err != nil {
		if err == ErrInsufficientCredit {
			l.metrics.DeductRejectionsTotal.WithLabelValues(string(account.Scope)).Inc()
			l.logger.Warn("deduction rejected",
				append(account.Fields(),
					zap.Int64("amount", amount),
					zap.String("type", eventType))...)
		}
		return nil, err
	}

	l.metrics.CreditsDeductedTotal.WithLabelValues(string(account.Scope), eventType).Add(float64(amount))
	l.metrics.UsageEventsTotal.WithLabelValues(eventType).Inc()
	l.logger.Info("credits deducted",
		append(account.Fields(),
			zap.Int64("amount", amount),
			zap.String("type", eventType),
			zap.Int64("balance", state.CreditsBalance))...)
	return state, nil
}

// RecordUsage appends a usage event without touching the balance, for
// tracking metered activity that does not consume credits.
func (l *Ledger) RecordUsage(ctx context.Context, account AccountScope, eventType string, amount int64, metadata map[string]any) (*UsageEvent, error) {
	if !account.Valid() {
		return nil, ErrInvalidScope
	}
	ctx, cancel := context.WithTimeout(ctx, l.cfg.CommitTimeout)
	defer cancel()

	if _, err := l.repo.EnsureAccount(ctx, account); err != nil {
		return nil, err
	}
	event, err := l.repo.AppendEvent(ctx, account, eventType, amount, metadata)
	if err != nil {
		return nil, err
	}
	l.metrics.UsageEventsTotal.WithLabelValues(eventType).Inc()
	return event, nil
}

// ListUsage returns the account's usage events, most recent first.
func (l *Ledger) ListUsage(ctx context.Context, account AccountScope, filter UsageFilter) ([]*UsageEvent, error) {
	if !account.Valid() {
		return nil, ErrInvalidScope
	}
	return l.repo.ListEvents(ctx, account, filter)
}

// CreditsOverview bundles the current balance and plan with recent
// history.
type CreditsOverview struct {
	Balance int64         `json:"balance"`
	Plan    string        `json:"plan,omitempty"`
	Events  []*UsageEvent `json:"events"`
}

// Overview returns the current balance and plan together with the most
// recent usage events, creating the account on first touch.
func (l *Ledger) Overview(ctx context.Context, account AccountScope) (*CreditsOverview, error) {
	state, err := l.Ensure(ctx, account)
	if err != nil {
		return nil, err
	}
	events, err := l.repo.ListEvents(ctx, account, UsageFilter{Limit: l.cfg.HistoryLimit})
	if err != nil {
		return nil, err
	}
	return &CreditsOverview{
		Balance: state.CreditsBalance,
		Plan:    state.PlanName(),
		Events:  events,
	}, nil
}

// PeriodTotal sums event amounts over [from, to) for invoice reporting.
func (l *Ledger) PeriodTotal(ctx context.Context, account AccountScope, from, to time.Time) (int64, error) {
	if !account.Valid() {
		return 0, ErrInvalidScope
	}
	return l.repo.SumEventAmounts(ctx, account, from, to)
}
