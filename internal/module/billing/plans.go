package billing

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	infraevents "github.com/squirrelhq/billing-service/internal/infra/events"
	"github.com/squirrelhq/billing-service/internal/shared/config"
	"github.com/squirrelhq/billing-service/internal/shared/events"
)

// Plan change outcome statuses.
const (
	PlanChangeUpdated        = "updated"
	PlanChangeManualRequired = "manual_required"
)

// PlanChangeResult is the outcome of a plan change request. A plan not
// present in the catalog yields a manual_required result rather than an
// error; nothing is persisted in that case.
type PlanChangeResult struct {
	Status  string        `json:"status"`
	Plan    *AccountState `json:"plan,omitempty"`
	Message string        `json:"message,omitempty"`
}

// PlanFinder resolves plan names against the catalog.
type PlanFinder interface {
	FindByName(ctx context.Context, name string) (*Plan, error)
}

// Plans handles plan assignment and manual credit adjustments.
type Plans struct {
	catalog PlanFinder
	ledger  *Ledger
	repo    Repository
	bus     *infraevents.Bus
	cfg     config.BillingConfig
	logger  *zap.Logger
}

// NewPlans creates a new plan assignment service.
func NewPlans(catalog PlanFinder, ledger *Ledger, repo Repository, bus *infraevents.Bus, cfg config.BillingConfig, logger *zap.Logger) *Plans {
	return &Plans{catalog: catalog, ledger: ledger, repo: repo, bus: bus, cfg: cfg, logger: logger}
}

// ChangePlan assigns the named plan to the account. The name is
// normalized to upper case before the catalog lookup. A successful
// change also grants the plan's default credits on top of the current
// balance, even when re-assigning the same plan or moving to a cheaper
// one. A plan-changed event carrying the caller's reason is published
// after commit.
func (p *Plans) ChangePlan(ctx context.Context, account AccountScope, planName, reason string) (*PlanChangeResult, error) {
	if !account.Valid() {
		return nil, ErrInvalidScope
	}
	name := strings.ToUpper(strings.TrimSpace(planName))

	plan, err := p.catalog.FindByName(ctx, name)
	if err != nil {
		if err == ErrPlanNotFound {
			p.logger.Info("plan change requires manual approval",
				append(account.Fields(), zap.String("plan", name))...)
			return &PlanChangeResult{
				Status:  PlanChangeManualRequired,
				Message: fmt.Sprintf("Plan %s requires founder approval before activation", name),
			}, nil
		}
		return nil, err
	}

	setCtx, cancel := context.WithTimeout(ctx, p.cfg.CommitTimeout)
	state, err := p.repo.SetPlan(setCtx, account, plan.Name)
	cancel()
	if err != nil {
		return nil, err
	}
	if plan.DefaultCredits > 0 {
		state, err = p.ledger.AddCredits(ctx, account, plan.DefaultCredits, "plan_change")
		if err != nil {
			return nil, err
		}
	}

	p.bus.Publish(events.NewPlanChangedEvent(plan.Name, reason, account.Target(), account.ID))
	p.logger.Info("plan changed",
		append(account.Fields(),
			zap.String("plan", plan.Name),
			zap.Int64("balance", state.CreditsBalance))...)

	return &PlanChangeResult{Status: PlanChangeUpdated, Plan: state}, nil
}

// AdjustmentResult reports the outcome of a manual credit adjustment.
type AdjustmentResult struct {
	Balance  int64  `json:"balance"`
	Currency string `json:"currency"`
}

// AdjustCredits applies a manual credit grant to the account and
// publishes a credits-adjusted event. Intended for operator use.
func (p *Plans) AdjustCredits(ctx context.Context, account AccountScope, amount int64) (*AdjustmentResult, error) {
	state, err := p.ledger.AddCredits(ctx, account, amount, "manual_adjustment")
	if err != nil {
		return nil, err
	}
	p.bus.Publish(events.NewCreditsAdjustedEvent(amount, "manual_adjustment", account.Target(), account.ID))
	return &AdjustmentResult{Balance: state.CreditsBalance, Currency: p.cfg.Currency}, nil
}
