package billing

import (
	"context"

	"go.uber.org/zap"
)

// Gate answers feature access questions against the account's plan
// limits and, when asked, whether the balance covers a credit cost.
// Its answers are advisory; callers enforce them and spend separately.
type Gate struct {
	repo   Repository
	logger *zap.Logger
}

// NewGate creates a new feature gate.
func NewGate(repo Repository, logger *zap.Logger) *Gate {
	return &Gate{repo: repo, logger: logger}
}

// AccessDecision is the outcome of a feature access check.
type AccessDecision struct {
	Allowed bool   `json:"allowed"`
	Feature string `json:"feature"`
	// Balance is the balance observed at check time.
	Balance int64 `json:"balance"`
}

// CheckAccess decides whether the account's plan allows the feature and,
// when a positive creditCost is given, whether the current balance
// covers it. It never reserves or deducts credits itself; callers that
// pass the check still race other spenders until they deduct. An
// account never seen by the ledger gets ErrNoActivePlan rather than
// being created. A feature the gate does not recognize is allowed.
func (g *Gate) CheckAccess(ctx context.Context, account AccountScope, feature string, creditCost int64) (*AccessDecision, error) {
	if !account.Valid() {
		return nil, ErrInvalidScope
	}
	if creditCost < 0 {
		return nil, ErrInvalidAmount
	}

	state, err := g.repo.GetAccount(ctx, account)
	if err != nil {
		if err == ErrAccountNotFound {
			return nil, ErrNoActivePlan
		}
		return nil, err
	}
	if state.CurrentPlan == nil {
		return nil, ErrNoActivePlan
	}

	limits := LimitsFor(state.PlanName())
	if !featureAllowed(feature, limits) {
		g.logger.Info("feature denied by plan",
			append(account.Fields(),
				zap.String("feature", feature),
				zap.String("plan", state.PlanName()))...)
		return &AccessDecision{Allowed: false, Feature: feature, Balance: state.CreditsBalance}, ErrFeatureNotAllowed
	}

	if creditCost > 0 {
		// Re-read so the answer reflects the freshest balance. The gate
		// still does not reserve anything; the spend itself happens in a
		// later DeductCredits call.
		fresh, err := g.repo.GetAccount(ctx, account)
		if err != nil {
			return nil, err
		}
		if fresh.CreditsBalance < creditCost {
			return &AccessDecision{Allowed: false, Feature: feature, Balance: fresh.CreditsBalance}, ErrInsufficientCredit
		}
		return &AccessDecision{Allowed: true, Feature: feature, Balance: fresh.CreditsBalance}, nil
	}
	return &AccessDecision{Allowed: true, Feature: feature, Balance: state.CreditsBalance}, nil
}

// featureAllowed applies the plan's limits to a feature name. Limits may
// hold numbers, the unmetered marker, or booleans depending on the
// feature. Unknown features are allowed.
func featureAllowed(feature string, limits map[string]any) bool {
	switch feature {
	case "ai":
		return quotaPresent(limits["aiCalls"])
	case "collections":
		return quotaPresent(limits["collections"])
	case "priority":
		v, ok := limits["priority"].(bool)
		return ok && v
	default:
		return true
	}
}

// quotaPresent reports whether a limit value grants any capacity. A
// missing key, a zero number, and false all deny; "unmetered" and any
// non-zero number allow.
func quotaPresent(v any) bool {
	switch n := v.(type) {
	case nil:
		return false
	case string:
		return n == LimitUnmetered
	case bool:
		return n
	case int:
		return n != 0
	case int64:
		return n != 0
	case float64:
		// JSON-decoded numbers arrive as float64.
		return n != 0
	default:
		return false
	}
}
