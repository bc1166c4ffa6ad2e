package billing

import "time"

// GetPlansResponse represents the response for listing plans.
type GetPlansResponse struct {
	Plans []*PlanResponse `json:"plans"`
}

// PlanResponse represents a plan in API responses.
type PlanResponse struct {
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	Limits            map[string]any `json:"limits"`
	MonthlyPriceCents int64          `json:"monthly_price_cents"`
	DefaultCredits    int64          `json:"default_credits"`
	Features          []string       `json:"features"`
}

// ToResponse converts a Plan to PlanResponse.
func (p *Plan) ToResponse() *PlanResponse {
	features := make([]string, len(p.Features))
	copy(features, p.Features)
	return &PlanResponse{
		Name:              p.Name,
		Description:       p.Description,
		Limits:            p.Limits,
		MonthlyPriceCents: p.MonthlyPriceCents,
		DefaultCredits:    p.DefaultCredits,
		Features:          features,
	}
}

// AccountStateResponse represents the account's billing state in API
// responses.
type AccountStateResponse struct {
	AccountID      string     `json:"account_id"`
	Scope          string     `json:"scope"`
	Plan           string     `json:"plan,omitempty"`
	CreditsBalance int64      `json:"credits_balance"`
	Status         string     `json:"status"`
	RenewDate      *time.Time `json:"renew_date,omitempty"`
}

// ToResponse converts an AccountState to AccountStateResponse.
func (s *AccountState) ToResponse() *AccountStateResponse {
	return &AccountStateResponse{
		AccountID:      s.AccountID,
		Scope:          string(s.Scope),
		Plan:           s.PlanName(),
		CreditsBalance: s.CreditsBalance,
		Status:         string(s.Status),
		RenewDate:      s.RenewDate,
	}
}

// UsageEventResponse represents a usage event in API responses.
type UsageEventResponse struct {
	ID        int64          `json:"id"`
	Type      string         `json:"type"`
	Amount    int64          `json:"amount"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ToResponse converts a UsageEvent to UsageEventResponse.
func (e *UsageEvent) ToResponse() *UsageEventResponse {
	return &UsageEventResponse{
		ID:        e.ID,
		Type:      e.Type,
		Amount:    e.Amount,
		Metadata:  e.Metadata,
		CreatedAt: e.CreatedAt,
	}
}

// AddCreditsRequest is the payload for crediting an account.
type AddCreditsRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Reason string `json:"reason"`
}

// ChangePlanRequest is the payload for a plan change.
type ChangePlanRequest struct {
	Plan   string `json:"plan" binding:"required"`
	Reason string `json:"reason"`
}

// CheckFeatureRequest is the payload for a feature access check.
type CheckFeatureRequest struct {
	Feature    string `json:"feature" binding:"required"`
	CreditCost int64  `json:"credit_cost"`
}

// TopUpRequest is the payload for a simulated top-up.
type TopUpRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}
