package billing

import (
	"time"

	"github.com/lib/pq"
)

// Seeded plan names.
const (
	PlanFree       = "FREE"
	PlanPro        = "PRO"
	PlanEnterprise = "ENTERPRISE"
)

// LimitUnmetered is the limit value for features without a quota.
const LimitUnmetered = "unmetered"

// EventCreditsAdded is the usage event type appended for every credit grant.
const EventCreditsAdded = "credits.added"

// Plan represents a subscription plan. Plans are immutable once seeded;
// identity is the name.
type Plan struct {
	Name              string         `json:"name" gorm:"primaryKey"`
	Description       string         `json:"description"`
	Limits            map[string]any `json:"limits" gorm:"type:jsonb;serializer:json"`
	MonthlyPriceCents int64          `json:"monthly_price_cents"`
	DefaultCredits    int64          `json:"default_credits"`
	Features          pq.StringArray `json:"features" gorm:"type:text[]"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TableName returns the database table name.
func (Plan) TableName() string {
	return "plans"
}

// AccountStatus represents the status of an account's billing state.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
)

// AccountState is the per-account billing state: current plan, credit
// balance, and status. One row per (account_id, scope); rows are created
// lazily on first touch and never deleted.
type AccountState struct {
	AccountID      string        `json:"account_id" gorm:"primaryKey"`
	Scope          Scope         `json:"scope" gorm:"primaryKey"`
	CurrentPlan    *string       `json:"current_plan"`
	CreditsBalance int64         `json:"credits_balance" gorm:"not null;default:0;check:chk_credits_balance,credits_balance >= 0"`
	Status         AccountStatus `json:"status" gorm:"not null;default:active"`
	RenewDate      *time.Time    `json:"renew_date,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	// Relations
	Plan *Plan `json:"plan,omitempty" gorm:"foreignKey:CurrentPlan;references:Name"`
}

// TableName returns the database table name.
func (AccountState) TableName() string {
	return "account_states"
}

// IsActive returns true if the account is active.
func (s *AccountState) IsActive() bool {
	return s.Status == AccountStatusActive
}

// PlanName returns the current plan name, or empty if none is assigned.
func (s *AccountState) PlanName() string {
	if s.CurrentPlan == nil {
		return ""
	}
	return *s.CurrentPlan
}

// UsageEvent is an immutable audit record of a balance change or a
// recorded (non-deducting) usage. Rows are append-only.
type UsageEvent struct {
	ID        int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	AccountID string         `json:"account_id" gorm:"not null;index:idx_usage_account_time,priority:1"`
	Scope     Scope          `json:"scope" gorm:"not null;index:idx_usage_account_time,priority:2"`
	Type      string         `json:"type" gorm:"not null"`
	Amount    int64          `json:"amount" gorm:"not null;default:0"`
	Metadata  map[string]any `json:"metadata,omitempty" gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null;index:idx_usage_account_time,priority:3"`
}

// TableName returns the database table name.
func (UsageEvent) TableName() string {
	return "usage_events"
}
