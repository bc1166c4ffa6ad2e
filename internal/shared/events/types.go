package events

import "github.com/squirrelhq/billing-service/internal/infra/events"

// Billing event type constants.
const (
	PlanChangedType     = "PlanChanged"
	CreditsAdjustedType = "CreditsAdjusted"
)

// PlanChangedEvent is emitted after a plan change commits.
// The event bridge forwards it to the outbound notification channel.
type PlanChangedEvent struct {
	events.BaseEvent

	// Plan is the name of the newly assigned plan.
	Plan string `json:"plan"`

	// Reason is the caller-supplied reason, if any.
	Reason string `json:"reason,omitempty"`

	// Target is "user" or "organization".
	Target string `json:"target"`

	// TargetID is the account identifier within the target scope.
	TargetID string `json:"targetId"`
}

// NewPlanChangedEvent creates a new PlanChangedEvent.
func NewPlanChangedEvent(plan, reason, target, targetID string) *PlanChangedEvent {
	return &PlanChangedEvent{
		BaseEvent: events.NewBaseEvent(PlanChangedType, targetID, "Account"),
		Plan:      plan,
		Reason:    reason,
		Target:    target,
		TargetID:  targetID,
	}
}

// CreditsAdjustedEvent is emitted after a manual credit adjustment commits.
type CreditsAdjustedEvent struct {
	events.BaseEvent

	// Amount is the number of credits granted.
	Amount int64 `json:"amount"`

	// Reason is the adjustment reason (e.g., "manual_adjustment").
	Reason string `json:"reason"`

	// Target is "user" or "organization".
	Target string `json:"target"`

	// TargetID is the account identifier within the target scope.
	TargetID string `json:"targetId"`
}

// NewCreditsAdjustedEvent creates a new CreditsAdjustedEvent.
func NewCreditsAdjustedEvent(amount int64, reason, target, targetID string) *CreditsAdjustedEvent {
	return &CreditsAdjustedEvent{
		BaseEvent: events.NewBaseEvent(CreditsAdjustedType, targetID, "Account"),
		Amount:    amount,
		Reason:    reason,
		Target:    target,
		TargetID:  targetID,
	}
}
