package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// PayNow is a simulated payment gateway for development and demo
// environments. Calls go through a circuit breaker so a misbehaving
// gateway stub cannot stall the API.
type PayNow struct {
	ledger  *Ledger
	plans   *Plans
	breaker *gobreaker.CircuitBreaker[any]
	logger  *zap.Logger
}

// NewPayNow creates a new simulated payment gateway.
func NewPayNow(ledger *Ledger, plans *Plans, logger *zap.Logger) *PayNow {
	settings := gobreaker.Settings{
		Name:        "paynow",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Rejected business input says nothing about gateway health
		// and must not open the circuit.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return errors.Is(err, ErrInvalidAmount) ||
				errors.Is(err, ErrInsufficientCredit) ||
				errors.Is(err, ErrInvalidScope) ||
				errors.Is(err, ErrPlanNotFound)
		},
	}
	return &PayNow{
		ledger:  ledger,
		plans:   plans,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		logger:  logger,
	}
}

// TopUpReceipt describes a completed simulated top-up.
type TopUpReceipt struct {
	TransactionID string `json:"transactionId"`
	Amount        int64  `json:"amount"`
	Balance       int64  `json:"balance"`
}

// TopUp simulates a successful payment and credits the account.
func (p *PayNow) TopUp(ctx context.Context, account AccountScope, amount int64) (*TopUpReceipt, error) {
	if !account.Valid() {
		return nil, ErrInvalidScope
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	result, err := p.breaker.Execute(func() (any, error) {
		state, err := p.ledger.AddCredits(ctx, account, amount, "topup")
		if err != nil {
			return nil, err
		}
		return state, nil
	})
	if err != nil {
		return nil, err
	}
	state := result.(*AccountState)

	receipt := &TopUpReceipt{
		TransactionID: uuid.NewString(),
		Amount:        amount,
		Balance:       state.CreditsBalance,
	}
	p.logger.Info("simulated top-up completed",
		append(account.Fields(),
			zap.String("transaction_id", receipt.TransactionID),
			zap.Int64("amount", amount))...)
	return receipt, nil
}

// ActivatePro simulates a pro subscription purchase: the payment
// succeeds instantly and the plan change grants pro's default credits.
func (p *PayNow) ActivatePro(ctx context.Context, account AccountScope) (*PlanChangeResult, error) {
	result, err := p.breaker.Execute(func() (any, error) {
		return p.plans.ChangePlan(ctx, account, PlanPro, "mock_activation")
	})
	if err != nil {
		return nil, err
	}
	return result.(*PlanChangeResult), nil
}
