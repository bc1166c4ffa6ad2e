package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func newTestPayNow(repo Repository) (*PayNow, *MockPlanFinder) {
	finder := new(MockPlanFinder)
	plans := newTestPlans(finder, repo, nil)
	ledger := newTestLedger(repo)
	return NewPayNow(ledger, plans, zap.NewNop()), finder
}

func TestPayNow_TopUp(t *testing.T) {
	ctx := context.Background()
	account := UserScope("user-1")

	t.Run("credits the account and issues a receipt", func(t *testing.T) {
		repo := newFakeRepo()
		pay, _ := newTestPayNow(repo)

		receipt, err := pay.TopUp(ctx, account, 500)

		assert.NoError(t, err)
		assert.NotEmpty(t, receipt.TransactionID)
		assert.Equal(t, int64(500), receipt.Amount)
		assert.Equal(t, int64(1500), receipt.Balance)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		repo := newFakeRepo()
		pay, _ := newTestPayNow(repo)

		_, err := pay.TopUp(ctx, account, 0)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = pay.TopUp(ctx, account, -100)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("invalid amounts never open the circuit", func(t *testing.T) {
		repo := newFakeRepo()
		pay, _ := newTestPayNow(repo)

		for i := 0; i < 10; i++ {
			_, err := pay.TopUp(ctx, account, 0)
			assert.ErrorIs(t, err, ErrInvalidAmount)
		}

		receipt, err := pay.TopUp(ctx, account, 200)
		assert.NoError(t, err)
		assert.Equal(t, int64(1200), receipt.Balance)
	})
}

func TestPayNow_Breaker(t *testing.T) {
	ctx := context.Background()
	account := UserScope("user-1")

	t.Run("opens after consecutive gateway failures", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("AddCredits", mock.Anything, account, int64(100), EventCreditsAdded, mock.Anything).
			Return(nil, errors.New("connection reset"))
		pay, _ := newTestPayNow(repo)

		for i := 0; i < 5; i++ {
			_, err := pay.TopUp(ctx, account, 100)
			assert.Error(t, err)
			assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
		}

		_, err := pay.TopUp(ctx, account, 100)
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	})

	t.Run("business rejections never open the circuit", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("AddCredits", mock.Anything, account, int64(100), EventCreditsAdded, mock.Anything).
			Return(nil, ErrInsufficientCredit)
		pay, _ := newTestPayNow(repo)

		for i := 0; i < 10; i++ {
			_, err := pay.TopUp(ctx, account, 100)
			assert.ErrorIs(t, err, ErrInsufficientCredit)
		}
	})
}
