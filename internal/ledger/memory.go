package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pixelmint/backend/internal/models"
)

// Memory is an in-process ledger with the same conditional-deduct
// semantics as the Postgres repository. Used in tests and when the
// server runs without a database.
type Memory struct {
	mu           sync.Mutex
	balances     map[uuid.UUID]int
	transactions []*models.CreditTransaction
}

var _ Service = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{balances: make(map[uuid.UUID]int)}
}

// SetBalance seeds a user's balance, creating the account if needed.
func (m *Memory) SetBalance(userID uuid.UUID, credits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = credits
}

func (m *Memory) Deduct(_ context.Context, userID uuid.UUID, amount int, description string) (DeductResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.balances[userID]
	if !ok {
		return DeductResult{}, ErrUnknownUser
	}
	if balance < amount {
		return DeductResult{Deducted: false, Balance: balance}, nil
	}
	after := balance - amount
	m.balances[userID] = after
	m.appendLocked(userID, models.CreditKindUsage, -amount, balance, after, description)
	return DeductResult{Deducted: true, Balance: after}, nil
}

func (m *Memory) Refund(_ context.Context, userID uuid.UUID, amount int, description string) (int, error) {
	return m.credit(userID, amount, models.CreditKindRefund, description)
}

func (m *Memory) Grant(_ context.Context, userID uuid.UUID, amount int, kind, description string) (int, error) {
	if kind != models.CreditKindPurchase && kind != models.CreditKindBonus {
		return 0, errors.New("ledger: grant kind must be purchase or bonus")
	}
	return m.credit(userID, amount, kind, description)
}

func (m *Memory) credit(userID uuid.UUID, amount int, kind, description string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.balances[userID]
	if !ok {
		return 0, ErrUnknownUser
	}
	after := balance + amount
	m.balances[userID] = after
	m.appendLocked(userID, kind, amount, balance, after, description)
	return after, nil
}

func (m *Memory) Balance(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[userID]
	if !ok {
		return 0, ErrUnknownUser
	}
	return balance, nil
}

func (m *Memory) Transactions(_ context.Context, userID uuid.UUID) ([]*models.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*models.CreditTransaction
	for _, t := range m.transactions {
		if t.UserID == userID {
			cp := *t
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (m *Memory) appendLocked(userID uuid.UUID, kind string, amount, before, after int, description string) {
	m.transactions = append(m.transactions, &models.CreditTransaction{
		ID:            uuid.New(),
		UserID:        userID,
		Kind:          kind,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	})
}
