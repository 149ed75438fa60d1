package credits

import (
	"context"
	"sync"

	"mediagen/internal/domain"
)

// MemoryService is an in-process ledger for development and tests.
type MemoryService struct {
	mu       sync.Mutex
	balances map[string]int
	calls    int
	err      error
}

func NewMemoryService(balances map[string]int) *MemoryService {
	m := &MemoryService{balances: make(map[string]int, len(balances))}
	for k, v := range balances {
		m.balances[k] = v
	}
	return m
}

func (m *MemoryService) AuthorizeAndDebit(_ context.Context, userID string, amount int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	if m.balances[userID] < amount {
		return false, nil
	}
	m.balances[userID] -= amount
	return true, nil
}

func (m *MemoryService) Balance(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.balances[userID], nil
}

// Grant adds credits and returns the new balance.
func (m *MemoryService) Grant(userID string, amount int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] += amount
	return m.balances[userID]
}

// Calls reports how many debit round trips were made.
func (m *MemoryService) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// FailWith makes every subsequent call return err (nil restores service).
func (m *MemoryService) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

var _ domain.CreditService = (*MemoryService)(nil)
