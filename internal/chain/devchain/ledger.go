package devchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"grocerybudget/internal/core"
)

// Ledger is the contract storage of the simulated chain.
type Ledger interface {
	// Append records a mined expense and adds its amount to the total.
	Append(ctx context.Context, rec core.ExpenseRecord) error
	Totals(ctx context.Context) (total *big.Int, count int64, err error)
	// Expense returns the record at index or core.ErrExpenseNotFound.
	Expense(ctx context.Context, index int64) (core.ExpenseRecord, error)
}

// MemoryLedger keeps the contract storage in process memory.
type MemoryLedger struct {
	mu      sync.RWMutex
	records []core.ExpenseRecord
	total   *big.Int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{total: new(big.Int)}
}

func (l *MemoryLedger) Append(_ context.Context, rec core.ExpenseRecord) error {
	amount, ok := new(big.Int).SetString(rec.Amount, 10)
	if !ok {
		return fmt.Errorf("ledger amount %q is not a base-10 integer", rec.Amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	l.total.Add(l.total, amount)
	return nil
}

func (l *MemoryLedger) Totals(context.Context) (*big.Int, int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.total), int64(len(l.records)), nil
}

func (l *MemoryLedger) Expense(_ context.Context, index int64) (core.ExpenseRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= int64(len(l.records)) {
		return core.ExpenseRecord{}, fmt.Errorf("%w: %d", core.ErrExpenseNotFound, index)
	}
	return l.records[index], nil
}
