// Package chain is the generic contract client the expense service talks to:
// wallet status, cached read queries, contract writes and receipt tracking.
// Concrete chains plug in through Backend.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"grocerybudget/internal/contract"
	"grocerybudget/internal/core"
)

type (
	// TxHash is the hex hash of a submitted transaction.
	TxHash string

	// Connection describes the wallet/account the client writes with.
	Connection struct {
		Connected bool
		Address   string
	}

	// Call names one contract method invocation.
	Call struct {
		Contract contract.Binding
		Method   string
		Args     []any
	}

	// ReceiptEvent is emitted whenever a tracked receipt changes status.
	ReceiptEvent struct {
		Hash   TxHash
		Status core.ReceiptStatus
		Err    error
	}

	// ReceiptObserver receives receipt status changes.
	ReceiptObserver func(ReceiptEvent)
)

// Backend is a chain the client can read from and write to.
type Backend interface {
	Connection(ctx context.Context) (Connection, error)
	// Call executes a view method and returns its decoded outputs.
	Call(ctx context.Context, call Call) ([]any, error)
	// Transact submits a state-changing method and returns its hash.
	Transact(ctx context.Context, call Call) (TxHash, error)
	// ReceiptStatus reports where the transaction stands. Unknown hashes
	// report ReceiptPending.
	ReceiptStatus(ctx context.Context, hash TxHash) (core.ReceiptStatus, error)
}

// NewCall builds a call against binding.
func NewCall(binding contract.Binding, method string, args ...any) Call {
	return Call{Contract: binding, Method: method, Args: args}
}

// Key identifies the call for caching: same contract, method and arguments.
func (c Call) Key() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(c.Contract.Address.Hex()))
	b.WriteByte(':')
	b.WriteString(c.Method)
	for _, arg := range c.Args {
		b.WriteByte(':')
		switch v := arg.(type) {
		case *big.Int:
			b.WriteString(v.String())
		default:
			fmt.Fprintf(&b, "%v", v)
		}
	}
	return b.String()
}

func (h TxHash) String() string { return string(h) }
