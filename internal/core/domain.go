package core

import "time"

const (
	ReceiptUnknown ReceiptStatus = iota
	ReceiptPending
	ReceiptConfirming
	ReceiptConfirmed
	ReceiptFailed
)

type (
	// ReceiptStatus is where a submitted transaction stands on chain.
	ReceiptStatus int

	// ExpenseRecord is a single expense as stored by the contract.
	ExpenseRecord struct {
		Item      string
		Amount    string // base-10 integer
		Timestamp int64  // unix seconds, block time
	}

	// AggregateView is the read-only summary rendered by the front-end.
	AggregateView struct {
		TotalSpent   string
		ExpenseCount int64
		Expenses     []ExpenseRecord
	}
)

// EmptyAggregateView returns the zero defaults shown before any read resolves.
func EmptyAggregateView() AggregateView {
	return AggregateView{TotalSpent: "0"}
}

// Time returns the record timestamp as UTC time.
func (r ExpenseRecord) Time() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

func (s ReceiptStatus) String() string {
	switch s {
	case ReceiptPending:
		return "pending"
	case ReceiptConfirming:
		return "confirming"
	case ReceiptConfirmed:
		return "confirmed"
	case ReceiptFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Awaiting reports whether the receipt is still outstanding.
func (s ReceiptStatus) Awaiting() bool {
	return s == ReceiptPending || s == ReceiptConfirming
}

// Terminal reports whether no further status change can follow.
func (s ReceiptStatus) Terminal() bool {
	return s == ReceiptConfirmed || s == ReceiptFailed
}
