package core

const (
	PhaseIdle            Phase = "idle"
	PhaseSubmitting      Phase = "submitting"
	PhaseAwaitingReceipt Phase = "awaiting_receipt"
	PhaseConfirmed       Phase = "confirmed"
	PhaseFailed          Phase = "failed"
)

// Phase names a step of the single-submission lifecycle.
type Phase string

// SubmissionState is a snapshot of the current (or just completed) submission.
type SubmissionState struct {
	Submitting      bool // local AddExpense call in flight
	IsPending       bool // write call outstanding at the chain client
	IsConfirming    bool // waiting for the receipt of TransactionHash
	IsConfirmed     bool
	TransactionHash string // empty when nothing was accepted yet
	Err             error
}

// IsLoading is derived from its constituents on every call and never stored.
func (s SubmissionState) IsLoading() bool {
	return s.Submitting || s.IsPending || s.IsConfirming
}

// Phase maps the snapshot onto the lifecycle idle → submitting →
// awaiting_receipt → confirmed | failed.
func (s SubmissionState) Phase() Phase {
	switch {
	case s.Submitting || s.IsPending:
		return PhaseSubmitting
	case s.IsConfirming:
		return PhaseAwaitingReceipt
	case s.IsConfirmed:
		return PhaseConfirmed
	case s.Err != nil:
		return PhaseFailed
	default:
		return PhaseIdle
	}
}
