package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestSubmissionStateIsLoading(t *testing.T) {
	// Every combination of the three constituents.
	for mask := 0; mask < 8; mask++ {
		s := SubmissionState{
			Submitting:   mask&1 != 0,
			IsPending:    mask&2 != 0,
			IsConfirming: mask&4 != 0,
		}
		want := mask != 0
		if s.IsLoading() != want {
			t.Fatalf("mask %03b: IsLoading=%v want %v", mask, s.IsLoading(), want)
		}
		// IsConfirmed and Err never influence IsLoading.
		s.IsConfirmed = true
		s.Err = errors.New("x")
		if s.IsLoading() != want {
			t.Fatalf("mask %03b: IsLoading changed by confirmed/err", mask)
		}
	}
}

func TestSubmissionStatePhase(t *testing.T) {
	cases := []struct {
		s    SubmissionState
		want Phase
	}{
		{SubmissionState{}, PhaseIdle},
		{SubmissionState{Submitting: true}, PhaseSubmitting},
		{SubmissionState{IsPending: true}, PhaseSubmitting},
		{SubmissionState{IsConfirming: true, TransactionHash: "0x1"}, PhaseAwaitingReceipt},
		{SubmissionState{IsConfirmed: true, TransactionHash: "0x1"}, PhaseConfirmed},
		{SubmissionState{Err: ErrNetwork}, PhaseFailed},
	}
	for i, tc := range cases {
		if got := tc.s.Phase(); got != tc.want {
			t.Fatalf("case %d: phase=%s want %s", i, got, tc.want)
		}
	}
}

func TestReceiptStatus(t *testing.T) {
	if !ReceiptPending.Awaiting() || !ReceiptConfirming.Awaiting() {
		t.Fatalf("pending and confirming should be awaiting")
	}
	if ReceiptConfirmed.Awaiting() || ReceiptFailed.Awaiting() || ReceiptUnknown.Awaiting() {
		t.Fatalf("unexpected awaiting status")
	}
	if !ReceiptConfirmed.Terminal() || !ReceiptFailed.Terminal() || ReceiptPending.Terminal() {
		t.Fatalf("unexpected terminal status")
	}
	if ReceiptConfirming.String() != "confirming" {
		t.Fatalf("unexpected string %q", ReceiptConfirming.String())
	}
}

func TestChainErrorClassification(t *testing.T) {
	raw := errors.New("dial tcp: connection refused")
	err := NewChainError(ErrNetwork, "call", raw)
	if !errors.Is(err, ErrNetwork) || !errors.Is(err, raw) {
		t.Fatalf("expected network class and raw cause: %v", err)
	}
	if errors.Is(err, ErrWallet) {
		t.Fatalf("network error must not match wallet class")
	}

	// Re-wrapping keeps the original class.
	again := NewChainError(ErrWallet, "submit", fmt.Errorf("outer: %w", err))
	if !errors.Is(again, ErrNetwork) {
		t.Fatalf("expected original class preserved: %v", again)
	}

	notConnected := NewChainError(ErrNotConnected, "transact", errors.New("no signer"))
	if !errors.Is(notConnected, ErrWallet) {
		t.Fatalf("not-connected should be a wallet error")
	}
	if NewChainError(ErrNetwork, "x", nil) != nil {
		t.Fatalf("nil error should stay nil")
	}
}

func TestErrorType(t *testing.T) {
	cases := map[string]error{
		"":                      nil,
		"parse_error":           &ParseError{Input: "x", Err: ErrInvalidAmount},
		"contract_revert_error": NewChainError(ErrContractRevert, "op", errors.New("r")),
		"timeout_error":         NewChainError(ErrReceiptTimeout, "op", errors.New("t")),
		"wallet_error":          NewChainError(ErrWallet, "op", errors.New("w")),
		"network_error":         NewChainError(ErrNetwork, "op", errors.New("n")),
		"internal_error":        errors.New("other"),
	}
	for want, err := range cases {
		if got := ErrorType(err); got != want {
			t.Fatalf("ErrorType(%v)=%q want %q", err, got, want)
		}
	}
}
