package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrAmountOverflow = errors.New("amount exceeds uint256")

	ErrWallet         = errors.New("wallet error")
	ErrNetwork        = errors.New("network error")
	ErrContractRevert = errors.New("contract reverted")
	ErrReceiptTimeout = errors.New("receipt wait timed out")

	ErrNotConnected = fmt.Errorf("%w: no wallet connected", ErrWallet)

	ErrExpenseNotFound = errors.New("expense index out of range")
)

// ParseError reports an amount that is not a non-negative base-10 integer.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse amount %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ChainError is a chain client failure tagged with its class
// (ErrWallet, ErrNetwork, ErrContractRevert or ErrReceiptTimeout).
type ChainError struct {
	Kind error
	Op   string
	Err  error
}

// NewChainError wraps err under the given class. A nil err yields nil.
func NewChainError(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ChainError
	if errors.As(err, &ce) {
		return err
	}
	return &ChainError{Kind: kind, Op: op, Err: err}
}

func (e *ChainError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }

// Is matches the error class so errors.Is(err, ErrNetwork) works.
func (e *ChainError) Is(target error) bool {
	return target == e.Kind || errors.Is(e.Kind, target)
}

// ClassifyChainError tags a raw backend error with its class. Errors that
// are already classified pass through unchanged.
func ClassifyChainError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ChainError
	if errors.As(err, &ce) {
		return err
	}

	var netErr net.Error
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.As(err, &netErr):
		return NewChainError(ErrNetwork, op, err)
	case strings.Contains(msg, "revert"):
		return NewChainError(ErrContractRevert, op, err)
	case strings.Contains(msg, "insufficient funds"),
		strings.Contains(msg, "nonce"),
		strings.Contains(msg, "rejected"),
		strings.Contains(msg, "signer"),
		strings.Contains(msg, "unauthorized"):
		return NewChainError(ErrWallet, op, err)
	default:
		return NewChainError(ErrNetwork, op, err)
	}
}

// ErrorType returns a stable label for logging and display.
func ErrorType(err error) string {
	var pe *ParseError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return "parse_error"
	case errors.Is(err, ErrContractRevert):
		return "contract_revert_error"
	case errors.Is(err, ErrReceiptTimeout):
		return "timeout_error"
	case errors.Is(err, ErrWallet):
		return "wallet_error"
	case errors.Is(err, ErrNetwork):
		return "network_error"
	default:
		return "internal_error"
	}
}
