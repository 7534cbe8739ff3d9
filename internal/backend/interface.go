package backend

import (
	"context"
	"time"

	"grocerybudget/internal/chain"
	"grocerybudget/internal/contract"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// ProbeFunc checks that the backend can still reach its chain.
type ProbeFunc func(ctx context.Context) error

// BackendResult contains the chain backend and its lifecycle hooks
type BackendResult struct {
	Backend chain.Backend
	Cleanup CleanupFunc
	Probe   ProbeFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a chain backend based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	Binding       contract.Binding
	Confirmations uint64

	// Dev chain specific
	DevWallet        string
	DevBlockInterval time.Duration
	SQLiteDBPath     string

	// Ethereum specific
	RPCURL     string
	PrivateKey string
	ChainID    int64
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	EthereumBackend BackendType = "ethereum"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, EthereumBackend:
		return true
	default:
		return false
	}
}
