package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"grocerybudget/internal/chain/devchain"
	"grocerybudget/internal/chain/ethchain"
	"grocerybudget/internal/log"
	"grocerybudget/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(log.FieldComponent, log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createDevChain(config, devchain.NewMemoryLedger(), nil, nil)
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case EthereumBackend:
		return f.createEthereumBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	ledger, err := storage.NewSQLiteLedger(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite ledger: %w", err)
	}
	if err := ledger.Ping(ctx); err != nil {
		ledger.Close()
		return nil, fmt.Errorf("failed to reach SQLite ledger: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized SQLite ledger", "db_path", config.SQLiteDBPath)
	return f.createDevChain(config, ledger, ledger.Close, ledger.Ping)
}

func (f *DefaultFactory) createDevChain(config Config, ledger devchain.Ledger, closeLedger func() error, probe ProbeFunc) (*BackendResult, error) {
	dev, err := devchain.New(devchain.Options{
		Binding:       config.Binding,
		Ledger:        ledger,
		Wallet:        config.DevWallet,
		Confirmations: config.Confirmations,
		BlockInterval: config.DevBlockInterval,
		Logger:        f.logger,
	})
	if err != nil {
		if closeLedger != nil {
			closeLedger()
		}
		return nil, fmt.Errorf("failed to initialize dev chain: %w", err)
	}
	dev.Start()

	f.logger.Info("Initialized dev chain backend",
		log.FieldChainBackend, config.Type.String(),
		"contract", config.Binding.Address.Hex(),
		log.FieldAccount, config.DevWallet,
		"block_interval", config.DevBlockInterval)

	return &BackendResult{
		Backend: dev,
		Cleanup: func() error {
			err := dev.Close()
			if closeLedger != nil {
				err = errors.Join(err, closeLedger())
			}
			return err
		},
		Probe: probe,
	}, nil
}

func (f *DefaultFactory) createEthereumBackend(ctx context.Context, config Config) (*BackendResult, error) {
	eth, err := ethchain.Dial(ctx, config.RPCURL, ethchain.Options{
		Binding:       config.Binding,
		PrivateKey:    config.PrivateKey,
		ChainID:       config.ChainID,
		Confirmations: config.Confirmations,
		Logger:        f.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ethereum backend: %w", err)
	}

	conn, _ := eth.Connection(ctx)
	f.logger.InfoContext(ctx, "Initialized ethereum backend",
		"contract", config.Binding.Address.Hex(),
		"wallet_connected", conn.Connected,
		log.FieldAccount, conn.Address)

	return &BackendResult{
		Backend: eth,
		Cleanup: eth.Close,
		Probe: func(ctx context.Context) error {
			_, err := eth.BlockNumber(ctx)
			return err
		},
	}, nil
}
