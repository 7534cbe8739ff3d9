package backend

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"grocerybudget/internal/chain"
	"grocerybudget/internal/config"
	"grocerybudget/internal/contract"
)

const devWallet = "0x00000000000000000000000000000000000A11CE"

func devBinding(t *testing.T) contract.Binding {
	t.Helper()
	b, err := contract.New(contract.DevAddress)
	if err != nil {
		t.Fatalf("contract.New: %v", err)
	}
	return b
}

func TestFromAppConfig(t *testing.T) {
	t.Run("dev chain defaults contract address", func(t *testing.T) {
		cfg, err := FromAppConfig(&config.Config{ChainBackend: "memory", Confirmations: 2, DevWalletAddress: devWallet})
		if err != nil {
			t.Fatalf("FromAppConfig: %v", err)
		}
		if cfg.Binding.Address.Hex() != contract.DevAddress {
			t.Errorf("address = %s, want %s", cfg.Binding.Address.Hex(), contract.DevAddress)
		}
		if cfg.Confirmations != 2 || cfg.DevWallet != devWallet {
			t.Errorf("unexpected config %+v", cfg)
		}
	})

	t.Run("ethereum requires an address", func(t *testing.T) {
		if _, err := FromAppConfig(&config.Config{ChainBackend: "ethereum"}); err == nil {
			t.Error("expected error without contract address")
		}
	})

	t.Run("invalid backend", func(t *testing.T) {
		if _, err := FromAppConfig(&config.Config{ChainBackend: "sheets"}); err == nil {
			t.Error("expected error for unknown backend")
		}
	})

	t.Run("nil config", func(t *testing.T) {
		if _, err := FromAppConfig(nil); err == nil {
			t.Error("expected error for nil config")
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	binding := devBinding(t)
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend, Binding: binding}, false},
		{"sqlite without path", Config{Type: SQLiteBackend, Binding: binding}, true},
		{"ethereum without url", Config{Type: EthereumBackend, Binding: binding}, true},
		{"missing binding", Config{Type: MemoryBackend}, true},
		{"unknown type", Config{Type: "paper", Binding: binding}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	want := []string{"memory", "sqlite", "ethereum"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func writeAndMine(t *testing.T, res *BackendResult, binding contract.Binding) {
	t.Helper()
	ctx := context.Background()

	conn, err := res.Backend.Connection(ctx)
	if err != nil || !conn.Connected {
		t.Fatalf("expected connected dev wallet, got %+v err=%v", conn, err)
	}

	hash, err := res.Backend.Transact(ctx, chain.NewCall(binding, contract.MethodAddExpense, "Milk", bigInt(5)))
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := res.Backend.ReceiptStatus(ctx, hash)
		if err != nil {
			t.Fatalf("ReceiptStatus: %v", err)
		}
		if status.Terminal() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("transaction was never mined")
}

func TestFactory_CreateMemoryBackend(t *testing.T) {
	binding := devBinding(t)
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:             MemoryBackend,
		Binding:          binding,
		DevWallet:        devWallet,
		DevBlockInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Cleanup()

	if res.Probe != nil {
		t.Error("memory backend has nothing to probe")
	}
	writeAndMine(t, res, binding)
}

func TestFactory_CreateSQLiteBackend(t *testing.T) {
	binding := devBinding(t)
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	cfg := Config{
		Type:             SQLiteBackend,
		Binding:          binding,
		DevWallet:        devWallet,
		DevBlockInterval: 10 * time.Millisecond,
		SQLiteDBPath:     dbPath,
	}

	res, err := NewFactory(nil).CreateBackend(context.Background(), cfg)
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if res.Probe == nil {
		t.Fatal("sqlite backend should expose a probe")
	}
	if err := res.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	writeAndMine(t, res, binding)
	if err := res.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	// The ledger survives a restart.
	res, err = NewFactory(nil).CreateBackend(context.Background(), cfg)
	if err != nil {
		t.Fatalf("CreateBackend after restart: %v", err)
	}
	defer res.Cleanup()

	out, err := res.Backend.Call(context.Background(), chain.NewCall(binding, contract.MethodExpenseCount))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if count, ok := out[0].(*big.Int); !ok || count.Int64() != 1 {
		t.Errorf("expense count after restart = %v, want 1", out[0])
	}
}

func TestFactory_CreateBackendRejectsInvalidConfig(t *testing.T) {
	if _, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: "paper"}); err == nil {
		t.Error("expected error for invalid config")
	}
}

func bigInt(v int64) *big.Int { return big.NewInt(v) }
