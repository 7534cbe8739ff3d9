package backend

import (
	"fmt"

	"grocerybudget/internal/config"
	"grocerybudget/internal/contract"
)

// FromAppConfig converts the application config to backend config. Dev
// chains without a configured contract address deploy at contract.DevAddress.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.ChainBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.ChainBackend)
	}

	address := appConfig.ContractAddress
	if address == "" && backendType != EthereumBackend {
		address = contract.DevAddress
	}
	binding, err := contract.New(address)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Type:          backendType,
		Binding:       binding,
		Confirmations: uint64(appConfig.Confirmations),

		DevWallet:        appConfig.DevWalletAddress,
		DevBlockInterval: appConfig.DevBlockInterval,
		SQLiteDBPath:     appConfig.SQLiteDBPath,

		RPCURL:     appConfig.EthRPCURL,
		PrivateKey: appConfig.WalletPrivateKey,
		ChainID:    appConfig.ChainID,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Binding.IsZero() {
		return fmt.Errorf("contract binding is required")
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}

	case EthereumBackend:
		if c.RPCURL == "" {
			return fmt.Errorf("RPC URL is required for ethereum backend")
		}

	case MemoryBackend:
		// Memory backend doesn't require additional validation
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, EthereumBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
