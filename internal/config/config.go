package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Chain backends
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendEthereum = "ethereum"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Logging
	LogLevel string

	// Chain
	ChainBackend     string
	EthRPCURL        string
	ChainID          int64
	ContractAddress  string
	WalletPrivateKey string

	// Receipt watching
	ReceiptPollInterval time.Duration
	ReceiptTimeout      time.Duration
	Confirmations       int

	// Read cache
	ReadCacheTTL  time.Duration
	ReadCacheSize int

	// Recent expenses shown on the page
	ExpenseHistoryLimit int

	// Dev chain
	DevWalletAddress string
	DevBlockInterval time.Duration
	SQLiteDBPath     string

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		ChainBackend:     getEnv("CHAIN_BACKEND", BackendMemory),
		EthRPCURL:        getEnv("ETH_RPC_URL", ""),
		ChainID:          getEnvInt64("CHAIN_ID", 0),
		ContractAddress:  getEnv("CONTRACT_ADDRESS", ""),
		WalletPrivateKey: getEnv("WALLET_PRIVATE_KEY", ""),

		ReceiptPollInterval: getEnvDuration("RECEIPT_POLL_INTERVAL", 2*time.Second),
		ReceiptTimeout:      getEnvDuration("RECEIPT_TIMEOUT", 5*time.Minute),
		Confirmations:       getEnvInt("CONFIRMATIONS", 1),

		ReadCacheTTL:  getEnvDuration("READ_CACHE_TTL", 30*time.Second),
		ReadCacheSize: getEnvInt("READ_CACHE_SIZE", 256),

		ExpenseHistoryLimit: getEnvInt("EXPENSE_HISTORY_LIMIT", 10),

		DevWalletAddress: getEnv("DEV_WALLET_ADDRESS", "0x00000000000000000000000000000000000A11CE"),
		DevBlockInterval: getEnvDuration("DEV_BLOCK_INTERVAL", 2*time.Second),
		SQLiteDBPath:     getEnv("SQLITE_DB_PATH", "./data/grocery-budget.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "grocery_budget"),
	}

	return cfg
}

// IsDevChain reports whether the chain is simulated in process.
func (c *Config) IsDevChain() bool {
	return c.ChainBackend == BackendMemory || c.ChainBackend == BackendSQLite
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	// Validate chain backend
	validBackends := []string{BackendMemory, BackendSQLite, BackendEthereum}
	if !slices.Contains(validBackends, c.ChainBackend) {
		errors = append(errors, fmt.Sprintf("invalid chain backend '%s': must be one of %v", c.ChainBackend, validBackends))
	}

	if c.ContractAddress != "" && !common.IsHexAddress(c.ContractAddress) {
		errors = append(errors, fmt.Sprintf("invalid contract address '%s': must be a 20-byte hex address", c.ContractAddress))
	}

	if c.ChainBackend == BackendEthereum {
		if c.EthRPCURL == "" {
			errors = append(errors, "ETH_RPC_URL is required when using ethereum backend")
		} else if parsedURL, err := url.Parse(c.EthRPCURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid ETH RPC URL '%s': %v", c.EthRPCURL, err))
		} else if !slices.Contains([]string{"http", "https", "ws", "wss"}, parsedURL.Scheme) {
			errors = append(errors, fmt.Sprintf("invalid ETH RPC URL scheme '%s': must be one of http, https, ws, wss", parsedURL.Scheme))
		}
		if c.ContractAddress == "" {
			errors = append(errors, "CONTRACT_ADDRESS is required when using ethereum backend")
		}
		if c.WalletPrivateKey != "" {
			if _, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(c.WalletPrivateKey), "0x")); err != nil {
				// Never echo the key itself.
				errors = append(errors, fmt.Sprintf("invalid wallet private key: %v", err))
			}
		}
	}

	if c.ChainID < 0 {
		errors = append(errors, fmt.Sprintf("invalid chain id %d: must not be negative", c.ChainID))
	}

	if c.IsDevChain() {
		if c.DevWalletAddress != "" && !common.IsHexAddress(c.DevWalletAddress) {
			errors = append(errors, fmt.Sprintf("invalid dev wallet address '%s': must be a 20-byte hex address", c.DevWalletAddress))
		}
		if c.DevBlockInterval < 0 {
			errors = append(errors, fmt.Sprintf("invalid dev block interval %v: must not be negative", c.DevBlockInterval))
		}
	}

	// Validate SQLite configuration if backend is sqlite
	if c.ChainBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate receipt watching
	if c.ReceiptPollInterval < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid receipt poll interval %v: must be at least 100ms", c.ReceiptPollInterval))
	} else if c.ReceiptTimeout < c.ReceiptPollInterval {
		errors = append(errors, fmt.Sprintf("invalid receipt timeout %v: must be at least the poll interval %v", c.ReceiptTimeout, c.ReceiptPollInterval))
	}
	if c.Confirmations < 1 || c.Confirmations > 64 {
		errors = append(errors, fmt.Sprintf("invalid confirmations %d: must be between 1 and 64", c.Confirmations))
	}

	// Validate read cache
	if c.ReadCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid read cache size %d: must be at least 1", c.ReadCacheSize))
	}
	if c.ReadCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid read cache TTL %v: must be at least 1 second", c.ReadCacheTTL))
	}

	if c.ExpenseHistoryLimit < 0 || c.ExpenseHistoryLimit > 100 {
		errors = append(errors, fmt.Sprintf("invalid expense history limit %d: must be between 0 and 100", c.ExpenseHistoryLimit))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
