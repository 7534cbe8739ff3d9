// Package contract holds the grocery-budget contract interface and the
// address it is deployed at.
package contract

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract method names.
const (
	MethodAddExpense   = "addExpense"
	MethodTotalSpent   = "totalSpent"
	MethodExpenseCount = "getExpenseCount"
	MethodGetExpense   = "getExpense"

	EventExpenseAdded = "ExpenseAdded"
)

// DevAddress is the address the local dev chain deploys the contract at.
const DevAddress = "0x000000000000000000000000000000000000bEEF"

//go:embed abi.json
var abiJSON string

// Binding is the explicit contract configuration handed to the service.
type Binding struct {
	Address common.Address
	ABI     abi.ABI
}

// ParseABI parses the embedded contract ABI.
func ParseABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse contract abi: %w", err)
	}
	return parsed, nil
}

// New binds the embedded ABI to the given hex address.
func New(address string) (Binding, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return Binding{}, fmt.Errorf("invalid contract address %q", address)
	}
	parsed, err := ParseABI()
	if err != nil {
		return Binding{}, err
	}
	return Binding{Address: common.HexToAddress(address), ABI: parsed}, nil
}

// Method returns the ABI method or an error naming the missing method.
func (b Binding) Method(name string) (abi.Method, error) {
	m, ok := b.ABI.Methods[name]
	if !ok {
		return abi.Method{}, fmt.Errorf("method %q not found in contract abi", name)
	}
	return m, nil
}

// IsZero reports whether the binding was never initialised.
func (b Binding) IsZero() bool {
	return b.Address == (common.Address{}) && len(b.ABI.Methods) == 0
}
