package ethchain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"grocerybudget/internal/core"
)

// classify tags node errors. Reverts that carry ABI-encoded revert data
// get the decoded reason appended.
func classify(op string, err error) error {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := dataErr.ErrorData().(string); ok {
			if reason, uerr := abi.UnpackRevert(common.FromHex(data)); uerr == nil {
				return core.NewChainError(core.ErrContractRevert, op, fmt.Errorf("%w (reason: %s)", err, reason))
			}
		}
	}
	return core.ClassifyChainError(op, err)
}
