// Package ethchain is the chain.Backend for a real Ethereum JSON-RPC node.
package ethchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"grocerybudget/internal/chain"
	"grocerybudget/internal/contract"
	"grocerybudget/internal/core"
	"grocerybudget/internal/log"
)

// Node is the subset of ethclient.Client the backend needs.
type Node interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type Options struct {
	Binding contract.Binding
	// PrivateKey is the hex signer key. Without one the backend is read-only
	// and reports no connected wallet.
	PrivateKey    string
	ChainID       int64
	Confirmations uint64
	Logger        *slog.Logger
}

type Backend struct {
	node          Node
	binding       contract.Binding
	bound         *bind.BoundContract
	key           *ecdsa.PrivateKey
	from          common.Address
	chainID       *big.Int
	confirmations uint64
	logger        *slog.Logger
	closer        func()
}

var _ chain.Backend = (*Backend)(nil)

// Dial connects to rpcURL and builds a backend over it.
func Dial(ctx context.Context, rpcURL string, opts Options) (*Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, core.NewChainError(core.ErrNetwork, "dial", err)
	}
	b, err := New(ctx, client, opts)
	if err != nil {
		client.Close()
		return nil, err
	}
	b.closer = client.Close
	return b, nil
}

// New builds a backend over an existing node connection.
func New(ctx context.Context, node Node, opts Options) (*Backend, error) {
	if opts.Binding.IsZero() {
		return nil, errors.New("ethchain: contract binding is required")
	}
	if opts.Confirmations == 0 {
		opts.Confirmations = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &Backend{
		node:          node,
		binding:       opts.Binding,
		bound:         bind.NewBoundContract(opts.Binding.Address, opts.Binding.ABI, node, node, node),
		confirmations: opts.Confirmations,
		logger:        logger.With(log.FieldComponent, log.ComponentChain, log.FieldChainBackend, "ethereum"),
	}

	if key := strings.TrimPrefix(strings.TrimSpace(opts.PrivateKey), "0x"); key != "" {
		pk, err := crypto.HexToECDSA(key)
		if err != nil {
			return nil, fmt.Errorf("ethchain: parse private key: %w", err)
		}
		b.key = pk
		b.from = crypto.PubkeyToAddress(pk.PublicKey)
	}

	if opts.ChainID > 0 {
		b.chainID = big.NewInt(opts.ChainID)
	} else if b.key != nil {
		id, err := node.ChainID(ctx)
		if err != nil {
			return nil, classify("chain id", err)
		}
		b.chainID = id
	}
	return b, nil
}

// Close releases the node connection when the backend dialled it.
func (b *Backend) Close() error {
	if b.closer != nil {
		b.closer()
	}
	return nil
}

func (b *Backend) Connection(context.Context) (chain.Connection, error) {
	if b.key == nil {
		return chain.Connection{}, nil
	}
	return chain.Connection{Connected: true, Address: b.from.Hex()}, nil
}

func (b *Backend) checkContract(call chain.Call) error {
	if call.Contract.Address != b.binding.Address {
		return fmt.Errorf("backend is bound to %s, not %s", b.binding.Address.Hex(), call.Contract.Address.Hex())
	}
	return nil
}

func (b *Backend) Call(ctx context.Context, call chain.Call) ([]any, error) {
	if err := b.checkContract(call); err != nil {
		return nil, err
	}
	var out []any
	opts := &bind.CallOpts{Context: ctx, From: b.from}
	if err := b.bound.Call(opts, &out, call.Method, call.Args...); err != nil {
		return nil, classify("call "+call.Method, err)
	}
	return out, nil
}

func (b *Backend) Transact(ctx context.Context, call chain.Call) (chain.TxHash, error) {
	if err := b.checkContract(call); err != nil {
		return "", err
	}
	if b.key == nil {
		return "", core.ErrNotConnected
	}

	opts, err := bind.NewKeyedTransactorWithChainID(b.key, b.chainID)
	if err != nil {
		return "", core.NewChainError(core.ErrWallet, "signer", err)
	}
	opts.Context = ctx

	tx, err := b.bound.Transact(opts, call.Method, call.Args...)
	if err != nil {
		return "", classify("transact "+call.Method, err)
	}
	b.logger.DebugContext(ctx, "Transaction sent", log.FieldTxHash, tx.Hash().Hex(), "nonce", tx.Nonce())
	return chain.TxHash(tx.Hash().Hex()), nil
}

func (b *Backend) ReceiptStatus(ctx context.Context, hash chain.TxHash) (core.ReceiptStatus, error) {
	receipt, err := b.node.TransactionReceipt(ctx, common.HexToHash(string(hash)))
	if errors.Is(err, ethereum.NotFound) {
		return core.ReceiptPending, nil
	}
	if err != nil {
		return core.ReceiptUnknown, classify("receipt", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return core.ReceiptFailed, nil
	}

	head, err := b.node.BlockNumber(ctx)
	if err != nil {
		return core.ReceiptUnknown, classify("block number", err)
	}
	included := receipt.BlockNumber.Uint64()
	if head >= included && head-included+1 >= b.confirmations {
		return core.ReceiptConfirmed, nil
	}
	return core.ReceiptConfirming, nil
}

// BlockNumber reports the node head, used for readiness checks.
func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := b.node.BlockNumber(ctx)
	if err != nil {
		return 0, classify("block number", err)
	}
	return n, nil
}
