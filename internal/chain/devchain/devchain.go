// Package devchain simulates the grocery-budget contract on a local chain
// so the front-end can run without a node. Calls are validated and decoded
// through the real contract ABI; pending transactions are mined into blocks
// on an interval or on demand.
package devchain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"grocerybudget/internal/chain"
	"grocerybudget/internal/contract"
	"grocerybudget/internal/core"
	"grocerybudget/internal/log"
)

// DefaultConfirmations is the block depth at which a receipt counts as confirmed.
const DefaultConfirmations = 1

var errReverted = errors.New("execution reverted")

type Options struct {
	Binding contract.Binding
	Ledger  Ledger
	// Wallet is the connected account; empty starts disconnected.
	Wallet        string
	Confirmations uint64
	// BlockInterval mines pending transactions periodically once Start
	// is called. Zero leaves mining to Mine.
	BlockInterval time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

type pendingTx struct {
	hash   chain.TxHash
	item   string
	amount *big.Int
}

type txRecord struct {
	block  uint64 // 0 while pending
	failed bool
}

// Chain is an in-process chain.Backend.
type Chain struct {
	binding       contract.Binding
	ledger        Ledger
	confirmations uint64
	interval      time.Duration
	now           func() time.Time
	logger        *slog.Logger

	mu      sync.Mutex
	wallet  string
	height  uint64
	nonce   uint64
	pending []pendingTx
	txs     map[chain.TxHash]*txRecord

	stop chan struct{}
	wg   sync.WaitGroup
}

var _ chain.Backend = (*Chain)(nil)

// New creates a dev chain with the contract deployed at opts.Binding.
func New(opts Options) (*Chain, error) {
	if opts.Binding.IsZero() {
		return nil, errors.New("devchain: contract binding is required")
	}
	if opts.Wallet != "" && !common.IsHexAddress(opts.Wallet) {
		return nil, fmt.Errorf("devchain: invalid wallet address %q", opts.Wallet)
	}
	if opts.Ledger == nil {
		opts.Ledger = NewMemoryLedger()
	}
	if opts.Confirmations == 0 {
		opts.Confirmations = DefaultConfirmations
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Chain{
		binding:       opts.Binding,
		ledger:        opts.Ledger,
		confirmations: opts.Confirmations,
		interval:      opts.BlockInterval,
		now:           opts.Now,
		logger:        logger.With(log.FieldComponent, log.ComponentDevChain),
		txs:           make(map[chain.TxHash]*txRecord),
		stop:          make(chan struct{}),
	}
	if opts.Wallet != "" {
		c.wallet = common.HexToAddress(opts.Wallet).Hex()
	}
	return c, nil
}

// Start mines a block every BlockInterval until Close.
func (c *Chain) Start() {
	if c.interval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := c.Mine(context.Background()); err != nil {
					c.logger.Error("Mining block failed", log.FieldError, err)
				}
			case <-c.stop:
				return
			}
		}
	}()
}

// Close stops the block ticker.
func (c *Chain) Close() error {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	c.wg.Wait()
	return nil
}

// Connect attaches a wallet account.
func (c *Chain) Connect(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("devchain: invalid wallet address %q", address)
	}
	c.mu.Lock()
	c.wallet = common.HexToAddress(address).Hex()
	c.mu.Unlock()
	return nil
}

// Disconnect detaches the wallet.
func (c *Chain) Disconnect() {
	c.mu.Lock()
	c.wallet = ""
	c.mu.Unlock()
}

// Height returns the number of mined blocks.
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

func (c *Chain) Connection(context.Context) (chain.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return chain.Connection{Connected: c.wallet != "", Address: c.wallet}, nil
}

func (c *Chain) method(call chain.Call) (contractMethod, error) {
	if call.Contract.Address != c.binding.Address {
		return contractMethod{}, fmt.Errorf("no contract deployed at %s", call.Contract.Address.Hex())
	}
	m, err := c.binding.Method(call.Method)
	if err != nil {
		return contractMethod{}, err
	}
	data, err := c.binding.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return contractMethod{}, fmt.Errorf("encode %s arguments: %w", call.Method, err)
	}
	return contractMethod{name: m.Name, constant: m.IsConstant(), data: data}, nil
}

type contractMethod struct {
	name     string
	constant bool
	data     []byte
}

// Call executes a view method. Outputs are encoded and decoded through the
// ABI so they have the same Go types a node would return.
func (c *Chain) Call(ctx context.Context, call chain.Call) ([]any, error) {
	m, err := c.method(call)
	if err != nil {
		return nil, err
	}
	if !m.constant {
		return nil, fmt.Errorf("%s is not a view method", m.name)
	}

	var values []any
	switch m.name {
	case contract.MethodTotalSpent:
		total, _, err := c.ledger.Totals(ctx)
		if err != nil {
			return nil, core.NewChainError(core.ErrNetwork, "call "+m.name, err)
		}
		values = []any{total}
	case contract.MethodExpenseCount:
		_, count, err := c.ledger.Totals(ctx)
		if err != nil {
			return nil, core.NewChainError(core.ErrNetwork, "call "+m.name, err)
		}
		values = []any{big.NewInt(count)}
	case contract.MethodGetExpense:
		index := call.Args[0].(*big.Int)
		if !index.IsInt64() {
			return nil, core.NewChainError(core.ErrContractRevert, "call "+m.name, fmt.Errorf("%w: index out of range", errReverted))
		}
		rec, err := c.ledger.Expense(ctx, index.Int64())
		if errors.Is(err, core.ErrExpenseNotFound) {
			return nil, core.NewChainError(core.ErrContractRevert, "call "+m.name, fmt.Errorf("%w: index out of range", errReverted))
		}
		if err != nil {
			return nil, core.NewChainError(core.ErrNetwork, "call "+m.name, err)
		}
		amount, _ := new(big.Int).SetString(rec.Amount, 10)
		values = []any{rec.Item, amount, big.NewInt(rec.Timestamp)}
	default:
		return nil, fmt.Errorf("devchain does not implement %s", m.name)
	}

	abiMethod := c.binding.ABI.Methods[m.name]
	packed, err := abiMethod.Outputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("encode %s outputs: %w", m.name, err)
	}
	return c.binding.ABI.Unpack(m.name, packed)
}

// Transact queues a state-changing call for the next block. An empty item
// reverts here, before a hash is issued. Zero amounts are recorded.
func (c *Chain) Transact(_ context.Context, call chain.Call) (chain.TxHash, error) {
	m, err := c.method(call)
	if err != nil {
		return "", err
	}
	if m.constant {
		return "", fmt.Errorf("%s is a view method", m.name)
	}
	if m.name != contract.MethodAddExpense {
		return "", fmt.Errorf("devchain does not implement %s", m.name)
	}

	item := call.Args[0].(string)
	amount := call.Args[1].(*big.Int)
	switch {
	case item == "":
		return "", core.NewChainError(core.ErrContractRevert, "estimate gas", fmt.Errorf("%w: item required", errReverted))
	case amount.Sign() < 0:
		return "", core.NewChainError(core.ErrContractRevert, "estimate gas", fmt.Errorf("%w: amount must not be negative", errReverted))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wallet == "" {
		return "", core.ErrNotConnected
	}

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], c.nonce)
	c.nonce++
	hash := chain.TxHash(crypto.Keccak256Hash(common.HexToAddress(c.wallet).Bytes(), nonce[:], m.data).Hex())

	c.pending = append(c.pending, pendingTx{hash: hash, item: item, amount: new(big.Int).Set(amount)})
	c.txs[hash] = &txRecord{}
	return hash, nil
}

// Mine includes all pending transactions in a new block and returns its number.
func (c *Chain) Mine(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total, _, err := c.ledger.Totals(ctx)
	if err != nil {
		return c.height, fmt.Errorf("read ledger totals: %w", err)
	}

	c.height++
	ts := c.now().Unix()
	var errs []error
	for _, tx := range c.pending {
		rec := c.txs[tx.hash]
		rec.block = c.height

		next := new(big.Int).Add(total, tx.amount)
		if next.BitLen() > 256 {
			// Checked arithmetic in the contract reverts the transaction.
			rec.failed = true
			continue
		}
		err := c.ledger.Append(ctx, core.ExpenseRecord{Item: tx.item, Amount: tx.amount.String(), Timestamp: ts})
		if err != nil {
			rec.failed = true
			errs = append(errs, fmt.Errorf("apply %s: %w", tx.hash, err))
			continue
		}
		total = next
	}
	if n := len(c.pending); n > 0 {
		c.logger.Debug("Mined block", log.FieldBlock, c.height, "transactions", n)
	}
	c.pending = nil
	return c.height, errors.Join(errs...)
}

func (c *Chain) ReceiptStatus(_ context.Context, hash chain.TxHash) (core.ReceiptStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.txs[hash]
	switch {
	case !ok, rec.block == 0:
		return core.ReceiptPending, nil
	case rec.failed:
		return core.ReceiptFailed, nil
	case c.height-rec.block+1 >= c.confirmations:
		return core.ReceiptConfirmed, nil
	default:
		return core.ReceiptConfirming, nil
	}
}
