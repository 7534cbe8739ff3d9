package devchain

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grocerybudget/internal/chain"
	"grocerybudget/internal/contract"
	"grocerybudget/internal/core"
)

const wallet = "0x00000000000000000000000000000000000A11CE"

func newChain(t *testing.T, opts Options) (*Chain, contract.Binding) {
	t.Helper()
	b, err := contract.New(contract.DevAddress)
	require.NoError(t, err)
	opts.Binding = b
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Unix(1700000000, 0) }
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, b
}

func callInt(t *testing.T, c *Chain, b contract.Binding, method string) int64 {
	t.Helper()
	out, err := c.Call(context.Background(), chain.NewCall(b, method))
	require.NoError(t, err)
	require.Len(t, out, 1)
	return out[0].(*big.Int).Int64()
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	b, err := contract.New(contract.DevAddress)
	require.NoError(t, err)
	_, err = New(Options{Binding: b, Wallet: "nope"})
	assert.Error(t, err)
}

func TestConnection(t *testing.T) {
	c, _ := newChain(t, Options{})
	conn, err := c.Connection(context.Background())
	require.NoError(t, err)
	assert.False(t, conn.Connected)

	require.NoError(t, c.Connect(wallet))
	conn, _ = c.Connection(context.Background())
	assert.True(t, conn.Connected)
	assert.Equal(t, common.HexToAddress(wallet).Hex(), conn.Address)

	c.Disconnect()
	conn, _ = c.Connection(context.Background())
	assert.False(t, conn.Connected)
	assert.Error(t, c.Connect("0x12"))
}

func TestAddExpenseLifecycle(t *testing.T) {
	c, b := newChain(t, Options{Wallet: wallet, Confirmations: 2})
	ctx := context.Background()

	hash, err := c.Transact(ctx, chain.NewCall(b, contract.MethodAddExpense, "Milk", big.NewInt(5)))
	require.NoError(t, err)
	assert.Len(t, string(hash), 66)

	status, err := c.ReceiptStatus(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, core.ReceiptPending, status)
	assert.Zero(t, callInt(t, c, b, contract.MethodTotalSpent), "pending tx must not change state")

	height, err := c.Mine(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, height)
	status, _ = c.ReceiptStatus(ctx, hash)
	assert.Equal(t, core.ReceiptConfirming, status)

	_, err = c.Mine(ctx)
	require.NoError(t, err)
	status, _ = c.ReceiptStatus(ctx, hash)
	assert.Equal(t, core.ReceiptConfirmed, status)

	assert.EqualValues(t, 5, callInt(t, c, b, contract.MethodTotalSpent))
	assert.EqualValues(t, 1, callInt(t, c, b, contract.MethodExpenseCount))

	out, err := c.Call(ctx, chain.NewCall(b, contract.MethodGetExpense, big.NewInt(0)))
	require.NoError(t, err)
	got := []any{out[0], out[1].(*big.Int).String(), out[2].(*big.Int).Int64()}
	if diff := cmp.Diff([]any{"Milk", "5", int64(1700000000)}, got); diff != "" {
		t.Errorf("getExpense(0) mismatch (-want +got):\n%s", diff)
	}
}

func TestZeroAmountIsRecorded(t *testing.T) {
	c, b := newChain(t, Options{Wallet: wallet})
	ctx := context.Background()

	hash, err := c.Transact(ctx, chain.NewCall(b, contract.MethodAddExpense, "Free sample", big.NewInt(0)))
	require.NoError(t, err)
	_, err = c.Mine(ctx)
	require.NoError(t, err)

	status, err := c.ReceiptStatus(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, core.ReceiptConfirmed, status)
	assert.EqualValues(t, 1, callInt(t, c, b, contract.MethodExpenseCount))
	assert.Zero(t, callInt(t, c, b, contract.MethodTotalSpent))
}

func TestTransactHashesAreUnique(t *testing.T) {
	c, b := newChain(t, Options{Wallet: wallet})
	call := chain.NewCall(b, contract.MethodAddExpense, "Milk", big.NewInt(5))

	h1, err := c.Transact(context.Background(), call)
	require.NoError(t, err)
	h2, err := c.Transact(context.Background(), call)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestTransactRejections(t *testing.T) {
	c, b := newChain(t, Options{})
	ctx := context.Background()

	_, err := c.Transact(ctx, chain.NewCall(b, contract.MethodAddExpense, "Milk", big.NewInt(5)))
	assert.ErrorIs(t, err, core.ErrNotConnected)

	require.NoError(t, c.Connect(wallet))

	_, err = c.Transact(ctx, chain.NewCall(b, contract.MethodAddExpense, "", big.NewInt(5)))
	assert.ErrorIs(t, err, core.ErrContractRevert)

	_, err = c.Transact(ctx, chain.NewCall(b, contract.MethodAddExpense, "Milk", 5))
	assert.Error(t, err, "arguments are checked against the ABI")

	_, err = c.Transact(ctx, chain.NewCall(b, contract.MethodTotalSpent))
	assert.Error(t, err, "view methods cannot be transacted")

	other, err := contract.New("0x0000000000000000000000000000000000000001")
	require.NoError(t, err)
	_, err = c.Transact(ctx, chain.NewCall(other, contract.MethodAddExpense, "Milk", big.NewInt(5)))
	assert.Error(t, err)
}

func TestCallRejections(t *testing.T) {
	c, b := newChain(t, Options{Wallet: wallet})
	ctx := context.Background()

	_, err := c.Call(ctx, chain.NewCall(b, contract.MethodAddExpense, "Milk", big.NewInt(5)))
	assert.Error(t, err)

	_, err = c.Call(ctx, chain.NewCall(b, contract.MethodGetExpense, big.NewInt(3)))
	assert.ErrorIs(t, err, core.ErrContractRevert)
}

func TestUnknownHashIsPending(t *testing.T) {
	c, _ := newChain(t, Options{})
	status, err := c.ReceiptStatus(context.Background(), "0xdead")
	require.NoError(t, err)
	assert.Equal(t, core.ReceiptPending, status)
}

func TestStartMinesOnInterval(t *testing.T) {
	c, b := newChain(t, Options{Wallet: wallet, BlockInterval: 5 * time.Millisecond})
	c.Start()

	hash, err := c.Transact(context.Background(), chain.NewCall(b, contract.MethodAddExpense, "Eggs", big.NewInt(3)))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, _ := c.ReceiptStatus(context.Background(), hash)
		return status == core.ReceiptConfirmed
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestMemoryLedger(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, core.ExpenseRecord{Item: "a", Amount: "10", Timestamp: 1}))
	require.NoError(t, l.Append(ctx, core.ExpenseRecord{Item: "b", Amount: "340282366920938463463374607431768211456", Timestamp: 2}))
	assert.Error(t, l.Append(ctx, core.ExpenseRecord{Item: "c", Amount: "x"}))

	total, count, err := l.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, "340282366920938463463374607431768211466", total.String())
	assert.EqualValues(t, 2, count)

	rec, err := l.Expense(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", rec.Item)

	_, err = l.Expense(ctx, 2)
	assert.ErrorIs(t, err, core.ErrExpenseNotFound)
	_, err = l.Expense(ctx, -1)
	assert.ErrorIs(t, err, core.ErrExpenseNotFound)
}

func TestMineRevertsOnTotalOverflow(t *testing.T) {
	c, b := newChain(t, Options{Wallet: wallet})
	ctx := context.Background()
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	first, err := c.Transact(ctx, chain.NewCall(b, contract.MethodAddExpense, "Everything", max))
	require.NoError(t, err)
	second, err := c.Transact(ctx, chain.NewCall(b, contract.MethodAddExpense, "One more", big.NewInt(1)))
	require.NoError(t, err)
	_, err = c.Mine(ctx)
	require.NoError(t, err)

	status, _ := c.ReceiptStatus(ctx, first)
	assert.Equal(t, core.ReceiptConfirmed, status)
	status, _ = c.ReceiptStatus(ctx, second)
	assert.Equal(t, core.ReceiptFailed, status)
	assert.EqualValues(t, 1, callInt(t, c, b, contract.MethodExpenseCount))
}
