package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"grocerybudget/internal/chain"
	"grocerybudget/internal/contract"
	"grocerybudget/internal/core"
	"grocerybudget/internal/log"
)

const (
	DefaultHistoryLimit   = 10
	DefaultRefreshTimeout = 15 * time.Second

	historyReadConcurrency = 4
)

// ChainClient is what the service needs from the chain client.
type ChainClient interface {
	ConnectionStatus(ctx context.Context) (chain.Connection, error)
	ReadQuery(ctx context.Context, call chain.Call) ([]any, error)
	Refetch(ctx context.Context, call chain.Call) ([]any, error)
	SubmitWrite(ctx context.Context, call chain.Call) (chain.TxHash, error)
	AwaitReceipt(hash chain.TxHash)
	Subscribe(obs chain.ReceiptObserver) func()
}

// ConfirmationPublisher announces confirmed expenses to other instances.
type ConfirmationPublisher interface {
	PublishExpenseConfirmed(ctx context.Context, txHash, item, amount string) error
}

type Config struct {
	Contract contract.Binding
	// HistoryLimit caps how many recent expenses GetAggregateView reads.
	// Zero disables the history reads.
	HistoryLimit   int
	RefreshTimeout time.Duration
}

type submission struct {
	item   string
	amount string
}

// ExpenseContractService exposes the grocery-budget contract to the view:
// aggregate reads, expense submission and the composite submission status.
type ExpenseContractService struct {
	cfg       Config
	client    ChainClient
	publisher ConfirmationPublisher
	logger    *slog.Logger
	events    *log.StructuredLogger

	mu            sync.Mutex
	inFlight      int
	pendingWrites int
	txHash        chain.TxHash
	receipt       core.ReceiptStatus
	err           error
	current       submission

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// NewExpenseContractService wires the service to client and registers its
// receipt observer. publisher may be nil.
func NewExpenseContractService(cfg Config, client ChainClient, publisher ConfirmationPublisher, logger *slog.Logger) *ExpenseContractService {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.HistoryLimit < 0 {
		cfg.HistoryLimit = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &ExpenseContractService{
		cfg:       cfg,
		client:    client,
		publisher: publisher,
		logger:    logger.With(log.FieldComponent, log.ComponentExpense),
		events:    log.NewStructuredLogger(log.New(log.Config{Handler: logger.Handler(), Component: log.ComponentExpense})),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.unsubscribe = client.Subscribe(s.onReceipt)
	return s
}

// AggregateCalls returns the two aggregate reads, totalSpent and
// getExpenseCount, in that order.
func AggregateCalls(binding contract.Binding) []chain.Call {
	return []chain.Call{
		chain.NewCall(binding, contract.MethodTotalSpent),
		chain.NewCall(binding, contract.MethodExpenseCount),
	}
}

// ConnectionStatus reports whether a wallet is connected.
func (s *ExpenseContractService) ConnectionStatus(ctx context.Context) (chain.Connection, error) {
	return s.client.ConnectionStatus(ctx)
}

// GetAggregateView reads the aggregates and the recent expense history.
// Failed reads fall back to their zero defaults and are logged.
func (s *ExpenseContractService) GetAggregateView(ctx context.Context) core.AggregateView {
	view := core.EmptyAggregateView()
	calls := AggregateCalls(s.cfg.Contract)

	var g errgroup.Group
	g.Go(func() error {
		total, err := s.readUint(ctx, calls[0])
		if err != nil {
			s.logReadError(ctx, calls[0], err)
			return nil
		}
		view.TotalSpent = core.FormatAmount(total)
		return nil
	})
	g.Go(func() error {
		count, err := s.readUint(ctx, calls[1])
		if err != nil {
			s.logReadError(ctx, calls[1], err)
			return nil
		}
		if !count.IsInt64() {
			s.logReadError(ctx, calls[1], fmt.Errorf("expense count %s out of range", count))
			return nil
		}
		view.ExpenseCount = count.Int64()
		return nil
	})
	_ = g.Wait()

	view.Expenses = s.recentExpenses(ctx, view.ExpenseCount)
	return view
}

func (s *ExpenseContractService) recentExpenses(ctx context.Context, count int64) []core.ExpenseRecord {
	limit := int64(s.cfg.HistoryLimit)
	if limit == 0 || count == 0 {
		return nil
	}
	start := count - limit
	if start < 0 {
		start = 0
	}

	slots := make([]*core.ExpenseRecord, count-start)
	g := new(errgroup.Group)
	g.SetLimit(historyReadConcurrency)
	for i := start; i < count; i++ {
		call := chain.NewCall(s.cfg.Contract, contract.MethodGetExpense, big.NewInt(i))
		slot := &slots[i-start]
		g.Go(func() error {
			out, err := s.client.ReadQuery(ctx, call)
			if err != nil {
				s.logReadError(ctx, call, err)
				return nil
			}
			rec, err := decodeExpense(out)
			if err != nil {
				s.logReadError(ctx, call, err)
				return nil
			}
			*slot = &rec
			return nil
		})
	}
	_ = g.Wait()

	records := make([]core.ExpenseRecord, 0, len(slots))
	for _, rec := range slots {
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records
}

// AddExpense submits an expense. Empty fields are ignored. An amount that
// is not a non-negative integer fails with *core.ParseError before anything
// is sent. On acceptance the transaction becomes the current submission.
func (s *ExpenseContractService) AddExpense(ctx context.Context, item, amount string) error {
	if item == "" || amount == "" {
		return nil
	}
	value, err := core.ParseAmount(amount)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.inFlight++
	s.txHash = ""
	s.receipt = core.ReceiptUnknown
	s.err = nil
	s.pendingWrites++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	hash, err := s.client.SubmitWrite(ctx, chain.NewCall(s.cfg.Contract, contract.MethodAddExpense, item, value))

	s.mu.Lock()
	s.pendingWrites--
	if err != nil {
		s.err = err
		s.mu.Unlock()
		s.events.LogError(ctx, "Expense submission failed", err, core.ErrorType(err),
			log.ComponentExpense, log.OpSubmit, log.NewFields().WithExpense(item, value.String()))
		return err
	}
	s.txHash = hash
	s.receipt = core.ReceiptPending
	s.current = submission{item: item, amount: value.String()}
	s.mu.Unlock()

	s.events.LogExpenseSubmitted(ctx, item, value.String(), string(hash))
	s.client.AwaitReceipt(hash)
	return nil
}

// Status returns the composite state of the current submission.
func (s *ExpenseContractService) Status() core.SubmissionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.SubmissionState{
		Submitting:      s.inFlight > 0,
		IsPending:       s.pendingWrites > 0,
		IsConfirming:    s.receipt.Awaiting(),
		IsConfirmed:     s.receipt == core.ReceiptConfirmed,
		TransactionHash: string(s.txHash),
		Err:             s.err,
	}
}

func (s *ExpenseContractService) onReceipt(ev chain.ReceiptEvent) {
	s.mu.Lock()
	if ev.Hash == "" || ev.Hash != s.txHash {
		s.mu.Unlock()
		return
	}
	wasConfirmed := s.receipt == core.ReceiptConfirmed
	s.receipt = ev.Status
	if ev.Status == core.ReceiptFailed {
		s.err = ev.Err
		if s.err == nil {
			s.err = core.NewChainError(core.ErrContractRevert, "receipt", fmt.Errorf("transaction %s failed", ev.Hash))
		}
	}
	current := s.current
	s.mu.Unlock()

	if ev.Status != core.ReceiptConfirmed || wasConfirmed {
		return
	}

	s.logger.Info("Expense confirmed",
		log.NewFields().WithExpense(current.item, current.amount).WithTx(string(ev.Hash), ev.Status.String()).ToSlice()...)
	s.refreshAggregates()
	s.publishConfirmation(ev.Hash, current)
}

// refreshAggregates refetches the two aggregate reads concurrently.
func (s *ExpenseContractService) refreshAggregates() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RefreshTimeout)
	defer cancel()

	var g errgroup.Group
	for _, call := range AggregateCalls(s.cfg.Contract) {
		call := call
		g.Go(func() error {
			if _, err := s.client.Refetch(ctx, call); err != nil {
				s.logger.WarnContext(ctx, "Aggregate refresh failed",
					log.FieldContractMethod, call.Method,
					log.FieldOperation, log.OpRefetch,
					log.FieldError, err,
					log.FieldErrorType, core.ErrorType(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *ExpenseContractService) publishConfirmation(hash chain.TxHash, sub submission) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RefreshTimeout)
	defer cancel()
	if err := s.publisher.PublishExpenseConfirmed(ctx, string(hash), sub.item, sub.amount); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish expense confirmation",
			log.FieldTxHash, hash, log.FieldOperation, log.OpPublish, log.FieldError, err)
	}
}

func (s *ExpenseContractService) readUint(ctx context.Context, call chain.Call) (*big.Int, error) {
	out, err := s.client.ReadQuery(ctx, call)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s returned %d values, want 1", call.Method, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("%s returned %T, want *big.Int", call.Method, out[0])
	}
	return v, nil
}

func decodeExpense(out []any) (core.ExpenseRecord, error) {
	if len(out) != 3 {
		return core.ExpenseRecord{}, fmt.Errorf("getExpense returned %d values, want 3", len(out))
	}
	item, ok1 := out[0].(string)
	amount, ok2 := out[1].(*big.Int)
	ts, ok3 := out[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 || amount == nil || ts == nil {
		return core.ExpenseRecord{}, fmt.Errorf("getExpense returned unexpected types %T, %T, %T", out[0], out[1], out[2])
	}
	return core.ExpenseRecord{Item: item, Amount: amount.String(), Timestamp: ts.Int64()}, nil
}

func (s *ExpenseContractService) logReadError(ctx context.Context, call chain.Call, err error) {
	s.logger.WarnContext(ctx, "Contract read failed",
		log.FieldContractMethod, call.Method,
		log.FieldOperation, log.OpRead,
		log.FieldError, err,
		log.FieldErrorType, core.ErrorType(err))
}

// Close unregisters the receipt observer and cancels in-flight refreshes.
func (s *ExpenseContractService) Close() error {
	s.unsubscribe()
	s.cancel()
	return nil
}
