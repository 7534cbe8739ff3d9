package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"grocerybudget/internal/cache"
	"grocerybudget/internal/core"
	"grocerybudget/internal/log"
)

const (
	DefaultPollInterval   = 2 * time.Second
	DefaultReceiptTimeout = 5 * time.Minute
	DefaultCacheSize      = 256
	DefaultCacheTTL       = 30 * time.Second
)

// Options tunes a Client. Zero values select the defaults above.
type Options struct {
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
	CacheSize      int
	CacheTTL       time.Duration
	Logger         *slog.Logger
}

// Client wraps a Backend with a read cache, request coalescing and
// background receipt watchers.
type Client struct {
	backend Backend
	opts    Options
	logger  *slog.Logger

	reads  *cache.LRUCache[[]any]
	flight singleflight.Group

	// generations counts Refetch/Invalidate per key. A read that started
	// under an older generation must not be cached.
	genMu       sync.Mutex
	generations map[string]uint64

	mu        sync.Mutex
	observers map[int]ReceiptObserver
	nextObs   int
	watching  map[TxHash]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a client over backend.
func NewClient(backend Backend, opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = DefaultReceiptTimeout
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		backend:   backend,
		opts:      opts,
		logger:    logger.With(log.FieldComponent, log.ComponentChain),
		reads:       cache.NewLRUCache[[]any](opts.CacheSize, opts.CacheTTL),
		generations: make(map[string]uint64),
		observers: make(map[int]ReceiptObserver),
		watching:  make(map[TxHash]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ReadCache exposes the read cache so a cache.Manager can sweep it.
func (c *Client) ReadCache() cache.Cleaner { return c.reads }

// CachedReads returns the number of cached read results.
func (c *Client) CachedReads() int { return c.reads.Size() }

// ConnectionStatus reports the wallet the client writes with.
func (c *Client) ConnectionStatus(ctx context.Context) (Connection, error) {
	conn, err := c.backend.Connection(ctx)
	if err != nil {
		return Connection{}, core.NewChainError(core.ErrNetwork, "connection status", err)
	}
	return conn, nil
}

// ReadQuery returns the outputs of a view call, served from cache while
// fresh. Concurrent identical reads share one backend call.
func (c *Client) ReadQuery(ctx context.Context, call Call) ([]any, error) {
	key := call.Key()
	if out, ok := c.reads.Get(key); ok {
		return out, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		gen := c.generation(key)
		out, err := c.backend.Call(ctx, call)
		if err != nil {
			return nil, err
		}
		c.storeIfCurrent(key, gen, out)
		return out, nil
	})
	if err != nil {
		return nil, core.NewChainError(core.ErrNetwork, "read "+call.Method, err)
	}
	return v.([]any), nil
}

// Refetch reads call from the backend regardless of the cache. The cache
// is updated only when the read succeeds.
func (c *Client) Refetch(ctx context.Context, call Call) ([]any, error) {
	key := call.Key()
	c.bump(key)
	gen := c.generation(key)
	out, err := c.backend.Call(ctx, call)
	if err != nil {
		return nil, core.NewChainError(core.ErrNetwork, "refetch "+call.Method, err)
	}
	c.storeIfCurrent(key, gen, out)
	return out, nil
}

// Invalidate drops cached results for the given calls. Reads already in
// flight for them will not repopulate the cache.
func (c *Client) Invalidate(calls ...Call) {
	for _, call := range calls {
		key := call.Key()
		c.bump(key)
		c.reads.Delete(key)
	}
}

func (c *Client) generation(key string) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.generations[key]
}

// bump starts a new generation for key and detaches in-flight reads so
// later ReadQuery calls do not join them.
func (c *Client) bump(key string) {
	c.genMu.Lock()
	c.generations[key]++
	c.genMu.Unlock()
	c.flight.Forget(key)
}

func (c *Client) storeIfCurrent(key string, gen uint64, out []any) {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if c.generations[key] == gen {
		c.reads.Set(key, out)
	}
}

// SubmitWrite sends a state-changing call through the connected wallet.
func (c *Client) SubmitWrite(ctx context.Context, call Call) (TxHash, error) {
	conn, err := c.ConnectionStatus(ctx)
	if err != nil {
		return "", err
	}
	if !conn.Connected {
		return "", core.ErrNotConnected
	}

	hash, err := c.backend.Transact(ctx, call)
	if err != nil {
		return "", core.NewChainError(core.ErrWallet, "submit "+call.Method, err)
	}
	c.logger.InfoContext(ctx, "Transaction submitted",
		log.FieldTxHash, hash,
		log.FieldContractMethod, call.Method,
		log.FieldAccount, conn.Address)
	return hash, nil
}

// Subscribe registers obs for receipt events and returns a function that
// removes it.
func (c *Client) Subscribe(obs ReceiptObserver) func() {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = obs
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// AwaitReceipt starts watching hash in the background. Events are delivered
// to subscribers on every status change until the receipt is terminal, the
// wait times out or the client is closed. Watching an already watched hash
// is a no-op.
func (c *Client) AwaitReceipt(hash TxHash) {
	if hash == "" {
		return
	}
	c.mu.Lock()
	if _, ok := c.watching[hash]; ok || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.watching[hash] = struct{}{}
	c.wg.Add(1)
	c.mu.Unlock()

	go c.watch(hash)
}

func (c *Client) watch(hash TxHash) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.watching, hash)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(c.ctx, c.opts.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	last := core.ReceiptUnknown
	for {
		status, err := c.backend.ReceiptStatus(ctx, hash)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				c.logger.Warn("Receipt poll failed", log.FieldTxHash, hash, log.FieldError, err)
			}
		case status != last:
			last = status
			ev := ReceiptEvent{Hash: hash, Status: status}
			if status == core.ReceiptFailed {
				ev.Err = core.NewChainError(core.ErrContractRevert, "receipt", fmt.Errorf("transaction %s reverted", hash))
			}
			c.logger.Debug("Receipt status changed", log.FieldTxHash, hash, log.FieldReceiptStatus, status.String())
			c.notify(ev)
			if status.Terminal() {
				return
			}
		}

		select {
		case <-ctx.Done():
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("Receipt wait timed out", log.FieldTxHash, hash, "timeout", c.opts.ReceiptTimeout)
			c.notify(ReceiptEvent{
				Hash:   hash,
				Status: core.ReceiptFailed,
				Err: core.NewChainError(core.ErrReceiptTimeout, "await receipt",
					fmt.Errorf("no receipt for %s after %s", hash, c.opts.ReceiptTimeout)),
			})
			return
		case <-ticker.C:
		}
	}
}

func (c *Client) notify(ev ReceiptEvent) {
	c.mu.Lock()
	observers := make([]ReceiptObserver, 0, len(c.observers))
	for _, obs := range c.observers {
		observers = append(observers, obs)
	}
	c.mu.Unlock()

	for _, obs := range observers {
		obs(ev)
	}
}

// Close stops all receipt watchers and waits for them to exit.
func (c *Client) Close() {
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()
}
