package vm

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/metrics"
)

// Engine applies transactions to the state one at a time using the global
// Handler registry. Every mutating operation and every read goes through the
// same mutex, so callers observe a single total order.
type Engine struct {
	mu      sync.Mutex // guards state
	pubMu   sync.Mutex // held across execute and publish; always taken before mu
	chainID string
	state   core.State
	emitter *events.Emitter
	clock   clockwork.Clock
	log     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock, typically with a fake clock in tests.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithEmitter publishes committed events to em.
func WithEmitter(em *events.Emitter) Option {
	return func(e *Engine) { e.emitter = em }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates an Engine over state for chainID.
func NewEngine(chainID string, state core.State, opts ...Option) *Engine {
	e := &Engine{
		chainID: chainID,
		state:   state,
		clock:   clockwork.NewRealClock(),
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.emitter == nil {
		e.emitter = events.NewEmitter(e.log)
	}
	return e
}

// ChainID returns the chain id transactions must carry.
func (e *Engine) ChainID() string { return e.chainID }

// Emitter returns the emitter committed events are published to.
func (e *Engine) Emitter() *events.Emitter { return e.emitter }

// Now returns the engine clock in unix seconds.
func (e *Engine) Now() int64 { return e.clock.Now().Unix() }

// View runs fn against the current state under the engine lock. fn must not
// write.
func (e *Engine) View(fn func(core.State) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.state)
}

// StateRoot returns the root of the committed state.
func (e *Engine) StateRoot() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ComputeRoot()
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
// On success the state is committed and the buffered events are published.
// On failure the state is left exactly as it was.
func (e *Engine) ExecuteTx(tx *core.Transaction) (*core.Receipt, error) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	start := e.clock.Now()
	receipt, evs, err := e.executeTx(tx)
	status := "committed"
	if err != nil {
		status = "rejected"
		e.log.Info("tx rejected", "id", tx.ID, "type", tx.Type, "from", tx.From, "err", err)
	} else {
		e.log.Debug("tx committed", "id", tx.ID, "type", tx.Type, "from", tx.From, "root", receipt.StateRoot)
	}
	metrics.TxTotal.WithLabelValues(string(tx.Type), status).Inc()
	metrics.TxDuration.WithLabelValues(string(tx.Type)).Observe(e.clock.Since(start).Seconds())

	// Published outside the state lock so subscribers may query the engine.
	// Subscribers must not submit transactions.
	for _, ev := range evs {
		e.emitter.Emit(ev)
	}
	return receipt, err
}

func (e *Engine) executeTx(tx *core.Transaction) (*core.Receipt, []events.Event, error) {
	if err := tx.Verify(); err != nil {
		return nil, nil, fmt.Errorf("signature: %w", err)
	}
	if tx.ChainID != e.chainID {
		return nil, nil, fmt.Errorf("%w: want %q got %q", core.ErrChainID, e.chainID, tx.ChainID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snapID, err := e.state.Snapshot()
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: %w", err)
	}

	ctx := &Context{State: e.state, Tx: tx, Now: e.clock.Now().Unix()}
	if err := e.applyTx(ctx); err != nil {
		return nil, nil, e.revert(snapID, err)
	}

	root, err := e.state.ComputeRoot()
	if err != nil {
		return nil, nil, e.revert(snapID, fmt.Errorf("state root: %w", err))
	}
	if err := e.state.Commit(); err != nil {
		return nil, nil, e.revert(snapID, fmt.Errorf("commit: %w", err))
	}

	done := events.New(events.EventTxExecuted, map[string]any{"type": string(tx.Type), "from": tx.From})
	done.TxID = tx.ID
	done.Timestamp = ctx.Now
	receipt := &core.Receipt{TxID: tx.ID, Type: tx.Type, StateRoot: root, ExecutedAt: ctx.Now}
	return receipt, append(ctx.events, done), nil
}

func (e *Engine) revert(snapID int, cause error) error {
	if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
		return errors.Join(cause, fmt.Errorf("revert snapshot: %w", revertErr))
	}
	return cause
}

// applyTx increments the nonce, then dispatches to the handler.
func (e *Engine) applyTx(ctx *Context) error {
	tx := ctx.Tx
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("%w: expected %d got %d", core.ErrBadNonce, acc.Nonce, tx.Nonce)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}
	return globalRegistry.Execute(tx.Type, ctx, tx.Payload)
}

