package vm

import (
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
)

// Context is passed to every Handler and provides access to the state, the
// triggering transaction and the engine clock. Events emitted through it are
// buffered and only published once the transaction commits.
type Context struct {
	State core.State
	Tx    *core.Transaction
	Now   int64 // unix seconds, fixed for the whole transaction

	events []events.Event
}

// Emit buffers an event for publication after commit.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	ev := events.New(typ, data)
	ev.TxID = c.Tx.ID
	ev.Timestamp = c.Now
	c.events = append(c.events, ev)
}

// Treasury loads the treasury configuration.
func (c *Context) Treasury() (*core.Treasury, error) {
	t, err := c.State.GetTreasury()
	if err != nil {
		return nil, fmt.Errorf("treasury: %w", err)
	}
	return t, nil
}

// RequireOperator fails with ErrNotOwner unless the transaction sender is
// the platform operator.
func (c *Context) RequireOperator() (*core.Treasury, error) {
	t, err := c.Treasury()
	if err != nil {
		return nil, err
	}
	if c.Tx.From != t.Operator {
		return nil, fmt.Errorf("%w: %s is not the operator", core.ErrNotOwner, c.Tx.From)
	}
	return t, nil
}
