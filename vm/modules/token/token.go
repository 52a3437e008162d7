// Package token implements the payment-token ledger: balance queries, the
// transfer transaction and the Transfer helper every other module settles
// through.
package token

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/vm"
)

func init() {
	vm.Register(core.TxTransfer, handleTransfer)
}

// BalanceOf returns the payment-token balance of identity.
func BalanceOf(state core.State, identity string) (uint64, error) {
	acc, err := state.GetAccount(identity)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// Transfer moves amount from one identity to another. It fails with
// ErrTransferFailed when from cannot cover amount or to would overflow.
// A zero amount is a no-op.
func Transfer(state core.State, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	sender, err := state.GetAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", core.ErrTransferFailed, from, sender.Balance, amount)
	}
	if from == to {
		return nil
	}
	recipient, err := state.GetAccount(to)
	if err != nil {
		return err
	}
	if recipient.Balance > math.MaxUint64-amount {
		return fmt.Errorf("%w: balance overflow for %s", core.ErrTransferFailed, to)
	}
	sender.Balance -= amount
	recipient.Balance += amount
	if err := state.SetAccount(sender); err != nil {
		return err
	}
	return state.SetAccount(recipient)
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return fmt.Errorf("%w: transfer amount must be > 0", core.ErrInvalidAmount)
	}
	if !crypto.IsIdentity(p.To) {
		return fmt.Errorf("transfer to %q: not a valid identity", p.To)
	}
	if err := Transfer(ctx.State, ctx.Tx.From, p.To, p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"from":   ctx.Tx.From,
		"to":     p.To,
		"amount": p.Amount,
	})
	return nil
}
