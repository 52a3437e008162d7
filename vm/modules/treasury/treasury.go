// Package treasury implements the operator-only levers: withdrawing the
// engine balance and changing the fee, penalty and boost parameters.
package treasury

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/vm/modules/token"
)

func init() {
	vm.Register(core.TxWithdraw, handleWithdraw)
	vm.Register(core.TxSetPenalty, handleSetPenalty)
	vm.Register(core.TxSetPopularityPrice, handleSetPopularityPrice)
	vm.Register(core.TxSetCommission, handleSetCommission)
}

// Balance returns the payment-token balance held by the engine. It includes
// invitation amounts escrowed pending the creator's answer.
func Balance(state core.State) (uint64, error) {
	return token.BalanceOf(state, core.EngineAddress)
}

// Escrowed sums the amounts held for invitations that are still waiting on
// the creator's answer.
func Escrowed(state core.State) (uint64, error) {
	n, err := state.AgreementCount(core.PoolInvitations)
	if err != nil {
		return 0, err
	}
	var total uint64
	for i := uint64(0); i < n; i++ {
		a, err := state.AgreementAt(core.PoolInvitations, i)
		if err != nil {
			return 0, err
		}
		total += a.Amount
	}
	return total, nil
}

// Withdrawable is the engine balance less the invitation escrow.
func Withdrawable(state core.State) (uint64, error) {
	bal, err := Balance(state)
	if err != nil {
		return 0, err
	}
	held, err := Escrowed(state)
	if err != nil {
		return 0, err
	}
	if held > bal {
		return 0, fmt.Errorf("%w: engine holds %d, escrow is %d", core.ErrTransferFailed, bal, held)
	}
	return bal - held, nil
}

// handleWithdraw sweeps the engine balance to the operator, leaving pending
// invitation escrow in place so accept and decline can still pay out.
func handleWithdraw(ctx *vm.Context, _ json.RawMessage) error {
	t, err := ctx.RequireOperator()
	if err != nil {
		return err
	}
	amount, err := Withdrawable(ctx.State)
	if err != nil {
		return err
	}
	if err := token.Transfer(ctx.State, core.EngineAddress, t.Operator, amount); err != nil {
		return err
	}
	ctx.Emit(events.EventTreasuryWithdraw, map[string]any{"operator": t.Operator, "amount": amount})
	return nil
}

func handleSetPenalty(ctx *vm.Context, payload json.RawMessage) error {
	var p core.AmountPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_penalty payload: %w", err)
	}
	return update(ctx, "penalty_amount", func(t *core.Treasury) error {
		t.PenaltyAmount = p.Amount
		return nil
	})
}

func handleSetPopularityPrice(ctx *vm.Context, payload json.RawMessage) error {
	var p core.AmountPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_popularity_price payload: %w", err)
	}
	return update(ctx, "popularity_unit_price", func(t *core.Treasury) error {
		t.PopularityUnitPrice = p.Amount
		return nil
	})
}

func handleSetCommission(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SetCommissionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_commission payload: %w", err)
	}
	return update(ctx, "commission", func(t *core.Treasury) error {
		if err := core.ValidateRates(p.CommissionRateBps, p.RevenueShareBps); err != nil {
			return err
		}
		t.CommissionRateBps = p.CommissionRateBps
		t.RevenueShareBps = p.RevenueShareBps
		return nil
	})
}

// update applies fn to the treasury config on behalf of the operator.
func update(ctx *vm.Context, field string, fn func(*core.Treasury) error) error {
	t, err := ctx.RequireOperator()
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.State.SetTreasury(t); err != nil {
		return err
	}
	ctx.Emit(events.EventTreasuryConfig, map[string]any{
		"field":                 field,
		"commission_rate_bps":   t.CommissionRateBps,
		"revenue_share_bps":     t.RevenueShareBps,
		"penalty_amount":        t.PenaltyAmount,
		"popularity_unit_price": t.PopularityUnitPrice,
	})
	return nil
}
