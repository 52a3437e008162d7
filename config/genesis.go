package config

import (
	"errors"
	"fmt"

	"github.com/tolelom/tolmarket/core"
)

// ErrGenesisApplied is returned by ApplyGenesis when the state already holds
// a treasury configuration.
var ErrGenesisApplied = errors.New("config: genesis already applied")

// ApplyGenesis seeds balances and the treasury configuration into an empty
// state and commits. It returns the resulting state root.
func ApplyGenesis(g Genesis, state core.State) (string, error) {
	if _, err := state.GetTreasury(); err == nil {
		return "", ErrGenesisApplied
	} else if !errors.Is(err, core.ErrNotFound) {
		return "", err
	}

	for identity, balance := range g.Alloc {
		if err := state.SetAccount(&core.Account{Address: identity, Balance: balance}); err != nil {
			return "", fmt.Errorf("alloc %s: %w", identity, err)
		}
	}
	if g.TreasuryBalance > 0 {
		if err := state.SetAccount(&core.Account{Address: core.EngineAddress, Balance: g.TreasuryBalance}); err != nil {
			return "", err
		}
	}
	t := &core.Treasury{
		Operator:            g.Operator,
		CommissionRateBps:   g.Treasury.CommissionRateBps,
		RevenueShareBps:     g.Treasury.RevenueShareBps,
		PenaltyAmount:       g.Treasury.PenaltyAmount,
		PopularityUnitPrice: g.Treasury.PopularityUnitPrice,
	}
	if err := state.SetTreasury(t); err != nil {
		return "", err
	}

	root, err := state.ComputeRoot()
	if err != nil {
		return "", err
	}
	if err := state.Commit(); err != nil {
		return "", err
	}
	return root, nil
}
