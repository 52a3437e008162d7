// Package popularity implements the per-collection popularity ledger and the
// on-demand leaderboard.
package popularity

import (
	"encoding/json"
	"fmt"
	"math"
	"math/bits"
	"sort"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/vm/modules/signing"
	"github.com/tolelom/tolmarket/vm/modules/token"
)

func init() {
	vm.Register(core.TxPromote, handlePromote)
	vm.Register(core.TxBoostPopularity, handleBoost)
	vm.Register(core.TxRebuildLeaderboard, handleRebuild)
}

// Get returns the popularity record of a registered collection.
func Get(state core.State, collection string) (*core.PopularityRecord, error) {
	if _, err := state.GetCollection(collection); err != nil {
		return nil, fmt.Errorf("collection %q: %w", collection, err)
	}
	return state.GetPopularity(collection)
}

// LeaderboardEntry returns row index of the last rebuilt leaderboard.
func LeaderboardEntry(state core.State, index uint64) (*core.LeaderboardEntry, error) {
	board, err := state.GetLeaderboard()
	if err != nil {
		return nil, err
	}
	if index >= uint64(len(board)) {
		return nil, fmt.Errorf("%w: index %d, size %d", core.ErrIndexOutOfRange, index, len(board))
	}
	e := board[index]
	return &e, nil
}

// Rank builds the leaderboard over every registered collection: popularity
// descending, ties in registration order.
func Rank(state core.State) ([]core.LeaderboardEntry, error) {
	ids, err := state.CollectionIDs()
	if err != nil {
		return nil, err
	}
	board := make([]core.LeaderboardEntry, 0, len(ids))
	for _, id := range ids {
		c, err := state.GetCollection(id)
		if err != nil {
			return nil, err
		}
		rec, err := state.GetPopularity(id)
		if err != nil {
			return nil, err
		}
		board = append(board, core.LeaderboardEntry{Collection: id, Name: c.Name, Popularity: rec.Popularity})
	}
	sort.SliceStable(board, func(i, j int) bool { return board[i].Popularity > board[j].Popularity })
	return board, nil
}

func addPopularity(rec *core.PopularityRecord, amount uint64) error {
	if rec.Popularity > math.MaxUint64-amount {
		return fmt.Errorf("%w: popularity overflow for %s", core.ErrInvalidAmount, rec.Collection)
	}
	rec.Popularity += amount
	return nil
}

func handlePromote(ctx *vm.Context, payload json.RawMessage) error {
	var p core.PromotePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode promote payload: %w", err)
	}
	if _, err := ctx.RequireOperator(); err != nil {
		return err
	}
	c, err := ctx.State.GetCollection(p.Collection)
	if err != nil {
		return fmt.Errorf("collection %q: %w", p.Collection, err)
	}
	if _, err := signing.ActiveAgreement(ctx.State, c.Creator, ctx.Now); err != nil {
		return err
	}

	rec, err := ctx.State.GetPopularity(c.ID)
	if err != nil {
		return err
	}
	if err := addPopularity(rec, p.Amount); err != nil {
		return err
	}
	if rec.PromotionAmount > math.MaxUint64-p.Amount {
		return fmt.Errorf("%w: promotion amount overflow for %s", core.ErrInvalidAmount, c.ID)
	}
	rec.PromotionCount++
	rec.PromotionAmount += p.Amount
	if err := ctx.State.SetPopularity(rec); err != nil {
		return err
	}

	ctx.Emit(events.EventPromoted, map[string]any{
		"collection": c.ID,
		"amount":     p.Amount,
		"popularity": rec.Popularity,
	})
	return nil
}

// handleBoost charges units at the configured unit price. Popularity grows by
// the amount paid, not by the unit count.
func handleBoost(ctx *vm.Context, payload json.RawMessage) error {
	var p core.BoostPopularityPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode boost_popularity payload: %w", err)
	}
	if p.Units == 0 {
		return fmt.Errorf("%w: units must be > 0", core.ErrInvalidAmount)
	}
	rec, err := Get(ctx.State, p.Collection)
	if err != nil {
		return err
	}
	t, err := ctx.Treasury()
	if err != nil {
		return err
	}
	hi, cost := bits.Mul64(p.Units, t.PopularityUnitPrice)
	if hi != 0 {
		return fmt.Errorf("%w: boost cost overflows", core.ErrInvalidAmount)
	}

	if err := token.Transfer(ctx.State, ctx.Tx.From, core.EngineAddress, cost); err != nil {
		return err
	}
	if err := addPopularity(rec, cost); err != nil {
		return err
	}
	if err := ctx.State.SetPopularity(rec); err != nil {
		return err
	}

	ctx.Emit(events.EventPopularityBoosted, map[string]any{
		"collection": p.Collection,
		"buyer":      ctx.Tx.From,
		"units":      p.Units,
		"cost":       cost,
		"popularity": rec.Popularity,
	})
	return nil
}

func handleRebuild(ctx *vm.Context, _ json.RawMessage) error {
	board, err := Rank(ctx.State)
	if err != nil {
		return err
	}
	if err := ctx.State.SetLeaderboard(board); err != nil {
		return err
	}
	ctx.Emit(events.EventLeaderboardRebuilt, map[string]any{"size": len(board)})
	return nil
}
