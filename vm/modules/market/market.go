// Package market implements the order book and escrowed settlement. Listed
// items are held by core.EngineAddress until they are sold or the order is
// cancelled.
package market

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/vm/modules/nft"
	"github.com/tolelom/tolmarket/vm/modules/signing"
	"github.com/tolelom/tolmarket/vm/modules/token"
)

func init() {
	vm.Register(core.TxListItem, handleList)
	vm.Register(core.TxChangePrice, handleChangePrice)
	vm.Register(core.TxCancelOrder, handleCancel)
	vm.Register(core.TxBuyItem, handleBuy)
}

// GetOrder returns the order at index in the order book.
func GetOrder(state core.State, index uint64) (*core.Order, error) {
	n, err := state.OrderCount()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, core.ErrEmptyOrderBook
	}
	if index >= n {
		return nil, fmt.Errorf("%w: index %d, size %d", core.ErrIndexOutOfRange, index, n)
	}
	return state.OrderAt(index)
}

// GetOrderByKey returns the active order for an item, failing with
// ErrNotListed when there is none.
func GetOrderByKey(state core.State, collection string, itemID uint64) (*core.Order, error) {
	o, err := state.GetOrder(collection, itemID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s/%d", core.ErrNotListed, collection, itemID)
	}
	return o, err
}

// IsListed reports whether an active order exists for the item.
func IsListed(state core.State, collection string, itemID uint64) (bool, error) {
	_, err := state.GetOrder(collection, itemID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// sellerOrder loads the order for the item and checks that caller is its
// seller.
func sellerOrder(state core.State, collection string, itemID uint64, caller string) (*core.Order, error) {
	o, err := GetOrderByKey(state, collection, itemID)
	if err != nil {
		return nil, err
	}
	if o.Seller != caller {
		return nil, fmt.Errorf("%w: %s/%d", core.ErrNotSeller, collection, itemID)
	}
	return o, nil
}

func handleList(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ListItemPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode list_item payload: %w", err)
	}
	if p.Price == 0 {
		return fmt.Errorf("%w: price must be > 0", core.ErrInvalidAmount)
	}
	listed, err := IsListed(ctx.State, p.Collection, p.ItemID)
	if err != nil {
		return err
	}
	if listed {
		return fmt.Errorf("%w: %s/%d", core.ErrAlreadyListed, p.Collection, p.ItemID)
	}
	if _, err := ctx.State.GetCollection(p.Collection); err != nil {
		return fmt.Errorf("collection %q: %w", p.Collection, err)
	}

	if err := nft.TransferOwnership(ctx.State, p.Collection, p.ItemID, ctx.Tx.From, core.EngineAddress); err != nil {
		return err
	}
	o := &core.Order{
		Seller:     ctx.Tx.From,
		Collection: p.Collection,
		ItemID:     p.ItemID,
		Price:      p.Price,
		ListedAt:   ctx.Now,
	}
	if err := ctx.State.PutOrder(o); err != nil {
		return err
	}

	ctx.Emit(events.EventOrderListed, map[string]any{
		"collection": o.Collection,
		"item_id":    o.ItemID,
		"seller":     o.Seller,
		"price":      o.Price,
	})
	return nil
}

func handleChangePrice(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ChangePricePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode change_price payload: %w", err)
	}
	o, err := sellerOrder(ctx.State, p.Collection, p.ItemID, ctx.Tx.From)
	if err != nil {
		return err
	}
	if p.Price == 0 {
		return fmt.Errorf("%w: price must be > 0", core.ErrInvalidAmount)
	}
	old := o.Price
	o.Price = p.Price
	if err := ctx.State.PutOrder(o); err != nil {
		return err
	}

	ctx.Emit(events.EventOrderRepriced, map[string]any{
		"collection": o.Collection,
		"item_id":    o.ItemID,
		"seller":     o.Seller,
		"old_price":  old,
		"price":      o.Price,
	})
	return nil
}

func handleCancel(ctx *vm.Context, payload json.RawMessage) error {
	var p core.OrderKeyPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode cancel_order payload: %w", err)
	}
	o, err := sellerOrder(ctx.State, p.Collection, p.ItemID, ctx.Tx.From)
	if err != nil {
		return err
	}
	if err := nft.TransferOwnership(ctx.State, o.Collection, o.ItemID, core.EngineAddress, o.Seller); err != nil {
		return fmt.Errorf("return custody: %w", err)
	}
	if err := ctx.State.RemoveOrder(o.Collection, o.ItemID); err != nil {
		return err
	}

	ctx.Emit(events.EventOrderCancelled, map[string]any{
		"collection": o.Collection,
		"item_id":    o.ItemID,
		"seller":     o.Seller,
	})
	return nil
}

// handleBuy settles an order. Every precondition is checked before any
// balance or ownership changes.
func handleBuy(ctx *vm.Context, payload json.RawMessage) error {
	var p core.BuyItemPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode buy_item payload: %w", err)
	}
	buyer := ctx.Tx.From
	o, err := GetOrderByKey(ctx.State, p.Collection, p.ItemID)
	if err != nil {
		return err
	}
	if o.Seller == buyer {
		return fmt.Errorf("%w: %s/%d", core.ErrSelfPurchase, o.Collection, o.ItemID)
	}
	if p.MaxPrice < o.Price {
		return fmt.Errorf("%w: listed at %d, max %d", core.ErrPriceTooLow, o.Price, p.MaxPrice)
	}

	t, err := ctx.Treasury()
	if err != nil {
		return err
	}
	signed, err := signing.IsSigned(ctx.State, o.Seller, ctx.Now)
	if err != nil {
		return err
	}
	split, err := core.SplitSale(o.Price, signed, t)
	if err != nil {
		return err
	}
	balance, err := token.BalanceOf(ctx.State, buyer)
	if err != nil {
		return err
	}
	if balance < o.Price {
		return fmt.Errorf("%w: buyer has %d, price %d", core.ErrTransferFailed, balance, o.Price)
	}

	if err := token.Transfer(ctx.State, buyer, o.Seller, split.Seller); err != nil {
		return err
	}
	if err := token.Transfer(ctx.State, buyer, core.EngineAddress, split.Platform); err != nil {
		return err
	}
	if err := nft.TransferOwnership(ctx.State, o.Collection, o.ItemID, core.EngineAddress, buyer); err != nil {
		return fmt.Errorf("deliver item: %w", err)
	}
	if err := ctx.State.RemoveOrder(o.Collection, o.ItemID); err != nil {
		return err
	}

	rec, err := ctx.State.GetPopularity(o.Collection)
	if err != nil {
		return err
	}
	rec.Popularity++
	if err := ctx.State.SetPopularity(rec); err != nil {
		return err
	}

	ctx.Emit(events.EventOrderSold, map[string]any{
		"collection":   o.Collection,
		"item_id":      o.ItemID,
		"seller":       o.Seller,
		"buyer":        buyer,
		"price":        o.Price,
		"seller_cut":   split.Seller,
		"platform_cut": split.Platform,
		"signed":       signed,
	})
	return nil
}
