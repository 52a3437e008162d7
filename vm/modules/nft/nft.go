// Package nft implements the asset registry and the collection collaborator:
// collection registration by unique name, minting, and item ownership.
package nft

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/vm"
)

func init() {
	vm.Register(core.TxCreateCollection, handleCreateCollection)
	vm.Register(core.TxMintItem, handleMintItem)
	vm.Register(core.TxTransferItem, handleTransferItem)
}

// Handle derives the collection handle for name.
func Handle(name string) string {
	return crypto.Hash([]byte("collection:" + name))
}

// Resolve maps a collection name to its handle.
func Resolve(state core.State, name string) (string, error) {
	c, err := state.GetCollectionByName(name)
	if err != nil {
		return "", fmt.Errorf("collection %q: %w", name, err)
	}
	return c.ID, nil
}

// OwnerOf returns the current owner of an item.
func OwnerOf(state core.State, collection string, itemID uint64) (string, error) {
	item, err := state.GetItem(collection, itemID)
	if err != nil {
		return "", fmt.Errorf("item %s/%d: %w", collection, itemID, err)
	}
	return item.Owner, nil
}

// TransferOwnership moves an item from its current owner to to. It fails with
// ErrNotItemOwner when from does not hold the item.
func TransferOwnership(state core.State, collection string, itemID uint64, from, to string) error {
	item, err := state.GetItem(collection, itemID)
	if err != nil {
		return fmt.Errorf("item %s/%d: %w", collection, itemID, err)
	}
	if item.Owner != from {
		return fmt.Errorf("%w: item %s/%d is held by %s", core.ErrNotItemOwner, collection, itemID, item.Owner)
	}
	item.Owner = to
	return state.SetItem(item)
}

func handleCreateCollection(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CreateCollectionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode create_collection payload: %w", err)
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return errors.New("collection name required")
	}
	_, err := ctx.State.GetCollectionByName(p.Name)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %q", core.ErrDuplicateName, p.Name)
	case !errors.Is(err, core.ErrNotFound):
		return err
	}

	c := &core.Collection{
		ID:      Handle(p.Name),
		Name:    p.Name,
		Symbol:  p.Symbol,
		Creator: ctx.Tx.From,
	}
	if err := ctx.State.SetCollection(c); err != nil {
		return err
	}
	// Tracked by the leaderboard from registration on.
	if err := ctx.State.SetPopularity(&core.PopularityRecord{Collection: c.ID}); err != nil {
		return err
	}

	ctx.Emit(events.EventCollectionCreated, map[string]any{
		"collection": c.ID,
		"name":       c.Name,
		"symbol":     c.Symbol,
		"creator":    c.Creator,
	})
	return nil
}

func handleMintItem(ctx *vm.Context, payload json.RawMessage) error {
	var p core.MintItemPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode mint_item payload: %w", err)
	}
	c, err := ctx.State.GetCollection(p.Collection)
	if err != nil {
		return fmt.Errorf("collection %q: %w", p.Collection, err)
	}
	if c.Creator != ctx.Tx.From {
		return fmt.Errorf("%w: only the creator of %q can mint", core.ErrNotOwner, c.Name)
	}
	_, err = ctx.State.GetItem(p.Collection, p.ItemID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s/%d", core.ErrAlreadyMinted, p.Collection, p.ItemID)
	case !errors.Is(err, core.ErrNotFound):
		return err
	}

	to := p.To
	if to == "" {
		to = ctx.Tx.From
	}
	if !crypto.IsIdentity(to) {
		return fmt.Errorf("mint to %q: not a valid identity", to)
	}

	item := &core.Item{
		Collection:   p.Collection,
		ItemID:       p.ItemID,
		Owner:        to,
		MetadataHash: p.MetadataHash,
		MintedAt:     ctx.Now,
	}
	if err := ctx.State.SetItem(item); err != nil {
		return err
	}

	ctx.Emit(events.EventItemMinted, map[string]any{
		"collection": p.Collection,
		"item_id":    p.ItemID,
		"owner":      to,
	})
	return nil
}

func handleTransferItem(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferItemPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer_item payload: %w", err)
	}
	if !crypto.IsIdentity(p.To) {
		return fmt.Errorf("transfer item to %q: not a valid identity", p.To)
	}
	// Listed items are owned by the engine, so this also refuses them.
	if err := TransferOwnership(ctx.State, p.Collection, p.ItemID, ctx.Tx.From, p.To); err != nil {
		return err
	}

	ctx.Emit(events.EventItemTransfer, map[string]any{
		"collection": p.Collection,
		"item_id":    p.ItemID,
		"from":       ctx.Tx.From,
		"to":         p.To,
	})
	return nil
}
