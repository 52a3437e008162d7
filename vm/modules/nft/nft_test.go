package nft_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/internal/testutil"
	"github.com/tolelom/tolmarket/vm/modules/nft"
)

func TestCreateCollection(t *testing.T) {
	h := testutil.NewHarness(t)
	alice := h.Wallet(0)

	var created []events.Event
	h.Emitter.Subscribe(events.EventCollectionCreated, func(ev events.Event) { created = append(created, ev) })

	h.Must(alice.CreateCollection(h.Nonce(alice), "Cats", "CAT"))

	h.View(func(s core.State) error {
		handle, err := nft.Resolve(s, "Cats")
		require.NoError(t, err)
		assert.Equal(t, nft.Handle("Cats"), handle)

		c, err := s.GetCollection(handle)
		require.NoError(t, err)
		assert.Equal(t, alice.Identity(), c.Creator)
		assert.Equal(t, "CAT", c.Symbol)

		rec, err := s.GetPopularity(handle)
		require.NoError(t, err)
		assert.Zero(t, rec.Popularity)
		return nil
	})
	require.Len(t, created, 1)
	assert.Equal(t, alice.Identity(), created[0].Data["creator"])
}

func TestCreateCollection_DuplicateName(t *testing.T) {
	h := testutil.NewHarness(t)
	alice := h.Wallet(0)
	bob := h.Wallet(0)
	h.Collection(alice, "Cats")

	_, err := h.Exec(bob.CreateCollection(h.Nonce(bob), "Cats", "C2"))
	assert.ErrorIs(t, err, core.ErrDuplicateName)

	_, err = h.Exec(bob.CreateCollection(h.Nonce(bob), "  ", "X"))
	assert.Error(t, err)
}

func TestResolveUnknown(t *testing.T) {
	h := testutil.NewHarness(t)
	h.View(func(s core.State) error {
		_, err := nft.Resolve(s, "nope")
		assert.ErrorIs(t, err, core.ErrNotFound)
		return nil
	})
}

func TestMintItem(t *testing.T) {
	h := testutil.NewHarness(t)
	alice := h.Wallet(0)
	bob := h.Wallet(0)
	cats := h.Collection(alice, "Cats")

	h.Must(alice.MintItem(h.Nonce(alice), cats, 1, "", "meta"))
	h.Must(alice.MintItem(h.Nonce(alice), cats, 2, bob.Identity(), ""))
	assert.Equal(t, alice.Identity(), h.Owner(cats, 1))
	assert.Equal(t, bob.Identity(), h.Owner(cats, 2))

	_, err := h.Exec(alice.MintItem(h.Nonce(alice), cats, 1, "", ""))
	assert.ErrorIs(t, err, core.ErrAlreadyMinted)

	_, err = h.Exec(bob.MintItem(h.Nonce(bob), cats, 3, "", ""))
	assert.ErrorIs(t, err, core.ErrNotOwner, "only the creator mints")

	_, err = h.Exec(alice.MintItem(h.Nonce(alice), "missing", 1, "", ""))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTransferItem(t *testing.T) {
	h := testutil.NewHarness(t)
	alice := h.Wallet(0)
	bob := h.Wallet(0)
	cats := h.Collection(alice, "Cats")
	h.Mint(alice, cats, 1)

	h.Must(alice.TransferItem(h.Nonce(alice), cats, 1, bob.Identity()))
	assert.Equal(t, bob.Identity(), h.Owner(cats, 1))

	_, err := h.Exec(alice.TransferItem(h.Nonce(alice), cats, 1, alice.Identity()))
	assert.ErrorIs(t, err, core.ErrNotItemOwner)

	h.View(func(s core.State) error {
		owner, err := nft.OwnerOf(s, cats, 1)
		require.NoError(t, err)
		assert.Equal(t, bob.Identity(), owner)
		_, err = nft.OwnerOf(s, cats, 99)
		assert.ErrorIs(t, err, core.ErrNotFound)
		return nil
	})
}
