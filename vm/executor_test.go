package vm_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/internal/testutil"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/wallet"
)

func TestExecuteTx_CommitsAndReturnsReceipt(t *testing.T) {
	h := testutil.NewHarness(t)
	bob, err := wallet.Generate(testutil.ChainID)
	require.NoError(t, err)

	r, err := h.Exec(h.Operator.Transfer(0, bob.Identity(), 500))
	require.NoError(t, err)
	assert.Equal(t, core.TxTransfer, r.Type)
	assert.Equal(t, h.Now(), r.ExecutedAt)
	assert.Equal(t, h.Root(), r.StateRoot)

	assert.Equal(t, uint64(500), h.Balance(bob.Identity()))
	assert.Equal(t, testutil.OperatorFunds-500, h.Balance(h.Operator.Identity()))
	assert.Equal(t, uint64(1), h.Nonce(h.Operator))
}

func TestExecuteTx_RejectsBadNonce(t *testing.T) {
	h := testutil.NewHarness(t)
	bob := h.Wallet(0)

	_, err := h.Exec(h.Operator.Transfer(7, bob.Identity(), 1))
	assert.ErrorIs(t, err, core.ErrBadNonce)

	// Replaying a committed transaction fails the same way.
	tx, err := h.Operator.Transfer(h.Nonce(h.Operator), bob.Identity(), 1)
	require.NoError(t, err)
	_, err = h.Engine.ExecuteTx(tx)
	require.NoError(t, err)
	_, err = h.Engine.ExecuteTx(tx)
	assert.ErrorIs(t, err, core.ErrBadNonce)
	assert.Equal(t, uint64(1), h.Balance(bob.Identity()))
}

func TestExecuteTx_RejectsWrongChainAndTamperedSignature(t *testing.T) {
	h := testutil.NewHarness(t)
	other := wallet.New(h.Operator.PrivKey(), "some-other-chain")
	bob := h.Wallet(0)

	_, err := h.Exec(other.Transfer(0, bob.Identity(), 1))
	assert.ErrorIs(t, err, core.ErrChainID)

	tx, err := h.Operator.Transfer(0, bob.Identity(), 1)
	require.NoError(t, err)
	tx.Payload = []byte(`{"to":"` + bob.Identity() + `","amount":1000}`)
	_, err = h.Engine.ExecuteTx(tx)
	assert.ErrorIs(t, err, core.ErrTxID)
	tx.ID = tx.Hash()
	_, err = h.Engine.ExecuteTx(tx)
	assert.ErrorIs(t, err, crypto.ErrBadSignature)
	assert.Zero(t, h.Balance(bob.Identity()))
}

func TestExecuteTx_RejectsForgedID(t *testing.T) {
	h := testutil.NewHarness(t)
	bob := h.Wallet(0)
	root := h.Root()

	tx, err := h.Operator.Transfer(h.Nonce(h.Operator), bob.Identity(), 1)
	require.NoError(t, err)
	tx.ID = crypto.Hash([]byte("someone else's receipt"))
	_, err = h.Engine.ExecuteTx(tx)
	assert.ErrorIs(t, err, core.ErrTxID)
	assert.Zero(t, h.Balance(bob.Identity()))
	assert.Zero(t, h.Nonce(h.Operator))
	assert.Equal(t, root, h.Root())
}

func TestExecuteTx_RejectsUpperCaseSender(t *testing.T) {
	h := testutil.NewHarness(t)
	bob := h.Wallet(0)

	tx, err := h.Operator.Transfer(0, bob.Identity(), 1)
	require.NoError(t, err)
	tx.From = strings.ToUpper(tx.From)
	tx.Sign(h.Operator.PrivKey())
	_, err = h.Engine.ExecuteTx(tx)
	require.Error(t, err)
	assert.Zero(t, h.Balance(bob.Identity()))
}

func TestExecuteTx_FailureLeavesNoTrace(t *testing.T) {
	h := testutil.NewHarness(t)
	alice := h.Wallet(10)
	bob := h.Wallet(0)
	root := h.Root()
	nonce := h.Nonce(alice)

	_, err := h.Exec(alice.Transfer(nonce, bob.Identity(), 11))
	assert.ErrorIs(t, err, core.ErrTransferFailed)

	assert.Equal(t, root, h.Root())
	assert.Equal(t, nonce, h.Nonce(alice), "nonce increment is rolled back too")
}

func TestExecuteTx_UnknownTypeIsRejected(t *testing.T) {
	h := testutil.NewHarness(t)
	_, err := h.Exec(h.Operator.NewTx("no_such_type", 0, struct{}{}))
	assert.ErrorContains(t, err, "no handler registered")
	assert.Zero(t, h.Nonce(h.Operator))
}

func TestExecuteTx_PublishesOnlyCommittedEvents(t *testing.T) {
	h := testutil.NewHarness(t)
	bob := h.Wallet(0)

	var got []events.Event
	h.Emitter.Subscribe(events.EventTokenTransfer, func(ev events.Event) { got = append(got, ev) })
	var executed int
	h.Emitter.Subscribe(events.EventTxExecuted, func(events.Event) { executed++ })

	_, err := h.Exec(bob.Transfer(0, h.Operator.Identity(), 1))
	require.ErrorIs(t, err, core.ErrTransferFailed)
	assert.Empty(t, got)
	assert.Zero(t, executed)

	r := h.Must(h.Operator.Transfer(h.Nonce(h.Operator), bob.Identity(), 3))
	require.Len(t, got, 1)
	assert.Equal(t, r.TxID, got[0].TxID)
	assert.Equal(t, h.Now(), got[0].Timestamp)
	assert.Equal(t, uint64(3), got[0].Data["amount"])
	assert.Equal(t, 1, executed)
}

func TestSubscribersMayQueryTheEngine(t *testing.T) {
	h := testutil.NewHarness(t)
	bob := h.Wallet(0)

	var seen uint64
	h.Emitter.Subscribe(events.EventTokenTransfer, func(events.Event) {
		_ = h.Engine.View(func(s core.State) error {
			acc, err := s.GetAccount(bob.Identity())
			seen = acc.Balance
			return err
		})
	})
	h.Must(h.Operator.Transfer(h.Nonce(h.Operator), bob.Identity(), 9))
	assert.Equal(t, uint64(9), seen)
}

func TestRegisteredTypesCoverEveryTransaction(t *testing.T) {
	types := vm.RegisteredTypes()
	for _, typ := range []core.TxType{
		core.TxTransfer,
		core.TxCreateCollection, core.TxMintItem, core.TxTransferItem,
		core.TxListItem, core.TxChangePrice, core.TxCancelOrder, core.TxBuyItem,
		core.TxApplySigning, core.TxApproveSigning, core.TxInviteSigning,
		core.TxRespondInvite, core.TxCancelSigning, core.TxRevokeSigning,
		core.TxPromote, core.TxBoostPopularity, core.TxRebuildLeaderboard,
		core.TxWithdraw, core.TxSetPenalty, core.TxSetPopularityPrice, core.TxSetCommission,
	} {
		assert.Contains(t, types, typ)
	}
}

func TestRegistryPanicsOnDuplicate(t *testing.T) {
	r := vm.NewRegistry()
	noop := func(*vm.Context, json.RawMessage) error { return nil }
	r.Register("x", noop)
	assert.Panics(t, func() { r.Register("x", noop) })
	assert.Equal(t, []core.TxType{"x"}, r.Types())
}
