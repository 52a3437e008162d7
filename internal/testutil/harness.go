package testutil

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"github.com/tolelom/tolmarket/config"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/storage"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/wallet"

	// Register every transaction handler.
	_ "github.com/tolelom/tolmarket/vm/modules/market"
	_ "github.com/tolelom/tolmarket/vm/modules/nft"
	_ "github.com/tolelom/tolmarket/vm/modules/popularity"
	_ "github.com/tolelom/tolmarket/vm/modules/signing"
	_ "github.com/tolelom/tolmarket/vm/modules/token"
	_ "github.com/tolelom/tolmarket/vm/modules/treasury"
)

const (
	// ChainID is the chain id every harness engine runs under.
	ChainID = "tolmarket-test"
	// OperatorFunds is the genesis balance of the harness operator.
	OperatorFunds uint64 = 1_000_000_000
	// TreasuryFunds is the genesis balance of the engine account.
	TreasuryFunds uint64 = 1_000_000
)

// Epoch is the fake clock's starting time.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness is a MemDB-backed engine with a fake clock and an operator wallet.
type Harness struct {
	t        testing.TB
	DB       *MemDB
	State    *storage.StateDB
	Engine   *vm.Engine
	Clock    *clockwork.FakeClock
	Emitter  *events.Emitter
	Operator *wallet.Wallet
}

// NewHarness builds a harness with default genesis. mutate, when given, can
// adjust the genesis before it is applied.
func NewHarness(t testing.TB, mutate ...func(*config.Genesis)) *Harness {
	t.Helper()
	op, err := wallet.Generate(ChainID)
	require.NoError(t, err)

	d := core.DefaultTreasury(op.Identity())
	g := config.Genesis{
		Operator:        op.Identity(),
		Alloc:           map[string]uint64{op.Identity(): OperatorFunds},
		TreasuryBalance: TreasuryFunds,
		Treasury: config.Treasury{
			CommissionRateBps:   d.CommissionRateBps,
			RevenueShareBps:     d.RevenueShareBps,
			PenaltyAmount:       d.PenaltyAmount,
			PopularityUnitPrice: d.PopularityUnitPrice,
		},
	}
	for _, m := range mutate {
		m(&g)
	}

	db := NewMemDB()
	state := storage.NewStateDB(db)
	_, err = config.ApplyGenesis(g, state)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(Epoch)
	em := events.NewEmitter(nil)
	return &Harness{
		t:        t,
		DB:       db,
		State:    state,
		Engine:   vm.NewEngine(ChainID, state, vm.WithClock(clock), vm.WithEmitter(em)),
		Clock:    clock,
		Emitter:  em,
		Operator: op,
	}
}

// Exec submits a freshly built transaction. It accepts a wallet builder's
// results directly: h.Exec(w.List(h.Nonce(w), ...)).
func (h *Harness) Exec(tx *core.Transaction, buildErr error) (*core.Receipt, error) {
	if buildErr != nil {
		return nil, buildErr
	}
	return h.Engine.ExecuteTx(tx)
}

// Must is Exec that fails the test on error.
func (h *Harness) Must(tx *core.Transaction, buildErr error) *core.Receipt {
	h.t.Helper()
	r, err := h.Exec(tx, buildErr)
	require.NoError(h.t, err)
	return r
}

// Wallet returns a new wallet funded by the operator with amount tokens.
func (h *Harness) Wallet(amount uint64) *wallet.Wallet {
	h.t.Helper()
	w, err := wallet.Generate(ChainID)
	require.NoError(h.t, err)
	if amount > 0 {
		h.Must(h.Operator.Transfer(h.Nonce(h.Operator), w.Identity(), amount))
	}
	return w
}

// Nonce returns the next nonce for w.
func (h *Harness) Nonce(w *wallet.Wallet) uint64 {
	h.t.Helper()
	var n uint64
	require.NoError(h.t, h.Engine.View(func(s core.State) error {
		acc, err := s.GetAccount(w.Identity())
		if err != nil {
			return err
		}
		n = acc.Nonce
		return nil
	}))
	return n
}

// Balance returns the payment-token balance of identity.
func (h *Harness) Balance(identity string) uint64 {
	h.t.Helper()
	var b uint64
	require.NoError(h.t, h.Engine.View(func(s core.State) error {
		acc, err := s.GetAccount(identity)
		if err != nil {
			return err
		}
		b = acc.Balance
		return nil
	}))
	return b
}

// View runs fn against the engine state, failing the test on error.
func (h *Harness) View(fn func(core.State) error) {
	h.t.Helper()
	require.NoError(h.t, h.Engine.View(fn))
}

// Root returns the committed state root.
func (h *Harness) Root() string {
	h.t.Helper()
	root, err := h.Engine.StateRoot()
	require.NoError(h.t, err)
	return root
}

// Now returns the engine clock in unix seconds.
func (h *Harness) Now() int64 { return h.Clock.Now().Unix() }

// Advance moves the fake clock forward.
func (h *Harness) Advance(d time.Duration) { h.Clock.Advance(d) }

// Collection registers name on behalf of w and returns its handle.
func (h *Harness) Collection(w *wallet.Wallet, name string) string {
	h.t.Helper()
	h.Must(w.CreateCollection(h.Nonce(w), name, name[:1]))
	var id string
	h.View(func(s core.State) error {
		c, err := s.GetCollectionByName(name)
		if err != nil {
			return err
		}
		id = c.ID
		return nil
	})
	return id
}

// Mint mints itemIDs of collection to w. w must be the collection creator.
func (h *Harness) Mint(w *wallet.Wallet, collection string, itemIDs ...uint64) {
	h.t.Helper()
	for _, id := range itemIDs {
		h.Must(w.MintItem(h.Nonce(w), collection, id, "", ""))
	}
}

// Owner returns the owner of an item.
func (h *Harness) Owner(collection string, itemID uint64) string {
	h.t.Helper()
	var owner string
	h.View(func(s core.State) error {
		item, err := s.GetItem(collection, itemID)
		if err != nil {
			return err
		}
		owner = item.Owner
		return nil
	})
	return owner
}

// Sign puts creator under an active agreement of the given term through the
// invitation path.
func (h *Harness) Sign(creator *wallet.Wallet, amount uint64, term time.Duration) {
	h.t.Helper()
	exp := h.Clock.Now().Add(term).Unix()
	h.Must(h.Operator.InviteSigning(h.Nonce(h.Operator), creator.Identity(), amount, exp))
	h.Must(creator.RespondInvite(h.Nonce(creator), true))
}
