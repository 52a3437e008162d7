// Package wallet provides key management and builders for signed marketplace
// transactions. Every builder takes the sender's current nonce and returns a
// transaction ready for Engine.ExecuteTx or the sendTx RPC method.
package wallet

import (
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
)

// Wallet holds a key pair bound to one chain id.
type Wallet struct {
	priv    crypto.PrivateKey
	pub     crypto.PublicKey
	chainID string
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey, chainID string) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public(), chainID: chainID}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate(chainID string) (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv, chainID), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// Identity returns the hex-encoded ed25519 public key used as "from".
func (w *Wallet) Identity() string {
	return w.pub.Hex()
}

// ChainID returns the chain id the wallet signs for.
func (w *Wallet) ChainID() string {
	return w.chainID
}

// NewTx creates a signed transaction. nonce should match the account's
// current nonce.
func (w *Wallet) NewTx(typ core.TxType, nonce uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(w.chainID, typ, w.pub.Hex(), nonce, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer sends payment tokens to another identity.
func (w *Wallet) Transfer(nonce uint64, to string, amount uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransfer, nonce, core.TransferPayload{To: to, Amount: amount})
}

// ---- registry ----

func (w *Wallet) CreateCollection(nonce uint64, name, symbol string) (*core.Transaction, error) {
	return w.NewTx(core.TxCreateCollection, nonce, core.CreateCollectionPayload{Name: name, Symbol: symbol})
}

// MintItem mints itemID into collection. An empty to mints to the wallet.
func (w *Wallet) MintItem(nonce uint64, collection string, itemID uint64, to, metadataHash string) (*core.Transaction, error) {
	return w.NewTx(core.TxMintItem, nonce, core.MintItemPayload{
		Collection:   collection,
		ItemID:       itemID,
		To:           to,
		MetadataHash: metadataHash,
	})
}

func (w *Wallet) TransferItem(nonce uint64, collection string, itemID uint64, to string) (*core.Transaction, error) {
	return w.NewTx(core.TxTransferItem, nonce, core.TransferItemPayload{Collection: collection, ItemID: itemID, To: to})
}

// ---- order book ----

func (w *Wallet) List(nonce uint64, collection string, itemID, price uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxListItem, nonce, core.ListItemPayload{Collection: collection, ItemID: itemID, Price: price})
}

func (w *Wallet) ChangePrice(nonce uint64, collection string, itemID, price uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxChangePrice, nonce, core.ChangePricePayload{Collection: collection, ItemID: itemID, Price: price})
}

func (w *Wallet) CancelOrder(nonce uint64, collection string, itemID uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxCancelOrder, nonce, core.OrderKeyPayload{Collection: collection, ItemID: itemID})
}

// Buy purchases an item, refusing to pay more than maxPrice.
func (w *Wallet) Buy(nonce uint64, collection string, itemID, maxPrice uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxBuyItem, nonce, core.BuyItemPayload{Collection: collection, ItemID: itemID, MaxPrice: maxPrice})
}

// ---- signing ----

func (w *Wallet) ApplyForSigning(nonce, amount uint64, expiration int64) (*core.Transaction, error) {
	return w.NewTx(core.TxApplySigning, nonce, core.ApplySigningPayload{Amount: amount, Expiration: expiration})
}

func (w *Wallet) ApproveSigning(nonce uint64, creator string, approve bool) (*core.Transaction, error) {
	return w.NewTx(core.TxApproveSigning, nonce, core.ApproveSigningPayload{Creator: creator, Approve: approve})
}

func (w *Wallet) InviteSigning(nonce uint64, creator string, amount uint64, expiration int64) (*core.Transaction, error) {
	return w.NewTx(core.TxInviteSigning, nonce, core.InviteSigningPayload{Creator: creator, Amount: amount, Expiration: expiration})
}

func (w *Wallet) RespondInvite(nonce uint64, accept bool) (*core.Transaction, error) {
	return w.NewTx(core.TxRespondInvite, nonce, core.RespondInvitePayload{Accept: accept})
}

func (w *Wallet) CancelSigning(nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxCancelSigning, nonce, struct{}{})
}

func (w *Wallet) RevokeSigning(nonce uint64, creator string) (*core.Transaction, error) {
	return w.NewTx(core.TxRevokeSigning, nonce, core.RevokeSigningPayload{Creator: creator})
}

// ---- popularity ----

func (w *Wallet) Promote(nonce uint64, collection string, amount uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxPromote, nonce, core.PromotePayload{Collection: collection, Amount: amount})
}

func (w *Wallet) BoostPopularity(nonce uint64, collection string, units uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxBoostPopularity, nonce, core.BoostPopularityPayload{Collection: collection, Units: units})
}

func (w *Wallet) RebuildLeaderboard(nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxRebuildLeaderboard, nonce, struct{}{})
}

// ---- treasury ----

func (w *Wallet) Withdraw(nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxWithdraw, nonce, struct{}{})
}

func (w *Wallet) SetPenalty(nonce, amount uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxSetPenalty, nonce, core.AmountPayload{Amount: amount})
}

func (w *Wallet) SetPopularityUnitPrice(nonce, amount uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxSetPopularityPrice, nonce, core.AmountPayload{Amount: amount})
}

func (w *Wallet) SetCommission(nonce, commissionBps, revenueShareBps uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxSetCommission, nonce, core.SetCommissionPayload{
		CommissionRateBps: commissionBps,
		RevenueShareBps:   revenueShareBps,
	})
}
