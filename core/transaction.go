package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/tolmarket/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer TxType = "transfer"

	TxCreateCollection TxType = "create_collection"
	TxMintItem         TxType = "mint_item"
	TxTransferItem     TxType = "transfer_item"

	TxListItem    TxType = "list_item"
	TxChangePrice TxType = "change_price"
	TxCancelOrder TxType = "cancel_order"
	TxBuyItem     TxType = "buy_item"

	TxApplySigning   TxType = "apply_signing"
	TxApproveSigning TxType = "approve_signing"
	TxInviteSigning  TxType = "invite_signing"
	TxRespondInvite  TxType = "respond_invite"
	TxCancelSigning  TxType = "cancel_signing"
	TxRevokeSigning  TxType = "revoke_signing"

	TxPromote            TxType = "promote"
	TxBoostPopularity    TxType = "boost_popularity"
	TxRebuildLeaderboard TxType = "rebuild_leaderboard"

	TxWithdraw           TxType = "withdraw"
	TxSetPenalty         TxType = "set_penalty"
	TxSetPopularityPrice TxType = "set_popularity_price"
	TxSetCommission      TxType = "set_commission"
)

// Transaction is the atomic unit of work on the engine.
// From holds the sender's full hex-encoded ed25519 public key (64 chars).
// Signature covers all fields except ID and Signature.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
func (tx *Transaction) Hash() string {
	data, err := json.Marshal(signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	})
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	tx.ID = tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(tx.ID))
}

// Verify checks the signature, that From is a valid public key and that ID
// is the hash of the signed body.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	hash := tx.Hash()
	if tx.ID != hash {
		return fmt.Errorf("%w: id %q, hash %q", ErrTxID, tx.ID, hash)
	}
	return crypto.Verify(pub, []byte(hash), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// Receipt describes a committed transaction.
type Receipt struct {
	TxID       string `json:"tx_id"`
	Type       TxType `json:"type"`
	StateRoot  string `json:"state_root"`
	ExecutedAt int64  `json:"executed_at"` // unix seconds from the engine clock
}
