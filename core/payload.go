package core

// TransferPayload transfers payment tokens.
type TransferPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// CreateCollectionPayload registers a new named collection.
type CreateCollectionPayload struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// MintItemPayload mints ItemID in Collection to To (defaults to the sender).
type MintItemPayload struct {
	Collection   string `json:"collection"`
	ItemID       uint64 `json:"item_id"`
	To           string `json:"to,omitempty"`
	MetadataHash string `json:"metadata_hash"`
}

// TransferItemPayload moves an item to a new owner.
type TransferItemPayload struct {
	Collection string `json:"collection"`
	ItemID     uint64 `json:"item_id"`
	To         string `json:"to"`
}

// ListItemPayload puts an owned item up for sale.
type ListItemPayload struct {
	Collection string `json:"collection"`
	ItemID     uint64 `json:"item_id"`
	Price      uint64 `json:"price"`
}

// ChangePricePayload reprices an active order.
type ChangePricePayload struct {
	Collection string `json:"collection"`
	ItemID     uint64 `json:"item_id"`
	Price      uint64 `json:"price"`
}

// OrderKeyPayload identifies an order; used by cancel.
type OrderKeyPayload struct {
	Collection string `json:"collection"`
	ItemID     uint64 `json:"item_id"`
}

// BuyItemPayload purchases an active order. MaxPrice guards against a price
// increase between query and submission.
type BuyItemPayload struct {
	Collection string `json:"collection"`
	ItemID     uint64 `json:"item_id"`
	MaxPrice   uint64 `json:"max_price"`
}

// ApplySigningPayload is a creator's request for a signing agreement.
type ApplySigningPayload struct {
	Amount     uint64 `json:"signing_amount"`
	Expiration int64  `json:"signing_expiration"` // unix seconds
}

// ApproveSigningPayload is the operator's decision on a pending application.
type ApproveSigningPayload struct {
	Creator string `json:"creator"`
	Approve bool   `json:"approve"`
}

// InviteSigningPayload is the operator's offer to a creator.
type InviteSigningPayload struct {
	Creator    string `json:"creator"`
	Amount     uint64 `json:"signing_amount"`
	Expiration int64  `json:"signing_expiration"` // unix seconds
}

// RespondInvitePayload is the creator's answer to a pending invitation.
type RespondInvitePayload struct {
	Accept bool `json:"accept"`
}

// RevokeSigningPayload ends a creator's agreement on the platform side.
type RevokeSigningPayload struct {
	Creator string `json:"creator"`
}

// PromotePayload adds operator-granted popularity to a collection.
type PromotePayload struct {
	Collection string `json:"collection"`
	Amount     uint64 `json:"amount"`
}

// BoostPopularityPayload buys popularity units for a collection.
type BoostPopularityPayload struct {
	Collection string `json:"collection"`
	Units      uint64 `json:"units"`
}

// AmountPayload carries a single operator-set amount.
type AmountPayload struct {
	Amount uint64 `json:"amount"`
}

// SetCommissionPayload replaces both sale rates.
type SetCommissionPayload struct {
	CommissionRateBps uint64 `json:"commission_rate_bps"`
	RevenueShareBps   uint64 `json:"revenue_share_bps"`
}
