package core

import "errors"

// ErrNotFound is returned when a requested object does not exist in storage.
// It doubles as the registry's NotFound failure for unknown collection names.
var ErrNotFound = errors.New("not found")

// Marketplace failures. Handlers wrap these with context; match with errors.Is.
var (
	ErrDuplicateName   = errors.New("duplicate name")
	ErrAlreadyListed   = errors.New("already listed")
	ErrNotListed       = errors.New("not listed")
	ErrNotSeller       = errors.New("not seller")
	ErrEmptyOrderBook  = errors.New("empty order book")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrPriceTooLow     = errors.New("price too low")
	ErrTransferFailed  = errors.New("transfer failed")
	ErrNotOwner        = errors.New("not owner")
	ErrAlreadyApplied  = errors.New("already applied")
	ErrAlreadySigned   = errors.New("already signed")
	ErrNoApplication   = errors.New("no application")
	ErrTermTooShort    = errors.New("term too short")
	ErrAlreadyInvited  = errors.New("already invited")
	ErrNoInvitation    = errors.New("no invitation")
	ErrNotSigned       = errors.New("not signed")
	ErrSigningExpired  = errors.New("signing expired")

	ErrAlreadyMinted = errors.New("already minted")
	ErrNotItemOwner  = errors.New("not item owner")
	ErrSelfPurchase  = errors.New("seller cannot buy own order")
	ErrInvalidRate   = errors.New("invalid rate")
	ErrInvalidAmount = errors.New("invalid amount")

	ErrBadNonce = errors.New("bad nonce")
	ErrChainID  = errors.New("chain id mismatch")
	ErrTxID     = errors.New("tx id does not match its hash")
)
