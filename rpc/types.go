// Package rpc exposes the marketplace engine via a JSON-RPC 2.0 HTTP endpoint.
package rpc

import (
	"encoding/json"
	"errors"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
	CodeRateLimited    = -32005
	// CodeMarketError marks a named marketplace failure; the message carries
	// the sentinel text so clients can match on it.
	CodeMarketError = -32010
)

// marketErrors are the caller-recoverable failures reported with
// CodeMarketError.
var marketErrors = []error{
	core.ErrNotFound,
	core.ErrDuplicateName,
	core.ErrAlreadyListed,
	core.ErrNotListed,
	core.ErrNotSeller,
	core.ErrEmptyOrderBook,
	core.ErrIndexOutOfRange,
	core.ErrPriceTooLow,
	core.ErrTransferFailed,
	core.ErrNotOwner,
	core.ErrAlreadyApplied,
	core.ErrAlreadySigned,
	core.ErrNoApplication,
	core.ErrTermTooShort,
	core.ErrAlreadyInvited,
	core.ErrNoInvitation,
	core.ErrNotSigned,
	core.ErrSigningExpired,
	core.ErrAlreadyMinted,
	core.ErrNotItemOwner,
	core.ErrSelfPurchase,
	core.ErrInvalidRate,
	core.ErrInvalidAmount,
	core.ErrBadNonce,
	core.ErrChainID,
	crypto.ErrBadSignature,
}

func codeFor(err error) int {
	for _, target := range marketErrors {
		if errors.Is(err, target) {
			return CodeMarketError
		}
	}
	return CodeInternalError
}

func errResponse(id any, code int, msg string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}

func okResponse(id, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}
