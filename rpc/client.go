package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tolelom/tolmarket/core"
)

// Client calls a marketplace JSON-RPC endpoint.
type Client struct {
	url       string
	authToken string
	http      *http.Client
	nextID    atomic.Int64
}

// NewClient creates a Client for url, e.g. "http://127.0.0.1:8545/".
func NewClient(url, authToken string) *Client {
	return &Client{url: url, authToken: authToken, http: &http.Client{Timeout: 15 * time.Second}}
}

// Call invokes method with params and decodes the result into out (which
// may be nil). RPC-level failures are returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	body, err := json.Marshal(Request{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: raw})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s: decode response (HTTP %d): %w", method, resp.StatusCode, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

// Account fetches the balance and nonce of identity.
func (c *Client) Account(ctx context.Context, identity string) (*core.Account, error) {
	var acc core.Account
	if err := c.Call(ctx, "getAccount", identityParams{Identity: identity}, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// SendTx submits a signed transaction and returns its receipt.
func (c *Client) SendTx(ctx context.Context, tx *core.Transaction) (*core.Receipt, error) {
	var r core.Receipt
	if err := c.Call(ctx, "sendTx", tx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
