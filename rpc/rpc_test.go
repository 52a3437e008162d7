package rpc_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/indexer"
	"github.com/tolelom/tolmarket/internal/testutil"
	"github.com/tolelom/tolmarket/rpc"
	"github.com/tolelom/tolmarket/wallet"
)

type env struct {
	h      *testutil.Harness
	url    string
	client *rpc.Client
	ctx    context.Context
}

func newEnv(t *testing.T, cfg rpc.ServerConfig) *env {
	t.Helper()
	h := testutil.NewHarness(t)
	idx := indexer.New(h.DB, h.Emitter, nil)
	srv := rpc.NewServer(cfg, rpc.NewHandler(h.Engine, idx, nil), nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	url := ts.URL + "/"
	return &env{h: h, url: url, client: rpc.NewClient(url, cfg.AuthToken), ctx: context.Background()}
}

// send signs through the wallet using the nonce the server reports.
func (e *env) send(t *testing.T, w *wallet.Wallet, build func(nonce uint64) (*core.Transaction, error)) (*core.Receipt, error) {
	t.Helper()
	acc, err := e.client.Account(e.ctx, w.Identity())
	require.NoError(t, err)
	tx, err := build(acc.Nonce)
	require.NoError(t, err)
	return e.client.SendTx(e.ctx, tx)
}

func TestSendTxAndQueries(t *testing.T) {
	e := newEnv(t, rpc.ServerConfig{})
	seller := e.h.Wallet(0)
	buyer := e.h.Wallet(5000)

	_, err := e.send(t, seller, func(n uint64) (*core.Transaction, error) { return seller.CreateCollection(n, "Cats", "CAT") })
	require.NoError(t, err)

	var resolved map[string]string
	require.NoError(t, e.client.Call(e.ctx, "resolveCollection", map[string]string{"name": "Cats"}, &resolved))
	cats := resolved["collection"]
	require.NotEmpty(t, cats)

	_, err = e.send(t, seller, func(n uint64) (*core.Transaction, error) { return seller.MintItem(n, cats, 7, "", "") })
	require.NoError(t, err)
	_, err = e.send(t, seller, func(n uint64) (*core.Transaction, error) { return seller.List(n, cats, 7, 1000) })
	require.NoError(t, err)

	var listed bool
	require.NoError(t, e.client.Call(e.ctx, "isListed", map[string]any{"collection": cats, "item_id": 7}, &listed))
	assert.True(t, listed)

	var order core.Order
	require.NoError(t, e.client.Call(e.ctx, "getOrder", map[string]any{"index": 0}, &order))
	assert.Equal(t, uint64(1000), order.Price)

	var bySeller []indexer.OrderRef
	require.NoError(t, e.client.Call(e.ctx, "getOrdersBySeller", map[string]string{"seller": seller.Identity()}, &bySeller))
	assert.Equal(t, []indexer.OrderRef{{Collection: cats, ItemID: 7}}, bySeller)

	r, err := e.send(t, buyer, func(n uint64) (*core.Transaction, error) { return buyer.Buy(n, cats, 7, 1000) })
	require.NoError(t, err)

	var root string
	require.NoError(t, e.client.Call(e.ctx, "getStateRoot", nil, &root))
	assert.Equal(t, r.StateRoot, root)

	var item core.Item
	require.NoError(t, e.client.Call(e.ctx, "ownerOf", map[string]any{"collection": cats, "item_id": 7}, &item))
	assert.Equal(t, buyer.Identity(), item.Owner)

	bySeller = nil
	require.NoError(t, e.client.Call(e.ctx, "getOrdersBySeller", map[string]string{"seller": seller.Identity()}, &bySeller))
	assert.Empty(t, bySeller)

	var purchases []indexer.Purchase
	require.NoError(t, e.client.Call(e.ctx, "getPurchasesByBuyer", map[string]string{"buyer": buyer.Identity()}, &purchases))
	require.Len(t, purchases, 1)
	assert.Equal(t, r.TxID, purchases[0].TxID)

	var created []string
	require.NoError(t, e.client.Call(e.ctx, "getCollectionsByCreator", map[string]string{"creator": seller.Identity()}, &created))
	assert.Equal(t, []string{cats}, created)

	var treasury struct {
		Config  core.Treasury `json:"config"`
		Balance uint64        `json:"balance"`
	}
	require.NoError(t, e.client.Call(e.ctx, "getTreasury", nil, &treasury))
	assert.Equal(t, testutil.TreasuryFunds+3, treasury.Balance)
	assert.Equal(t, e.h.Operator.Identity(), treasury.Config.Operator)
}

func TestMarketErrorsCarryTheirCode(t *testing.T) {
	e := newEnv(t, rpc.ServerConfig{})

	err := e.client.Call(e.ctx, "getOrder", map[string]any{"index": 0}, nil)
	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeMarketError, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, core.ErrEmptyOrderBook.Error())

	err = e.client.Call(e.ctx, "getLeaderboardEntry", map[string]any{"index": 0}, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeMarketError, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, core.ErrIndexOutOfRange.Error())

	bob := e.h.Wallet(0)
	_, err = e.send(t, bob, func(n uint64) (*core.Transaction, error) { return bob.Transfer(n, e.h.Operator.Identity(), 1) })
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeMarketError, rpcErr.Code)

	err = e.client.Call(e.ctx, "noSuchMethod", nil, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeMethodNotFound, rpcErr.Code)

	err = e.client.Call(e.ctx, "getOrder", map[string]any{"index": "zero"}, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeInvalidParams, rpcErr.Code)
}

func TestSigningStatusMethod(t *testing.T) {
	e := newEnv(t, rpc.ServerConfig{})
	creator := e.h.Wallet(0)
	e.h.Sign(creator, 0, core.MinSigningTerm)

	var st map[string]bool
	require.NoError(t, e.client.Call(e.ctx, "getSigningStatus", map[string]string{"creator": creator.Identity()}, &st))
	assert.True(t, st["signed"])
	assert.True(t, st["active"])
	assert.False(t, st["applied"])

	var a core.SigningAgreement
	require.NoError(t, e.client.Call(e.ctx, "getAgreement", map[string]any{"index": 0}, &a))
	assert.Equal(t, creator.Identity(), a.Creator)
}

func TestAuthToken(t *testing.T) {
	e := newEnv(t, rpc.ServerConfig{AuthToken: "s3cret"})
	var root string
	require.NoError(t, e.client.Call(e.ctx, "getStateRoot", nil, &root))

	anon := rpc.NewClient(e.url, "")
	err := anon.Call(e.ctx, "getStateRoot", nil, &root)
	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeUnauthorized, rpcErr.Code)
}

func TestRateLimit(t *testing.T) {
	h := testutil.NewHarness(t)
	srv := rpc.NewServer(rpc.ServerConfig{RateLimit: 0.001, RateBurst: 2}, rpc.NewHandler(h.Engine, nil, nil), nil)
	router := srv.Router()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"getStateRoot"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
			var resp rpc.Response
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, rpc.CodeRateLimited, resp.Error.Code)
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimitIgnoresForwardingHeaders(t *testing.T) {
	h := testutil.NewHarness(t)
	router := rpc.NewServer(rpc.ServerConfig{RateLimit: 0.001, RateBurst: 1}, rpc.NewHandler(h.Engine, nil, nil), nil).Router()

	allowed := 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"getStateRoot"}`))
		req.RemoteAddr = "192.0.2.7:40000"
		spoofed := fmt.Sprintf("198.51.100.%d", i+1)
		req.Header.Set("X-Forwarded-For", spoofed)
		req.Header.Set("X-Real-IP", spoofed)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed, "one peer shares one bucket")
}

func TestHealthAndMetrics(t *testing.T) {
	h := testutil.NewHarness(t)
	router := rpc.NewServer(rpc.ServerConfig{}, rpc.NewHandler(h.Engine, nil, nil), nil).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h.Must(h.Operator.SetPenalty(h.Nonce(h.Operator), 5))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tolmarket_tx_total")
}
