package rpc

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/indexer"
	"github.com/tolelom/tolmarket/metrics"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/vm/modules/market"
	"github.com/tolelom/tolmarket/vm/modules/nft"
	"github.com/tolelom/tolmarket/vm/modules/popularity"
	"github.com/tolelom/tolmarket/vm/modules/signing"
	"github.com/tolelom/tolmarket/vm/modules/treasury"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	engine  *vm.Engine
	indexer *indexer.Indexer
	log     *slog.Logger
	methods map[string]func(Request) Response
}

// NewHandler creates an RPC Handler. idx may be nil, in which case the
// index-backed methods report an internal error.
func NewHandler(engine *vm.Engine, idx *indexer.Indexer, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	h := &Handler{engine: engine, indexer: idx, log: log}
	h.methods = map[string]func(Request) Response{
		"sendTx":                  h.sendTx,
		"getAccount":              h.getAccount,
		"getBalance":              h.getBalance,
		"resolveCollection":       h.resolveCollection,
		"getCollection":           h.getCollection,
		"ownerOf":                 h.ownerOf,
		"getOrder":                h.getOrder,
		"getOrderByKey":           h.getOrderByKey,
		"isListed":                h.isListed,
		"getOrderCount":           h.getOrderCount,
		"getSigningStatus":        h.getSigningStatus,
		"getApplication":          h.poolEntry(core.PoolApplications),
		"getInvitation":           h.poolEntry(core.PoolInvitations),
		"getAgreement":            h.poolEntry(core.PoolAgreements),
		"getPopularity":           h.getPopularity,
		"getLeaderboardEntry":     h.getLeaderboardEntry,
		"getLeaderboard":          h.getLeaderboard,
		"getTreasury":             h.getTreasury,
		"getOrdersBySeller":       h.getOrdersBySeller,
		"getCollectionsByCreator": h.getCollectionsByCreator,
		"getPurchasesByBuyer":     h.getPurchasesByBuyer,
		"getStateRoot":            h.getStateRoot,
	}
	return h
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	fn, ok := h.methods[req.Method]
	if !ok {
		metrics.RPCRequestsTotal.WithLabelValues("unknown", "error").Inc()
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
	resp := fn(req)
	status := "ok"
	if resp.Error != nil {
		status = "error"
	}
	metrics.RPCRequestsTotal.WithLabelValues(req.Method, status).Inc()
	return resp
}

// ---- params ----

type identityParams struct {
	Identity string `json:"identity"`
}

type itemParams struct {
	Collection string `json:"collection"`
	ItemID     uint64 `json:"item_id"`
}

type indexParams struct {
	Index uint64 `json:"index"`
}

func decode(req Request, v any) *Response {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		r := errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		return &r
	}
	return nil
}

// view runs fn under the engine lock and wraps its outcome.
func (h *Handler) view(req Request, fn func(s core.State) (any, error)) Response {
	var result any
	err := h.engine.View(func(s core.State) error {
		var err error
		result, err = fn(s)
		return err
	})
	if err != nil {
		return h.fail(req, err)
	}
	return okResponse(req.ID, result)
}

func (h *Handler) fail(req Request, err error) Response {
	code := codeFor(err)
	if code == CodeInternalError {
		h.log.Error("rpc method failed", "method", req.Method, "err", err)
	}
	return errResponse(req.ID, code, err.Error())
}

// ---- methods ----

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "invalid transaction: "+err.Error())
	}
	receipt, err := h.engine.ExecuteTx(&tx)
	if err != nil {
		return h.fail(req, err)
	}
	return okResponse(req.ID, receipt)
}

func (h *Handler) getAccount(req Request) Response {
	var p identityParams
	if r := decode(req, &p); r != nil {
		return *r
	}
	return h.view(req, func(s core.State) (any, error) { return s.GetAccount(p.Identity) })
}

func (h *Handler) getBalance(req Request) Response {
	var p identityParams
	if r := decode(req, &p); r != nil {
		return *r
	}
	return h.view(req, func(s core.State) (any, error) {
		acc, err := s.GetAccount(p.Identity)
		if err != nil {
			return nil, err
		}
		return map[string]any{"identity": p.Identity, "balance": acc.Balance}, nil
	})
}

func (h *Handler) resolveCollection(req Request) Response {
	var p struct {
		Name string `json:"name"`
	}
	if r := decode(req, &p); r != nil {
		return *r
	}
	return h.view(req, func(s core.State) (any, error) {
		id, err := nft.Resolve(s, p.Name)
		if err != nil {
			return nil, err
		}
		return map[string]string{"name": p.Name, "collection": id}, nil
	})
}

func (h *Handler) getCollection(req Request) Response {
	var p struct {
		Collection string `json:"collection"`
	}
	if r := decode(req, &p); r != nil {
		return *r
	}
	return h.view(req, func(s core.State) (any, error) { return s.GetCollection(p.Collection) })
}

func (h *Handler) ownerOf(req Request) Response {
	var p itemParams
	if r := decode(req, &p); r != nil {
		return *r
	}
	return h.view(req, func(s core.State) (any, error) { return s.GetItem(p.Collection, p.ItemID) })
}

func (h *Handler) getOrder(req Request) Response {
	var p indexParams
	if r := decode(req, &p); r != nil {
		return *r
	}
	return h.view(req, func(s core.State) (any, error) { return market.GetOrder(s, p.Index) })
}

func (h *Handler) getOrderByKey(req Request) Response {
	var p itemParams
	if r := decode(req, &p); r != nil {
		return *r
	}
	return h.view(req, func(s core.State) (any, error) { return market.GetOrderByKey(s, p.Collection, p.ItemID) })
}

func (h *Handler) isListed(req Request) Response {
	var p itemParams
	if r := decode(req, &p); r != nil {
		return *r
	}
	return h.view(req, func(s core.State) (any, error) { return market.IsListed(s, p.Collection, p.ItemID) })
}

func (h *Handler) getOrderCount(req Request) Response {
	return h.view(req, func(s core.State) (any, error) { return s.OrderCount() })
}

func (h *Handler) getSigningStatus(req Request) Response {
	var p struct {
		Creator string `json:"creator"`
	}
	if r := decode(req, &p); r != nil {
		return *r
	}
	now := h.engine.Now()
	return h.view(req, func(s core.State) (any, error) {
		st, err := signing.StatusOf(s, p.Creator)
		if err != nil {
			return nil, err
		}
		active, err := signing.IsSigned(s, p.Creator, now)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"applied": st.Applied,
			"invited": st.Invited,
			"signed":  st.Signed,
			"active":  active,
		}, nil
	})
}

// poolEntry serves lookups by creator or by index within one signing pool.
func (h *Handler) poolEntry(pool core.SigningPool) func(Request) Response {
	return func(req Request) Response {
		var p struct {
			Creator string  `json:"creator"`
			Index   *uint64 `json:"index"`
		}
		if r := decode(req, &p); r != nil {
			return *r
		}
		return h.view(req, func(s core.State) (any, error) {
			if p.Index != nil {
				return signing.At(s, pool, *p.Index)
			}
			return signing.Get(s, pool, p.Creator)
		})
	}
}

func (h *Handler) getPopularity(req Request) Response {
	var p struct {
		Collection string `json:"collection"`
	}
	if r := decode(req, &p); r != nil {
		return *r
	}
	return h.view(req, func(s core.State) (any, error) { return popularity.Get(s, p.Collection) })
}

func (h *Handler) getLeaderboardEntry(req Request) Response {
	var p indexParams
	if r := decode(req, &p); r != nil {
		return *r
	}
	return h.view(req, func(s core.State) (any, error) { return popularity.LeaderboardEntry(s, p.Index) })
}

func (h *Handler) getLeaderboard(req Request) Response {
	return h.view(req, func(s core.State) (any, error) {
		board, err := s.GetLeaderboard()
		if err != nil {
			return nil, err
		}
		if board == nil {
			board = []core.LeaderboardEntry{}
		}
		return board, nil
	})
}

func (h *Handler) getTreasury(req Request) Response {
	return h.view(req, func(s core.State) (any, error) {
		t, err := s.GetTreasury()
		if err != nil {
			return nil, err
		}
		balance, err := treasury.Balance(s)
		if err != nil {
			return nil, err
		}
		escrowed, err := treasury.Escrowed(s)
		if err != nil {
			return nil, err
		}
		return map[string]any{"config": t, "balance": balance, "escrowed": escrowed}, nil
	})
}

func (h *Handler) getOrdersBySeller(req Request) Response {
	var p struct {
		Seller string `json:"seller"`
	}
	if r := decode(req, &p); r != nil {
		return *r
	}
	return h.indexed(req, func(idx *indexer.Indexer) (any, error) { return idx.OrdersBySeller(p.Seller) })
}

func (h *Handler) getCollectionsByCreator(req Request) Response {
	var p struct {
		Creator string `json:"creator"`
	}
	if r := decode(req, &p); r != nil {
		return *r
	}
	return h.indexed(req, func(idx *indexer.Indexer) (any, error) { return idx.CollectionsByCreator(p.Creator) })
}

func (h *Handler) getPurchasesByBuyer(req Request) Response {
	var p struct {
		Buyer string `json:"buyer"`
	}
	if r := decode(req, &p); r != nil {
		return *r
	}
	return h.indexed(req, func(idx *indexer.Indexer) (any, error) { return idx.PurchasesByBuyer(p.Buyer) })
}

func (h *Handler) getStateRoot(req Request) Response {
	root, err := h.engine.StateRoot()
	if err != nil {
		return h.fail(req, err)
	}
	return okResponse(req.ID, root)
}

func (h *Handler) indexed(req Request, fn func(*indexer.Indexer) (any, error)) Response {
	if h.indexer == nil {
		return errResponse(req.ID, CodeInternalError, "indexer not enabled")
	}
	result, err := fn(h.indexer)
	if err != nil {
		return h.fail(req, err)
	}
	return okResponse(req.ID, result)
}
