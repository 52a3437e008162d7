// Package indexer maintains secondary indexes over committed transactions so
// clients can query orders by seller, collections by creator and purchases
// by buyer without scanning full state.
//
// Index entries live in the same DB as the state, under a prefix that is
// not part of the state root.
package indexer

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/storage"
)

const (
	prefixSellerOrders       = "idx:seller:order:"
	prefixCreatorCollections = "idx:creator:coll:"
	prefixBuyerPurchases     = "idx:buyer:sale:"

	// keySaleSeq holds the number of purchases indexed so far. Each purchase
	// key carries the next value, so a buyer's scan follows commit order
	// even when several sales share a timestamp.
	keySaleSeq = "idx:seq:sale"
)

// OrderRef identifies an order by its key.
type OrderRef struct {
	Collection string `json:"collection"`
	ItemID     uint64 `json:"item_id"`
}

// Purchase is one completed sale from the buyer's point of view.
type Purchase struct {
	TxID       string `json:"tx_id"`
	Collection string `json:"collection"`
	ItemID     uint64 `json:"item_id"`
	Seller     string `json:"seller"`
	Price      uint64 `json:"price"`
	Timestamp  int64  `json:"timestamp"`
}

// Indexer subscribes to engine events and updates secondary lookup tables.
type Indexer struct {
	db  storage.DB
	log *slog.Logger

	seqMu sync.Mutex
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter, log *slog.Logger) *Indexer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	idx := &Indexer{db: db, log: log.With("component", "indexer")}
	emitter.Subscribe(events.EventOrderListed, idx.onOrderListed)
	emitter.Subscribe(events.EventOrderCancelled, idx.onOrderClosed)
	emitter.Subscribe(events.EventOrderSold, idx.onOrderClosed)
	emitter.Subscribe(events.EventOrderSold, idx.onOrderSold)
	emitter.Subscribe(events.EventCollectionCreated, idx.onCollectionCreated)
	return idx
}

// OrdersBySeller returns the active orders placed by seller, sorted by key.
func (idx *Indexer) OrdersBySeller(seller string) ([]OrderRef, error) {
	var refs []OrderRef
	err := idx.scan(prefixSellerOrders+seller+":", func(v []byte) error {
		var ref OrderRef
		if err := json.Unmarshal(v, &ref); err != nil {
			return err
		}
		refs = append(refs, ref)
		return nil
	})
	return refs, err
}

// CollectionsByCreator returns the handles of collections registered by
// creator.
func (idx *Indexer) CollectionsByCreator(creator string) ([]string, error) {
	var ids []string
	err := idx.scan(prefixCreatorCollections+creator+":", func(v []byte) error {
		ids = append(ids, string(v))
		return nil
	})
	return ids, err
}

// PurchasesByBuyer returns the purchases made by buyer in commit order.
func (idx *Indexer) PurchasesByBuyer(buyer string) ([]Purchase, error) {
	var out []Purchase
	err := idx.scan(prefixBuyerPurchases+buyer+":", func(v []byte) error {
		var p Purchase
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// ---- event handlers ----

func (idx *Indexer) onOrderListed(ev events.Event) {
	seller, _ := ev.Data["seller"].(string)
	ref, ok := orderRef(ev)
	if !ok || seller == "" {
		return
	}
	data, err := json.Marshal(ref)
	if err != nil {
		return
	}
	idx.set(sellerOrderKey(seller, ref), data)
}

func (idx *Indexer) onOrderClosed(ev events.Event) {
	seller, _ := ev.Data["seller"].(string)
	ref, ok := orderRef(ev)
	if !ok || seller == "" {
		return
	}
	if err := idx.db.Delete([]byte(sellerOrderKey(seller, ref))); err != nil {
		idx.log.Warn("drop order index", "seller", seller, "err", err)
	}
}

func (idx *Indexer) onOrderSold(ev events.Event) {
	buyer, _ := ev.Data["buyer"].(string)
	seller, _ := ev.Data["seller"].(string)
	price, _ := ev.Data["price"].(uint64)
	ref, ok := orderRef(ev)
	if !ok || buyer == "" {
		return
	}
	data, err := json.Marshal(Purchase{
		TxID:       ev.TxID,
		Collection: ref.Collection,
		ItemID:     ref.ItemID,
		Seller:     seller,
		Price:      price,
		Timestamp:  ev.Timestamp,
	})
	if err != nil {
		return
	}
	seq, err := idx.nextSaleSeq()
	if err != nil {
		idx.log.Warn("purchase sequence", "tx", ev.TxID, "err", err)
		return
	}
	idx.set(fmt.Sprintf("%s%s:%020d:%s", prefixBuyerPurchases, buyer, seq, ev.TxID), data)
}

// nextSaleSeq increments and persists the purchase counter.
func (idx *Indexer) nextSaleSeq() (uint64, error) {
	idx.seqMu.Lock()
	defer idx.seqMu.Unlock()

	var seq uint64
	raw, err := idx.db.Get([]byte(keySaleSeq))
	switch {
	case err == nil && len(raw) == 8:
		seq = binary.BigEndian.Uint64(raw)
	case err == nil:
		return 0, fmt.Errorf("corrupt sale sequence: %d bytes", len(raw))
	case !errors.Is(err, core.ErrNotFound):
		return 0, err
	}
	seq++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	if err := idx.db.Set([]byte(keySaleSeq), buf[:]); err != nil {
		return 0, err
	}
	return seq, nil
}

func (idx *Indexer) onCollectionCreated(ev events.Event) {
	creator, _ := ev.Data["creator"].(string)
	id, _ := ev.Data["collection"].(string)
	if creator == "" || id == "" {
		return
	}
	idx.set(prefixCreatorCollections+creator+":"+id, []byte(id))
}

// ---- helpers ----

func orderRef(ev events.Event) (OrderRef, bool) {
	coll, _ := ev.Data["collection"].(string)
	itemID, ok := ev.Data["item_id"].(uint64)
	if coll == "" || !ok {
		return OrderRef{}, false
	}
	return OrderRef{Collection: coll, ItemID: itemID}, true
}

func sellerOrderKey(seller string, ref OrderRef) string {
	return fmt.Sprintf("%s%s:%s/%020d", prefixSellerOrders, seller, ref.Collection, ref.ItemID)
}

func (idx *Indexer) set(key string, value []byte) {
	if err := idx.db.Set([]byte(key), value); err != nil {
		idx.log.Warn("write index", "key", key, "err", err)
	}
}

func (idx *Indexer) scan(prefix string, fn func(v []byte) error) error {
	it := idx.db.NewIterator([]byte(prefix))
	defer it.Release()
	for it.Next() {
		if !strings.HasPrefix(string(it.Key()), prefix) {
			break
		}
		if err := fn(it.Value()); err != nil {
			return fmt.Errorf("indexer decode %s: %w", it.Key(), err)
		}
	}
	return it.Error()
}
