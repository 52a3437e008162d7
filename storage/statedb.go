package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated by registerPrefix() below.
var statePrefixes []string

var (
	prefixAccount        = registerPrefix("acct:")
	prefixCollection     = registerPrefix("coll:")
	prefixCollectionName = registerPrefix("collname:")
	prefixCollectionSeq  = registerPrefix("collseq:")
	prefixItem           = registerPrefix("item:")
	prefixOrders         = registerPrefix("order:")
	prefixSigning        = registerPrefix("sign:")
	prefixPopularity     = registerPrefix("pop:")
	prefixMeta           = registerPrefix("meta:")
)

const (
	keyCollectionCount = "meta:collections"
	keyLeaderboard     = "meta:leaderboard"
	keyTreasury        = "meta:treasury"

	// keyStateDigest sits outside statePrefixes so it never feeds itself.
	keyStateDigest = "root:digest"
)

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and incremental state-root computation. It assumes it
// is the only writer of the state keys in its DB.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) del(key string) {
	delete(s.dirty, key)
	s.deleted[key] = true
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

func (s *StateDB) orders() slotSet { return slotSet{s: s, prefix: prefixOrders} }

func (s *StateDB) pool(p core.SigningPool) slotSet {
	return slotSet{s: s, prefix: prefixSigning + string(p) + ":"}
}

func orderKey(collection string, itemID uint64) string {
	return collection + "/" + strconv.FormatUint(itemID, 10)
}

// ---- Account ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil // zero-value account
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Collection ----

func (s *StateDB) GetCollection(id string) (*core.Collection, error) {
	var c core.Collection
	if err := s.getJSON(prefixCollection+id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *StateDB) GetCollectionByName(name string) (*core.Collection, error) {
	id, err := s.get(prefixCollectionName + name)
	if err != nil {
		return nil, err
	}
	return s.GetCollection(string(id))
}

// SetCollection stores c. A collection seen for the first time is appended to
// the registration order and its Seq assigned.
func (s *StateDB) SetCollection(c *core.Collection) error {
	if _, err := s.get(prefixCollection + c.ID); errors.Is(err, core.ErrNotFound) {
		n, err := s.collectionCount()
		if err != nil {
			return err
		}
		c.Seq = n
		s.set(fmt.Sprintf("%s%020d", prefixCollectionSeq, n), []byte(c.ID))
		s.set(keyCollectionCount, []byte(strconv.FormatUint(n+1, 10)))
	} else if err != nil {
		return err
	}
	s.set(prefixCollectionName+c.Name, []byte(c.ID))
	return s.setJSON(prefixCollection+c.ID, c)
}

func (s *StateDB) collectionCount() (uint64, error) {
	data, err := s.get(keyCollectionCount)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(data), 10, 64)
}

func (s *StateDB) CollectionIDs() ([]string, error) {
	n, err := s.collectionCount()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		id, err := s.get(fmt.Sprintf("%s%020d", prefixCollectionSeq, i))
		if err != nil {
			return nil, fmt.Errorf("collection #%d: %w", i, err)
		}
		ids = append(ids, string(id))
	}
	return ids, nil
}

// ---- Item ----

func (s *StateDB) GetItem(collection string, itemID uint64) (*core.Item, error) {
	var it core.Item
	if err := s.getJSON(prefixItem+orderKey(collection, itemID), &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *StateDB) SetItem(item *core.Item) error {
	return s.setJSON(prefixItem+orderKey(item.Collection, item.ItemID), item)
}

// ---- Order book ----

func (s *StateDB) GetOrder(collection string, itemID uint64) (*core.Order, error) {
	var o core.Order
	if err := s.orders().get(orderKey(collection, itemID), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *StateDB) OrderAt(index uint64) (*core.Order, error) {
	var o core.Order
	if err := s.orders().at(index, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *StateDB) OrderCount() (uint64, error) { return s.orders().len() }

func (s *StateDB) PutOrder(o *core.Order) error {
	return s.orders().put(orderKey(o.Collection, o.ItemID), o)
}

func (s *StateDB) RemoveOrder(collection string, itemID uint64) error {
	return s.orders().remove(orderKey(collection, itemID))
}

// ---- Signing pools ----

func (s *StateDB) GetAgreement(pool core.SigningPool, creator string) (*core.SigningAgreement, error) {
	var a core.SigningAgreement
	if err := s.pool(pool).get(creator, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *StateDB) AgreementAt(pool core.SigningPool, index uint64) (*core.SigningAgreement, error) {
	var a core.SigningAgreement
	if err := s.pool(pool).at(index, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *StateDB) AgreementCount(pool core.SigningPool) (uint64, error) {
	return s.pool(pool).len()
}

func (s *StateDB) PutAgreement(pool core.SigningPool, a *core.SigningAgreement) error {
	return s.pool(pool).put(a.Creator, a)
}

func (s *StateDB) RemoveAgreement(pool core.SigningPool, creator string) error {
	return s.pool(pool).remove(creator)
}

// ---- Popularity / leaderboard ----

func (s *StateDB) GetPopularity(collection string) (*core.PopularityRecord, error) {
	var r core.PopularityRecord
	err := s.getJSON(prefixPopularity+collection, &r)
	if errors.Is(err, core.ErrNotFound) {
		return &core.PopularityRecord{Collection: collection}, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *StateDB) SetPopularity(r *core.PopularityRecord) error {
	return s.setJSON(prefixPopularity+r.Collection, r)
}

func (s *StateDB) GetLeaderboard() ([]core.LeaderboardEntry, error) {
	var entries []core.LeaderboardEntry
	err := s.getJSON(keyLeaderboard, &entries)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	return entries, err
}

func (s *StateDB) SetLeaderboard(entries []core.LeaderboardEntry) error {
	return s.setJSON(keyLeaderboard, entries)
}

// ---- Treasury ----

func (s *StateDB) GetTreasury() (*core.Treasury, error) {
	var t core.Treasury
	if err := s.getJSON(keyTreasury, &t); err != nil {
		return nil, fmt.Errorf("treasury: %w", err)
	}
	return &t, nil
}

func (s *StateDB) SetTreasury(t *core.Treasury) error {
	return s.setJSON(keyTreasury, t)
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		snap.dirty[k] = bytes.Clone(v)
	}
	for k, v := range s.deleted {
		snap.deleted[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot.
// The snapshot maps are copied so that subsequent writes cannot corrupt them.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		dirty[k] = bytes.Clone(v)
	}
	deleted := make(map[string]bool, len(snap.deleted))
	for k, v := range snap.deleted {
		deleted[k] = v
	}

	s.dirty = dirty
	s.deleted = deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the state root: the hash of the committed digest with
// the write buffer applied. Only buffered keys are read, so the cost follows
// the size of the pending change rather than the size of the state.
func (s *StateDB) ComputeRoot() (string, error) {
	h, err := s.pendingDigest()
	if err != nil {
		return "", err
	}
	return crypto.Hash(h.bytes()), nil
}

// committedDigest loads the persisted digest, rebuilding it from a full scan
// of the state prefixes when the DB has none yet.
func (s *StateDB) committedDigest() (*ltHash, error) {
	raw, err := s.db.Get([]byte(keyStateDigest))
	if err == nil {
		return ltHashFromBytes(raw)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("load state digest: %w", err)
	}

	var h ltHash
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			d, err := entryDigest(string(it.Key()), it.Value())
			if err != nil {
				it.Release()
				return nil, err
			}
			h.add(d)
		}
		err := it.Error()
		it.Release()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", prefix, err)
		}
	}
	return &h, nil
}

// pendingDigest swaps the committed entry for each buffered key with its
// buffered value, or drops it for deletions.
func (s *StateDB) pendingDigest() (*ltHash, error) {
	h, err := s.committedDigest()
	if err != nil {
		return nil, err
	}
	swap := func(key string, val []byte, live bool) error {
		if !isStateKey(key) {
			return nil
		}
		old, err := s.db.Get([]byte(key))
		switch {
		case err == nil:
			d, err := entryDigest(key, old)
			if err != nil {
				return err
			}
			h.sub(d)
		case !errors.Is(err, core.ErrNotFound):
			return err
		}
		if !live {
			return nil
		}
		d, err := entryDigest(key, val)
		if err != nil {
			return err
		}
		h.add(d)
		return nil
	}
	for k, v := range s.dirty {
		if err := swap(k, v, true); err != nil {
			return nil, err
		}
	}
	for k := range s.deleted {
		if err := swap(k, nil, false); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func isStateKey(key string) bool {
	for _, p := range statePrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// Commit atomically flushes the write buffer and the updated state digest
// to the underlying DB via a Batch and then clears the buffer.
func (s *StateDB) Commit() error {
	digest, err := s.pendingDigest()
	if err != nil {
		return fmt.Errorf("state digest: %w", err)
	}
	batch := s.db.NewBatch()
	batch.Set([]byte(keyStateDigest), digest.bytes())
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
