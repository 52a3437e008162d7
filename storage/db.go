package storage

// DB is the generic key-value store interface.
type DB interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewIterator(prefix []byte) Iterator
	NewBatch() Batch
	Close() error
}

// Iterator walks key-value pairs matching a prefix.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// Batch buffers writes that are applied atomically by Write.
type Batch interface {
	Set(key, value []byte)
	Delete(key []byte)
	Reset()
	Write() error
}

// KV is a single key-value pair captured by SliceIterator.
type KV struct{ K, V []byte }

// SliceIterator iterates over pairs collected up front. Backends without a
// native prefix iterator (bolt, in-memory) return one.
type SliceIterator struct {
	pairs []KV
	idx   int
	err   error
}

// NewSliceIterator returns an Iterator positioned before pairs[0].
func NewSliceIterator(pairs []KV) *SliceIterator {
	return &SliceIterator{pairs: pairs, idx: -1}
}

// NewErrIterator returns an empty Iterator whose Error reports err, for
// backends that failed to collect their pairs.
func NewErrIterator(err error) *SliceIterator {
	return &SliceIterator{idx: -1, err: err}
}

func (it *SliceIterator) Next() bool    { it.idx++; return it.idx < len(it.pairs) }
func (it *SliceIterator) Key() []byte   { return it.pairs[it.idx].K }
func (it *SliceIterator) Value() []byte { return it.pairs[it.idx].V }
func (it *SliceIterator) Release()      {}
func (it *SliceIterator) Error() error  { return it.err }
