package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/storage"
)

func openBackends(t *testing.T) map[string]storage.DB {
	t.Helper()
	dir := t.TempDir()

	level, err := storage.NewLevelDB(filepath.Join(dir, "level"))
	require.NoError(t, err)
	t.Cleanup(func() { level.Close() })

	bolt, err := storage.NewBoltDB(filepath.Join(dir, "bolt", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	return map[string]storage.DB{"leveldb": level, "bolt": bolt}
}

func TestBackends_GetSetDelete(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			assert.ErrorIs(t, err, core.ErrNotFound)

			require.NoError(t, db.Set([]byte("k"), []byte("v")))
			v, err := db.Get([]byte("k"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v"), v)

			require.NoError(t, db.Delete([]byte("k")))
			_, err = db.Get([]byte("k"))
			assert.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func TestBackends_BatchAndPrefixIterator(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Set([]byte("p:gone"), []byte("x")))

			b := db.NewBatch()
			b.Set([]byte("p:b"), []byte("2"))
			b.Set([]byte("p:a"), []byte("1"))
			b.Set([]byte("q:a"), []byte("3"))
			b.Delete([]byte("p:gone"))
			require.NoError(t, b.Write())

			it := db.NewIterator([]byte("p:"))
			var keys []string
			for it.Next() {
				keys = append(keys, string(it.Key()))
			}
			require.NoError(t, it.Error())
			it.Release()
			assert.Equal(t, []string{"p:a", "p:b"}, keys)
		})
	}
}

func TestBackends_StateDBRoundTrip(t *testing.T) {
	roots := map[string]string{}
	for name, db := range openBackends(t) {
		s := storage.NewStateDB(db)
		require.NoError(t, s.PutOrder(&core.Order{Seller: "s", Collection: "c", ItemID: 1, Price: 5}))
		require.NoError(t, s.SetAccount(&core.Account{Address: "a", Balance: 7}))
		require.NoError(t, s.Commit())

		o, err := storage.NewStateDB(db).GetOrder("c", 1)
		require.NoError(t, err, name)
		assert.Equal(t, uint64(5), o.Price)
		roots[name] = root(t, s)
	}
	assert.Equal(t, roots["leveldb"], roots["bolt"], "state root is backend independent")
}

func TestBoltIteratorReportsClosedDB(t *testing.T) {
	db, err := storage.NewBoltDB(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("p:a"), []byte("1")))
	require.NoError(t, db.Close())

	it := db.NewIterator([]byte("p:"))
	defer it.Release()
	assert.False(t, it.Next())
	assert.Error(t, it.Error())

	_, err = storage.NewStateDB(db).ComputeRoot()
	assert.Error(t, err, "a closed backend must not yield a root")
}
