package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tolelom/tolmarket/core"
)

func TestLtHashAddSubInverse(t *testing.T) {
	x, err := entryDigest("acct:a", []byte(`{"balance":1}`))
	require.NoError(t, err)
	y, err := entryDigest("acct:b", []byte(`{"balance":2}`))
	require.NoError(t, err)

	var h ltHash
	h.add(x)
	h.add(y)
	h.sub(x)
	assert.Equal(t, *y, h)

	back, err := ltHashFromBytes(h.bytes())
	require.NoError(t, err)
	assert.Equal(t, h, *back)

	_, err = ltHashFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestEntryDigestBindsKeyAndValueBoundary(t *testing.T) {
	a, err := entryDigest("acct:ab", []byte("c"))
	require.NoError(t, err)
	b, err := entryDigest("acct:a", []byte("bc"))
	require.NoError(t, err)
	assert.NotEqual(t, *a, *b)
}

func TestPersistedDigestMatchesFullScan(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewStateDB(db)
	for i, addr := range []string{"x", "y", "z"} {
		require.NoError(t, s.SetAccount(&core.Account{Address: addr, Balance: uint64(i)}))
	}
	require.NoError(t, s.SetTreasury(core.DefaultTreasury("op")))
	require.NoError(t, s.Commit())
	require.NoError(t, s.SetAccount(&core.Account{Address: "y", Balance: 50}))
	require.NoError(t, s.PutOrder(&core.Order{Seller: "x", Collection: "c", ItemID: 3, Price: 9}))
	require.NoError(t, s.Commit())

	incremental, err := s.ComputeRoot()
	require.NoError(t, err)

	// Drop the digest so the next root is rebuilt from the entries alone.
	require.NoError(t, db.Delete([]byte(keyStateDigest)))
	rebuilt, err := NewStateDB(db).ComputeRoot()
	require.NoError(t, err)
	assert.Equal(t, incremental, rebuilt)
}
