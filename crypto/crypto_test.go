package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPairIdentity(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.Len(t, pub.Hex(), 64)
	assert.Equal(t, pub.Hex(), priv.Public().Hex())
	assert.True(t, IsIdentity(pub.Hex()))
	assert.False(t, IsIdentity("engine"))
	assert.False(t, IsIdentity("abcd"))
}

func TestIdentityIsCanonical(t *testing.T) {
	_, pub, err := GenerateKeyPair()
	require.NoError(t, err)
	id := pub.Hex()
	// Force at least one letter so the upper-case form differs.
	id = "a" + id[1:]

	upper := strings.ToUpper(id)
	mixed := strings.ToUpper(id[:1]) + id[1:]
	for _, s := range []string{upper, mixed} {
		assert.False(t, IsIdentity(s), s)
		_, err := PubKeyFromHex(s)
		assert.Error(t, err, s)
	}
	assert.True(t, IsIdentity(id))
}

func TestSignVerify(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)

	sig := Sign(priv, []byte("listing"))
	assert.NoError(t, Verify(pub, []byte("listing"), sig))
	assert.ErrorIs(t, Verify(pub, []byte("tampered"), sig), ErrBadSignature)
	assert.Error(t, Verify(pub, []byte("listing"), "zz"))
}

func TestHashDeterministic(t *testing.T) {
	assert.Equal(t, Hash([]byte("a")), Hash([]byte("a")))
	assert.NotEqual(t, Hash([]byte("a")), Hash([]byte("b")))
	assert.Len(t, Hash(nil), 64)
}
