package wallet

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeySealerRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	sealer, err := NewKeySealer(key)
	require.NoError(t, err)

	sealed, err := sealer.Seal("302e020100300506032b657004220420deadbeef")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, sealPrefix))
	assert.NotContains(t, sealed, "deadbeef")

	again, err := sealer.Seal("302e020100300506032b657004220420deadbeef")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")

	plain, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "302e020100300506032b657004220420deadbeef", plain)
}

func TestKeySealerRejectsTampering(t *testing.T) {
	sealer, err := NewKeySealer(make([]byte, 32))
	require.NoError(t, err)

	sealed, err := sealer.Seal("secret")
	require.NoError(t, err)

	other := make([]byte, 32)
	other[0] = 1
	wrong, err := NewKeySealer(other)
	require.NoError(t, err)
	_, err = wrong.Open(sealed)
	assert.Error(t, err)

	_, err = sealer.Open("plaintext-key")
	assert.Error(t, err)
}

func TestParseSealKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(255 - i)
	}

	fromHex, err := ParseSealKey(hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, fromHex)

	fromB64, err := ParseSealKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, fromB64)

	_, err = ParseSealKey("abcd")
	assert.Error(t, err)
}
