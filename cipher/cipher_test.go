package cipher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	plaintext := []byte("patient record payload")
	ciphertext, nonce, err := Seal(key, plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	out, err := Open(key, nonce, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, out)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	ciphertext, nonce, err := Seal(key, []byte("secret"))
	require.NoError(t, err)
	ciphertext[0] ^= 0xff

	_, err = Open(key, nonce, ciphertext)
	require.Error(t, err)
}
