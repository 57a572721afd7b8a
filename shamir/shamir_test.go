package shamir

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// S5: T=3, N=5, 32-byte secret. Any 3 of 5 reconstruct; any 2 do not.
func TestScenarioS5(t *testing.T) {
	splitter, err := NewSplitter(3, 5)
	require.NoError(t, err)

	secret := make([]byte, 32)
	_, err = rand.Read(secret)
	require.NoError(t, err)

	shares, err := splitter.Split(secret)
	require.NoError(t, err)
	require.Len(t, shares, 5)

	for _, subset := range [][]int{{0, 1, 2}, {0, 2, 4}, {1, 3, 4}} {
		chosen := make([]Share, len(subset))
		for i, idx := range subset {
			chosen[i] = shares[idx]
		}
		out, err := splitter.Reconstruct(chosen, len(secret))
		require.NoError(t, err)
		require.Equal(t, secret, out)
	}

	_, err = splitter.Reconstruct(shares[:2], len(secret))
	require.ErrorIs(t, err, ErrInsufficientShares)
}

// S6: T=3, N=5, secret = 0x000005, reconstructed value is 5.
func TestScenarioS6SmallSecret(t *testing.T) {
	splitter, err := NewSplitter(3, 5)
	require.NoError(t, err)

	secret := []byte{0x00, 0x00, 0x05}
	shares, err := splitter.Split(secret)
	require.NoError(t, err)

	out, err := splitter.Reconstruct(shares[:3], 0)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5), new(big.Int).SetBytes(out))

	padded, err := splitter.Reconstruct(shares[:3], len(secret))
	require.NoError(t, err)
	require.Equal(t, secret, padded)
}

func TestSplitRejectsSecretTooLarge(t *testing.T) {
	splitter, err := NewSplitter(2, 3)
	require.NoError(t, err)

	tooLarge := new(big.Int).Add(P, big.NewInt(1)).Bytes()
	_, err = splitter.Split(tooLarge)
	require.ErrorIs(t, err, ErrSecretTooLarge)
}

func TestReconstructRejectsDuplicateX(t *testing.T) {
	splitter, err := NewSplitter(2, 4)
	require.NoError(t, err)

	shares, err := splitter.Split([]byte("secret"))
	require.NoError(t, err)

	dup := []Share{shares[0], shares[0]}
	_, err = splitter.Reconstruct(dup, 0)
	require.ErrorIs(t, err, ErrDuplicateX)
}

func TestNewSplitterRejectsInvalidThreshold(t *testing.T) {
	_, err := NewSplitter(1, 5)
	require.ErrorIs(t, err, ErrInvalidThreshold)

	_, err = NewSplitter(6, 5)
	require.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestAnyTSharesReconstruct(t *testing.T) {
	splitter, err := NewSplitter(4, 9)
	require.NoError(t, err)

	secret := make([]byte, 48)
	_, err = rand.Read(secret)
	require.NoError(t, err)

	shares, err := splitter.Split(secret)
	require.NoError(t, err)

	combinations := [][]int{
		{0, 1, 2, 3},
		{5, 6, 7, 8},
		{0, 2, 4, 6},
		{1, 3, 5, 7},
	}
	for _, combo := range combinations {
		chosen := make([]Share, len(combo))
		for i, idx := range combo {
			chosen[i] = shares[idx]
		}
		out, err := splitter.Reconstruct(chosen, len(secret))
		require.NoError(t, err)
		require.Equal(t, secret, out)
	}
}

func TestShareJSONRoundTrip(t *testing.T) {
	splitter, err := NewSplitter(2, 3)
	require.NoError(t, err)

	shares, err := splitter.Split([]byte("hello"))
	require.NoError(t, err)

	for _, sh := range shares {
		data, err := sh.MarshalJSON()
		require.NoError(t, err)

		var out Share
		require.NoError(t, out.UnmarshalJSON(data))
		require.Equal(t, sh.X, out.X)
		require.Equal(t, 0, sh.Y.Cmp(out.Y))
	}
}
