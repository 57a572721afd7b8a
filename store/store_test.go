package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aquarelle-tech/darkmatter-vault/fragment"
	"github.com/aquarelle-tech/darkmatter-vault/patient"
	"github.com/aquarelle-tech/darkmatter-vault/shamir"
)

func openTestStore(t *testing.T) *VaultStore {
	t.Helper()
	vs, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })
	return vs
}

func TestFragmentRoundTrip(t *testing.T) {
	vs := openTestStore(t)

	require.NoError(t, vs.StoreFragment("rec-1", 0, []byte("shard-zero")))
	require.NoError(t, vs.StoreFragment("rec-1", 1, []byte("shard-one")))

	got, err := vs.GetFragment("rec-1", 0)
	require.NoError(t, err)
	require.Equal(t, []byte("shard-zero"), got)

	_, err = vs.GetFragment("rec-1", 9)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFragmentDeleteSimulatesErasure(t *testing.T) {
	vs := openTestStore(t)
	require.NoError(t, vs.StoreFragment("rec-1", 2, []byte("shard-two")))
	require.NoError(t, vs.DeleteFragment("rec-1", 2))

	_, err := vs.GetFragment("rec-1", 2)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAvailableFragmentsLeavesErasedSlotsNil(t *testing.T) {
	vs := openTestStore(t)
	total := 5
	for i := 0; i < total; i++ {
		if i == 2 {
			continue
		}
		require.NoError(t, vs.StoreFragment("rec-1", i, []byte{byte(i)}))
	}

	frags, err := vs.AvailableFragments("rec-1", total)
	require.NoError(t, err)
	require.Len(t, frags, total)
	require.Nil(t, frags[2])
	require.Equal(t, fragment.Fragment{0}, frags[0])
}

func TestShareRoundTrip(t *testing.T) {
	vs := openTestStore(t)
	splitter, err := shamir.NewSplitter(2, 3)
	require.NoError(t, err)

	shares, err := splitter.Split([]byte("a secret"))
	require.NoError(t, err)

	for _, sh := range shares {
		require.NoError(t, vs.StoreShare("rec-1", sh))
	}

	got, err := vs.GetShare("rec-1", shares[0].X)
	require.NoError(t, err)
	require.Equal(t, shares[0].X, got.X)
	require.Equal(t, 0, shares[0].Y.Cmp(got.Y))

	available, err := vs.AvailableShares("rec-1", 3)
	require.NoError(t, err)
	require.Len(t, available, 3)
}

func TestAvailableSharesSkipsMissing(t *testing.T) {
	vs := openTestStore(t)
	splitter, err := shamir.NewSplitter(2, 4)
	require.NoError(t, err)
	shares, err := splitter.Split([]byte("another secret"))
	require.NoError(t, err)

	for i, sh := range shares {
		if i == 1 {
			continue // simulate a lost share
		}
		require.NoError(t, vs.StoreShare("rec-2", sh))
	}

	available, err := vs.AvailableShares("rec-2", 4)
	require.NoError(t, err)
	require.Len(t, available, 3)
}

func TestSecretLengthRoundTrip(t *testing.T) {
	vs := openTestStore(t)
	require.NoError(t, vs.StoreSecretLength("rec-1", 32))

	got, err := vs.SecretLength("rec-1")
	require.NoError(t, err)
	require.Equal(t, 32, got)
}

func TestNonceRoundTrip(t *testing.T) {
	vs := openTestStore(t)
	nonce := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	require.NoError(t, vs.StoreNonce("rec-1", nonce))

	got, err := vs.Nonce("rec-1")
	require.NoError(t, err)
	require.Equal(t, nonce, got)
}

func TestAuditLogOrdering(t *testing.T) {
	vs := openTestStore(t)
	base := int64(1000)
	for i, op := range []string{"protect", "corrupt", "recover"} {
		require.NoError(t, vs.AppendAuditEvent(AuditEvent{
			RecordID:    "rec-1",
			Operation:   op,
			TimestampNS: base + int64(i),
		}))
	}

	events, err := vs.AuditLog("rec-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, "protect", events[0].Operation)
	require.Equal(t, "corrupt", events[1].Operation)
	require.Equal(t, "recover", events[2].Operation)
}

func TestPatientRoundTrip(t *testing.T) {
	vs := openTestStore(t)
	record := patient.Record{
		ID:   uuid.New(),
		Name: "Jane Doe",
		MRN:  "MRN-0001",
	}
	require.NoError(t, vs.StorePatient(record))

	got, err := vs.GetPatient(record.ID.String())
	require.NoError(t, err)
	require.Equal(t, record.Name, got.Name)
	require.Equal(t, record.MRN, got.MRN)
}
