package patient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordBytesRoundTrip(t *testing.T) {
	record := NewRecord("Jane Doe", "1980-01-01", "MRN-0042", "penicillin allergy")

	data, err := record.Bytes()
	require.NoError(t, err)

	out, err := FromBytes(data)
	require.NoError(t, err)
	require.Equal(t, record, out)
}
