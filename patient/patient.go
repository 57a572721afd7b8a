// Package patient defines the domain model protected by the vault: a
// small JSON record representing the plaintext that gets encrypted and
// fed to the fragment and shamir engines. It carries no engine logic of
// its own, per the specification's framing of the patient domain model
// as an external collaborator.
package patient

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Record is a plaintext patient record. Its JSON form (see Bytes) is the
// kind of payload that gets encrypted and handed to fragment.Codec; the
// demo CLI itself encrypts whatever input file it is given and does not
// use this type.
type Record struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	DateOfBirth string    `json:"dateOfBirth,omitempty"`
	MRN         string    `json:"mrn"`
	Notes       string    `json:"notes,omitempty"`
}

// NewRecord allocates a Record with a fresh random id.
func NewRecord(name, dateOfBirth, mrn, notes string) Record {
	return Record{
		ID:          uuid.New(),
		Name:        name,
		DateOfBirth: dateOfBirth,
		MRN:         mrn,
		Notes:       notes,
	}
}

// Bytes serializes the record to JSON, the plaintext that gets
// encrypted and erasure coded.
func (r Record) Bytes() ([]byte, error) {
	return json.Marshal(r)
}

// FromBytes parses a Record previously produced by Bytes.
func FromBytes(data []byte) (Record, error) {
	var r Record
	err := json.Unmarshal(data, &r)
	return r, err
}
