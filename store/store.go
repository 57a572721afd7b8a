// Package store persists fragments, key shares, audit events and patient
// records in a badger key-value database. It is the on-disk-layout
// collaborator the fragment and shamir engines are explicitly not
// responsible for: neither engine package imports this one.
package store

import (
	"encoding/binary"
	"encoding/json"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"

	"github.com/aquarelle-tech/darkmatter-vault/fragment"
	"github.com/aquarelle-tech/darkmatter-vault/patient"
	"github.com/aquarelle-tech/darkmatter-vault/shamir"
)

// Key prefixes identify each kind of record in the datastore, mirroring
// the teacher's fixed-prefix indexing scheme.
const (
	FragmentPrefix = 0x1
	SharePrefix    = 0x2
	AuditPrefix    = 0x3
	PatientPrefix  = 0x4
	MetaPrefix     = 0x5
)

// ErrNotFound wraps badger.ErrKeyNotFound so callers don't need to
// import badger directly.
var ErrNotFound = errors.New("store: key not found")

// AuditEvent records one protect/recover/corrupt operation against a
// record. Events are keyed by their nanosecond timestamp, so they sort
// chronologically.
type AuditEvent struct {
	RecordID    string `json:"recordId"`
	Operation   string `json:"operation"`
	TimestampNS int64  `json:"timestampNs"`
	Detail      string `json:"detail,omitempty"`
}

// VaultStore wraps a single badger database. It adapts the teacher's
// Store type (originally indexing blockchain blocks) to fragments, key
// shares, audit events and patient records.
type VaultStore struct {
	db *badger.DB
}

// Open creates or opens a VaultStore rooted at directory.
func Open(directory string) (*VaultStore, error) {
	options := badger.DefaultOptions(directory)
	options.Truncate = true // avoid partial-write issues on abrupt shutdown

	db, err := badger.Open(options)
	if err != nil {
		return nil, errors.Wrap(err, "open badger database")
	}
	return &VaultStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *VaultStore) Close() error {
	return s.db.Close()
}

func compoundKey(prefix byte, recordID string, index int) []byte {
	key := make([]byte, 1+len(recordID)+8)
	key[0] = prefix
	copy(key[1:], recordID)
	binary.BigEndian.PutUint64(key[1+len(recordID):], uint64(index))
	return key
}

func scalarKey(prefix byte, recordID string) []byte {
	key := make([]byte, 1+len(recordID))
	key[0] = prefix
	copy(key[1:], recordID)
	return key
}

func (s *VaultStore) set(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *VaultStore) get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}

func (s *VaultStore) delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// StoreFragment persists one fragment of a record's erasure-coded
// ciphertext, keyed by its positional slot index.
func (s *VaultStore) StoreFragment(recordID string, index int, data []byte) error {
	return errors.Wrapf(s.set(compoundKey(FragmentPrefix, recordID, index), data),
		"store fragment %d for %s", index, recordID)
}

// GetFragment returns the fragment at index, or ErrNotFound if that slot
// has never been stored or was erased (see DeleteFragment).
func (s *VaultStore) GetFragment(recordID string, index int) ([]byte, error) {
	value, err := s.get(compoundKey(FragmentPrefix, recordID, index))
	if err != nil {
		return nil, errors.Wrapf(err, "get fragment %d for %s", index, recordID)
	}
	return value, nil
}

// DeleteFragment removes a fragment slot, simulating the loss of one
// unit of storage substrate (the "corrupt" demo command).
func (s *VaultStore) DeleteFragment(recordID string, index int) error {
	return errors.Wrapf(s.delete(compoundKey(FragmentPrefix, recordID, index)),
		"delete fragment %d for %s", index, recordID)
}

// StoreShare persists one key share in the reference wire format
// ({shareNumber, shareValue}) named by the specification.
func (s *VaultStore) StoreShare(recordID string, share shamir.Share) error {
	data, err := share.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "marshal share")
	}
	return errors.Wrapf(s.set(compoundKey(SharePrefix, recordID, share.X), data),
		"store share %d for %s", share.X, recordID)
}

// GetShare returns the share with the given x-coordinate for recordID.
func (s *VaultStore) GetShare(recordID string, x int) (shamir.Share, error) {
	value, err := s.get(compoundKey(SharePrefix, recordID, x))
	if err != nil {
		return shamir.Share{}, errors.Wrapf(err, "get share %d for %s", x, recordID)
	}
	var share shamir.Share
	if err := share.UnmarshalJSON(value); err != nil {
		return shamir.Share{}, errors.Wrapf(err, "decode share %d for %s", x, recordID)
	}
	return share, nil
}

// AvailableShares scans x in [1, n] and returns every share present,
// skipping any that have been lost.
func (s *VaultStore) AvailableShares(recordID string, n int) ([]shamir.Share, error) {
	var shares []shamir.Share
	for x := 1; x <= n; x++ {
		share, err := s.GetShare(recordID, x)
		if errors.Cause(err) == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		shares = append(shares, share)
	}
	return shares, nil
}

// AvailableFragments scans index in [0, total) and returns a fragment
// slice sized for fragment.Codec.Decode: present slots hold their bytes,
// missing ones are nil.
func (s *VaultStore) AvailableFragments(recordID string, total int) ([]fragment.Fragment, error) {
	frags := make([]fragment.Fragment, total)
	for i := 0; i < total; i++ {
		data, err := s.GetFragment(recordID, i)
		if errors.Cause(err) == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		frags[i] = fragment.Fragment(data)
	}
	return frags, nil
}

// Params bundles the erasure-coding and secret-sharing parameters a
// record was protected with, so Recover doesn't need them repeated on
// the command line.
type Params struct {
	K, M      int
	Threshold int
	Shares    int
}

// StoreParams persists the parameters a record was protected with.
func (s *VaultStore) StoreParams(recordID string, params Params) error {
	data, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, "marshal params")
	}
	return errors.Wrapf(s.set(scalarKey(MetaPrefix, recordID+":params"), data),
		"store params for %s", recordID)
}

// GetParams returns the parameters previously stored with StoreParams.
func (s *VaultStore) GetParams(recordID string) (Params, error) {
	value, err := s.get(scalarKey(MetaPrefix, recordID+":params"))
	if err != nil {
		return Params{}, errors.Wrapf(err, "get params for %s", recordID)
	}
	var params Params
	if err := json.Unmarshal(value, &params); err != nil {
		return Params{}, errors.Wrapf(err, "decode params for %s", recordID)
	}
	return params, nil
}

// StoreSecretLength records the original key length alongside the
// shares, resolving the leading-zero ambiguity noted in the design
// notes: Reconstruct needs it to left-pad correctly.
func (s *VaultStore) StoreSecretLength(recordID string, length int) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(length))
	return errors.Wrapf(s.set(scalarKey(MetaPrefix, recordID+":secretlen"), buf),
		"store secret length for %s", recordID)
}

// SecretLength returns the length previously stored with
// StoreSecretLength.
func (s *VaultStore) SecretLength(recordID string) (int, error) {
	value, err := s.get(scalarKey(MetaPrefix, recordID+":secretlen"))
	if err != nil {
		return 0, errors.Wrapf(err, "get secret length for %s", recordID)
	}
	return int(binary.BigEndian.Uint64(value)), nil
}

// StorePlaintextLength records the original plaintext length under the
// record's metadata. This package has no getter for it.
func (s *VaultStore) StorePlaintextLength(recordID string, length int) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(length))
	return errors.Wrapf(s.set(scalarKey(MetaPrefix, recordID+":plainlen"), buf),
		"store plaintext length for %s", recordID)
}

// StoreNonce persists the cipher's initialization vector/nonce for a
// record, the "separately stored initialization vector" named in the
// specification's cipher contract.
func (s *VaultStore) StoreNonce(recordID string, nonce []byte) error {
	return errors.Wrapf(s.set(scalarKey(MetaPrefix, recordID+":nonce"), nonce),
		"store nonce for %s", recordID)
}

// Nonce returns the nonce previously stored with StoreNonce.
func (s *VaultStore) Nonce(recordID string) ([]byte, error) {
	value, err := s.get(scalarKey(MetaPrefix, recordID+":nonce"))
	if err != nil {
		return nil, errors.Wrapf(err, "get nonce for %s", recordID)
	}
	return value, nil
}

// AppendAuditEvent records one operation against a record. Events are
// keyed by their nanosecond timestamp so a range scan returns them in
// chronological order, mirroring the teacher's timestamp-indexed block
// lookups.
func (s *VaultStore) AppendAuditEvent(event AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal audit event")
	}
	key := compoundKey(AuditPrefix, event.RecordID, int(event.TimestampNS))
	return errors.Wrap(s.set(key, data), "append audit event")
}

// AuditLog returns every audit event recorded for recordID, in
// timestamp order.
func (s *VaultStore) AuditLog(recordID string) ([]AuditEvent, error) {
	prefix := append([]byte{AuditPrefix}, []byte(recordID)...)
	var events []AuditEvent
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var event AuditEvent
			if err := json.Unmarshal(value, &event); err != nil {
				return err
			}
			if event.RecordID != recordID {
				continue // a longer record id that shares this prefix
			}
			events = append(events, event)
		}
		return nil
	})
	return events, errors.Wrap(err, "read audit log")
}

// StorePatient persists a patient record indexed by its id.
func (s *VaultStore) StorePatient(record patient.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal patient record")
	}
	return errors.Wrap(s.set(scalarKey(PatientPrefix, record.ID.String()), data),
		"store patient record")
}

// GetPatient returns the patient record indexed by id.
func (s *VaultStore) GetPatient(id string) (*patient.Record, error) {
	value, err := s.get(scalarKey(PatientPrefix, id))
	if err != nil {
		return nil, errors.Wrapf(err, "get patient record %s", id)
	}
	var record patient.Record
	if err := json.Unmarshal(value, &record); err != nil {
		return nil, errors.Wrapf(err, "decode patient record %s", id)
	}
	return &record, nil
}
