// Package cipher is the thin symmetric-cipher collaborator the
// specification treats as external to the two core engines: it supplies
// an opaque ciphertext byte sequence and a separately stored nonce, and
// nothing more. fragment and shamir never import this package.
package cipher

import (
	"crypto/rand"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the size, in bytes, of the symmetric key fed to
// shamir.Splitter.Split.
const KeySize = chacha20poly1305.KeySize

// GenerateKey returns a fresh random key suitable for Seal/Open.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "generate cipher key")
	}
	return key, nil
}

// Seal encrypts plaintext under key, returning the ciphertext and the
// nonce used. The nonce must be stored alongside the ciphertext; it is
// not secret.
func Seal(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, errors.Wrap(err, "construct aead")
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, errors.Wrap(err, "generate nonce")
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Open decrypts ciphertext under key using the given nonce.
func Open(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errors.Wrap(err, "construct aead")
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt ciphertext")
	}
	return plaintext, nil
}
