// Package shamir implements (T, N) threshold secret sharing over the
// prime field Z/PZ, where P is the fixed 521-bit Mersenne prime
// 2^521 - 1. Any T of the N shares produced by Split suffice to
// reconstruct the original secret via Lagrange interpolation; any fewer
// reveal no information about it.
//
// This implementation is pinned to a fixed prime rather than generating
// one per split, so that shares persisted by one version of this package
// remain recoverable by any other: see the field arithmetic note in the
// project's design notes for why the prime cannot be swapped out.
package shamir

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"math/big"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidThreshold is returned by NewSplitter when T < 2 or T > N.
	ErrInvalidThreshold = errors.New("shamir: threshold must satisfy 2 <= T <= N")

	// ErrSecretTooLarge is returned by Split when the secret, interpreted
	// as an unsigned big-endian integer, is not smaller than P.
	ErrSecretTooLarge = errors.New("shamir: secret is not smaller than the field prime")

	// ErrInsufficientShares is returned by Reconstruct when fewer than T
	// shares are supplied.
	ErrInsufficientShares = errors.New("shamir: insufficient shares to reconstruct")

	// ErrDuplicateX is returned by Reconstruct when two shares carry the
	// same x coordinate.
	ErrDuplicateX = errors.New("shamir: duplicate share x-coordinate")

	// ErrInvalidShareX is returned when a share's x coordinate falls
	// outside [1, N].
	ErrInvalidShareX = errors.New("shamir: share x-coordinate out of range")
)

// P is the fixed field prime, 2^521 - 1. It is pinned per the
// specification so that shares remain compatible across versions of
// this package; it must never be changed for an existing deployment.
var P = mersenne521()

func mersenne521() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 521)
	p.Sub(p, big.NewInt(1))
	return p
}

// Share is a single (x, y) point on the hidden polynomial. x identifies
// the share's position in [1, N]; y is the field element evaluated at x.
type Share struct {
	X int
	Y *big.Int
}

// shareWireFormat mirrors the reference on-disk representation named in
// the specification: {shareNumber:int, shareValue:hex_string}. Callers
// that need cross-process persistence may use this shape directly; the
// engine itself never serializes on its own.
type shareWireFormat struct {
	ShareNumber int    `json:"shareNumber"`
	ShareValue  string `json:"shareValue"`
}

// MarshalJSON renders a Share in the reference wire format.
func (s Share) MarshalJSON() ([]byte, error) {
	return json.Marshal(shareWireFormat{
		ShareNumber: s.X,
		ShareValue:  hex.EncodeToString(s.Y.Bytes()),
	})
}

// UnmarshalJSON parses the reference wire format back into a Share.
func (s *Share) UnmarshalJSON(data []byte) error {
	var w shareWireFormat
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Wrap(err, "unmarshal share")
	}
	y, err := hex.DecodeString(w.ShareValue)
	if err != nil {
		return errors.Wrap(err, "decode share value")
	}
	s.X = w.ShareNumber
	s.Y = new(big.Int).SetBytes(y)
	return nil
}

// Splitter is a (T, N) threshold secret splitter. It is immutable once
// constructed and safe for concurrent use: Split and Reconstruct only
// ever read T, N and the pinned prime P.
type Splitter struct {
	t, n int
}

// NewSplitter builds a (T, N) splitter. T and N must satisfy 2 <= T <= N.
func NewSplitter(t, n int) (*Splitter, error) {
	if t < 2 || t > n {
		return nil, ErrInvalidThreshold
	}
	return &Splitter{t: t, n: n}, nil
}

// T returns the reconstruction threshold.
func (s *Splitter) T() int { return s.t }

// N returns the number of shares produced by Split.
func (s *Splitter) N() int { return s.n }

// Split interprets secret as an unsigned big-endian integer and
// produces N shares, T of which are required to reconstruct it.
func (s *Splitter) Split(secret []byte) ([]Share, error) {
	value := new(big.Int).SetBytes(secret)
	if value.Cmp(P) >= 0 {
		return nil, ErrSecretTooLarge
	}

	coefficients := make([]*big.Int, s.t)
	coefficients[0] = value
	for i := 1; i < s.t; i++ {
		c, err := randFieldElement()
		if err != nil {
			return nil, errors.Wrap(err, "sample polynomial coefficient")
		}
		coefficients[i] = c
	}
	defer zeroizeAll(coefficients[1:])

	shares := make([]Share, s.n)
	for x := 1; x <= s.n; x++ {
		shares[x-1] = Share{
			X: x,
			Y: evaluateHorner(coefficients, big.NewInt(int64(x))),
		}
	}
	return shares, nil
}

// Reconstruct recovers the secret from any T of the given shares via
// Lagrange interpolation at zero. If expectedLen is positive, the
// result is left-padded to exactly that many bytes; this resolves the
// leading-zero ambiguity described in the design notes. If expectedLen
// is zero, the minimal big-endian encoding is returned instead.
func (s *Splitter) Reconstruct(shares []Share, expectedLen int) ([]byte, error) {
	if len(shares) < s.t {
		return nil, ErrInsufficientShares
	}

	chosen := shares[:s.t]
	seen := make(map[int]bool, s.t)
	for _, sh := range chosen {
		if sh.X < 1 || sh.X > s.n {
			return nil, ErrInvalidShareX
		}
		if seen[sh.X] {
			return nil, ErrDuplicateX
		}
		seen[sh.X] = true
	}

	secret := lagrangeAtZero(chosen)

	if expectedLen > 0 {
		return leftPad(secret.Bytes(), expectedLen), nil
	}
	return secret.Bytes(), nil
}

// evaluateHorner evaluates the polynomial with the given coefficients
// (a0 + a1*x + ... ) at x, mod P, using Horner's method.
func evaluateHorner(coefficients []*big.Int, x *big.Int) *big.Int {
	result := new(big.Int)
	for i := len(coefficients) - 1; i >= 0; i-- {
		result.Mul(result, x)
		result.Add(result, coefficients[i])
		result.Mod(result, P)
	}
	return result
}

// lagrangeAtZero computes sum_i y_i * L_i(0) mod P for the given shares.
func lagrangeAtZero(shares []Share) *big.Int {
	result := new(big.Int)
	for i, si := range shares {
		xi := big.NewInt(int64(si.X))
		num := big.NewInt(1)
		den := big.NewInt(1)
		for j, sj := range shares {
			if i == j {
				continue
			}
			xj := big.NewInt(int64(sj.X))

			num.Mul(num, new(big.Int).Neg(xj))
			num.Mod(num, P)

			diff := new(big.Int).Sub(xi, xj)
			diff.Mod(diff, P)
			den.Mul(den, diff)
			den.Mod(den, P)
		}
		denInv := new(big.Int).ModInverse(den, P)
		basis := new(big.Int).Mul(num, denInv)
		basis.Mod(basis, P)

		term := new(big.Int).Mul(si.Y, basis)
		term.Mod(term, P)

		result.Add(result, term)
		result.Mod(result, P)
	}
	return result
}

// randFieldElement draws a uniform element of [0, P) using rejection
// sampling over bitLength(P)-bit draws, per the specification.
func randFieldElement() (*big.Int, error) {
	bitLen := P.BitLen()
	byteLen := (bitLen + 7) / 8
	for {
		buf := make([]byte, byteLen)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		// Mask off any bits above bitLen so the draw is uniform over
		// [0, 2^bitLen) rather than [0, 2^(8*byteLen)).
		excess := uint(byteLen*8 - bitLen)
		if excess > 0 {
			buf[0] &= 0xff >> excess
		}
		candidate := new(big.Int).SetBytes(buf)
		if candidate.Cmp(P) < 0 {
			return candidate, nil
		}
	}
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

func zeroizeAll(values []*big.Int) {
	for _, v := range values {
		if v == nil {
			continue
		}
		bits := v.Bits()
		for i := range bits {
			bits[i] = 0
		}
	}
}
