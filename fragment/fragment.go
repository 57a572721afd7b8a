// Package fragment implements a systematic (k, m) Reed-Solomon-style
// erasure coder over GF(2^8). A Codec splits a byte sequence into k+m
// equal-length fragments of which any k suffice to reconstruct the
// original sequence exactly.
//
// The encode matrix starts as a Vandermonde matrix (row i, column j = i^j
// in GF(2^8)) and is multiplied by the inverse of its top k*k block, so
// its first k rows are the identity; decoding inverts the k*k submatrix
// selected by whichever k fragments are present, via Gaussian
// elimination, and uses the inverse to recover any erased data fragments.
package fragment

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/aquarelle-tech/darkmatter-vault/internal/gf256"
)

// lengthHeaderSize is the size, in bytes, of the big-endian length
// prefix prepended to the input before it is split into fragments.
const lengthHeaderSize = 4

// maxTotalShards is the number of elements in GF(2^8); a codec cannot
// address more distinct row indices than that.
const maxTotalShards = 256

var (
	// ErrInvalidParameters is returned by NewCodec when k or m is
	// non-positive, or when k+m exceeds the field size.
	ErrInvalidParameters = errors.New("fragment: invalid k/m parameters")

	// ErrInsufficientFragments is returned by Decode when fewer than k
	// slots are present.
	ErrInsufficientFragments = errors.New("fragment: insufficient fragments to decode")

	// ErrLengthMismatch is returned by Decode when present fragments
	// differ in size.
	ErrLengthMismatch = errors.New("fragment: present fragments have mismatched lengths")

	// ErrCorruptLength is returned by Decode when the recovered length
	// header is out of range for the reconstructed payload.
	ErrCorruptLength = errors.New("fragment: corrupt length header")

	// ErrMatrixSingular signals an implementation bug: the encode
	// matrix is constructed so that every k*k submatrix is invertible,
	// so this should never be reachable in practice.
	ErrMatrixSingular = errors.New("fragment: encode submatrix is singular")

	// ErrWrongSlotCount is returned when Decode is given a slice whose
	// length does not equal k+m.
	ErrWrongSlotCount = errors.New("fragment: fragment set has the wrong number of slots")
)

// Fragment is one of the k+m equal-length shards produced by Encode.
// Its positional identity (the index of the slot it came from) is not
// carried inside the fragment itself; the caller must preserve it.
type Fragment []byte

// Codec is a (k, m) erasure coder. It is immutable once constructed and
// safe to use concurrently from multiple goroutines: Encode and Decode
// only ever read the encode matrix and allocate their own temporaries.
type Codec struct {
	k, m   int
	matrix [][]byte // (k+m) x k, Vandermonde (r^c) times the inverse of its top k*k block
}

// NewCodec builds a (k, m) codec. k and m must be at least 1 and
// k+m must not exceed 256, the size of GF(2^8).
func NewCodec(k, m int) (*Codec, error) {
	if k < 1 || m < 1 || k+m > maxTotalShards {
		return nil, ErrInvalidParameters
	}

	matrix := make([][]byte, k+m)
	for r := range matrix {
		row := make([]byte, k)
		for c := 0; c < k; c++ {
			row[c] = gf256.Pow(byte(r), c)
		}
		matrix[r] = row
	}

	// Multiply every row by the inverse of the top k*k block, so rows
	// [0, k) become the identity (data fragments are the data itself) while
	// any k rows still form an invertible matrix.
	codec := &Codec{k: k, m: m, matrix: matrix}
	top := make([]int, k)
	for i := range top {
		top[i] = i
	}
	topInv, err := codec.invertSubmatrix(top)
	if err != nil {
		return nil, err
	}
	for r, vrow := range matrix {
		matrix[r] = make([]byte, k)
		for c := 0; c < k; c++ {
			for i := 0; i < k; i++ {
				matrix[r][c] ^= gf256.Mul(vrow[i], topInv[i][c])
			}
		}
	}
	return codec, nil
}

// K returns the number of data shards.
func (c *Codec) K() int { return c.k }

// M returns the number of parity shards.
func (c *Codec) M() int { return c.m }

// Total returns k+m, the number of slots a fragment set must have.
func (c *Codec) Total() int { return c.k + c.m }

// Encode splits data into k+m equal-length fragments; fragments
// [0, k) are data fragments and [k, k+m) are parity fragments.
func (c *Codec) Encode(data []byte) ([]Fragment, error) {
	l := len(data)
	shardLen := ceilDiv(l+lengthHeaderSize, c.k)

	padded := make([]byte, c.k*shardLen)
	binary.BigEndian.PutUint32(padded[0:lengthHeaderSize], uint32(l))
	copy(padded[lengthHeaderSize:], data)

	fragments := make([]Fragment, c.k+c.m)
	for i := 0; i < c.k; i++ {
		fragments[i] = Fragment(padded[i*shardLen : (i+1)*shardLen])
	}

	for p := 0; p < c.m; p++ {
		row := c.matrix[c.k+p]
		parity := make(Fragment, shardLen)
		for i := 0; i < c.k; i++ {
			coeff := row[i]
			if coeff == 0 {
				continue
			}
			data := fragments[i]
			for b := 0; b < shardLen; b++ {
				parity[b] ^= gf256.Mul(coeff, data[b])
			}
		}
		fragments[c.k+p] = parity
	}

	return fragments, nil
}

// Decode reconstructs the original byte sequence from a fragment set.
// frags must have exactly k+m slots; a nil entry marks an erased slot.
// At least k slots must be non-nil, and all non-nil fragments must share
// the same length.
func (c *Codec) Decode(frags []Fragment) ([]byte, error) {
	if len(frags) != c.k+c.m {
		return nil, ErrWrongSlotCount
	}

	present := make([]int, 0, c.k)
	shardLen := -1
	for i, f := range frags {
		if f == nil {
			continue
		}
		if shardLen == -1 {
			shardLen = len(f)
		} else if len(f) != shardLen {
			return nil, ErrLengthMismatch
		}
		present = append(present, i)
		if len(present) == c.k {
			break
		}
	}
	if len(present) < c.k {
		return nil, ErrInsufficientFragments
	}

	// Gather the remaining present indices' lengths for the mismatch check,
	// even the ones we don't end up using as pivots.
	for _, f := range frags {
		if f != nil && len(f) != shardLen {
			return nil, ErrLengthMismatch
		}
	}

	inverse, err := c.invertSubmatrix(present)
	if err != nil {
		return nil, err
	}

	dataFragments := make([]Fragment, c.k)
	for d := 0; d < c.k; d++ {
		if frags[d] != nil {
			dataFragments[d] = frags[d]
			continue
		}
		recon := make(Fragment, shardLen)
		for i, idx := range present {
			coeff := inverse[d][i]
			if coeff == 0 {
				continue
			}
			src := frags[idx]
			for b := 0; b < shardLen; b++ {
				recon[b] ^= gf256.Mul(coeff, src[b])
			}
		}
		dataFragments[d] = recon
	}

	padded := make([]byte, c.k*shardLen)
	for i, f := range dataFragments {
		copy(padded[i*shardLen:], f)
	}

	if len(padded) < lengthHeaderSize {
		return nil, ErrCorruptLength
	}
	l := int(binary.BigEndian.Uint32(padded[0:lengthHeaderSize]))
	if l < 0 || l > len(padded)-lengthHeaderSize {
		return nil, ErrCorruptLength
	}

	return padded[lengthHeaderSize : lengthHeaderSize+l], nil
}

// invertSubmatrix builds the k*k matrix selected by rows in present and
// inverts it over GF(2^8) via Gaussian elimination on [M | I].
func (c *Codec) invertSubmatrix(present []int) ([][]byte, error) {
	k := c.k
	aug := make([][]byte, k)
	for i := 0; i < k; i++ {
		row := make([]byte, 2*k)
		copy(row[0:k], c.matrix[present[i]])
		row[k+i] = 1
		aug[i] = row
	}

	for col := 0; col < k; col++ {
		pivot := -1
		for row := col; row < k; row++ {
			if aug[row][col] != 0 {
				pivot = row
				break
			}
		}
		if pivot == -1 {
			return nil, ErrMatrixSingular
		}
		if pivot != col {
			aug[col], aug[pivot] = aug[pivot], aug[col]
		}

		scale := gf256.Inv(aug[col][col])
		if scale != 1 {
			for c2 := 0; c2 < 2*k; c2++ {
				aug[col][c2] = gf256.Mul(aug[col][c2], scale)
			}
		}

		for row := 0; row < k; row++ {
			if row == col {
				continue
			}
			factor := aug[row][col]
			if factor == 0 {
				continue
			}
			for c2 := 0; c2 < 2*k; c2++ {
				aug[row][c2] ^= gf256.Mul(factor, aug[col][c2])
			}
		}
	}

	inverse := make([][]byte, k)
	for i := 0; i < k; i++ {
		inverse[i] = aug[i][k : 2*k]
	}
	return inverse, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
