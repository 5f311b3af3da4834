// Package shamir implements Shamir secret sharing and Lagrange interpolation
// over the Ristretto255 scalar field, parameterised by (n, t).
//
// Identifiers are 1-based uint16 values, matching the convention used by
// [github.com/cerberus-project/cerberus/schemes/complex/frost]. The package
// underlies threshold ElGamal key shares (package elgamal); FROST computes
// its own Lagrange coefficients internally and does not use this package.
package shamir

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/gtank/ristretto255"
)

var (
	// ErrInvalidParameters is returned for invalid (n, t) or malformed share sets.
	ErrInvalidParameters = errors.New("shamir: invalid parameters")

	// ErrExponentOverflow is returned by Split when evaluating the sharing
	// polynomial would overflow a uint64 exponentiation x^k, with x an
	// identifier up to n and k up to t-1. That happens only once x^k reaches
	// 2^64: the first case is n = 256 with t = 9 (256^8 = 2^64).
	ErrExponentOverflow = errors.New("shamir: exponent overflow")

	// ErrDuplicateIdentifier is returned when a share set contains the same
	// identifier twice.
	ErrDuplicateIdentifier = errors.New("shamir: duplicate identifier in share set")

	// ErrWrongShareCount is returned when Combine is given no shares.
	ErrWrongShareCount = errors.New("shamir: wrong number of shares")
)

// A Share is a point (Identifier, f(Identifier)) on an unknown, implicit
// polynomial f of degree t-1. Recombining any t distinct shares recovers
// f(0), the shared secret.
type Share struct {
	Identifier uint16
	Value      *ristretto255.Scalar
}

// Split returns n shares of secret, any t of which can be recombined with
// Combine to recover it. It draws f(x) = secret + a_1*x + ... + a_{t-1}*x^(t-1)
// with uniformly random a_j read from rand, and evaluates f at x = 1..n.
//
// rand must be a cryptographically secure source of randomness; it is read
// 64 bytes at a time per coefficient, consistent with
// [ristretto255.Scalar.SetUniformBytes]'s wide-reduction requirement.
func Split(secret *ristretto255.Scalar, n, t int, rand io.Reader) ([]Share, error) {
	if n < 1 || t < 1 || t > n || n > 1<<16-1 {
		return nil, ErrInvalidParameters
	}

	coeffs := make([]*ristretto255.Scalar, t)
	coeffs[0] = secret
	for i := 1; i < t; i++ {
		buf := make([]byte, 64)
		if _, err := io.ReadFull(rand, buf); err != nil {
			return nil, fmt.Errorf("shamir: reading randomness: %w", err)
		}

		a, err := ristretto255.NewScalar().SetUniformBytes(buf)
		if err != nil {
			return nil, fmt.Errorf("shamir: deriving coefficient: %w", err)
		}

		coeffs[i] = a
	}

	shares := make([]Share, n)
	for i := range n {
		id := uint16(i + 1)

		value, err := evaluate(coeffs, id)
		if err != nil {
			return nil, err
		}

		shares[i] = Share{Identifier: id, Value: value}
	}

	return shares, nil
}

// evaluate computes f(x) = sum_k coeffs[k] * x^k, failing if any x^k would
// overflow a uint64 rather than silently wrapping (see ErrExponentOverflow).
func evaluate(coeffs []*ristretto255.Scalar, x uint16) (*ristretto255.Scalar, error) {
	sum := ristretto255.NewScalar()

	for k, a := range coeffs {
		xk, err := checkedPow(uint64(x), uint64(k))
		if err != nil {
			return nil, err
		}

		term := ristretto255.NewScalar().Multiply(a, scalarFromUint64(xk))
		sum.Add(sum, term)
	}

	return sum, nil
}

// checkedPow computes base^exp over uint64 and returns ErrExponentOverflow
// instead of wrapping on overflow. The reference implementation this
// package is grounded on used native u64.pow in one place and
// checked/bigint arithmetic in another (see spec's Open Questions); this
// package always checks.
func checkedPow(base, exp uint64) (uint64, error) {
	result := uint64(1)
	for range exp {
		hi, lo := bits.Mul64(result, base)
		if hi != 0 {
			return 0, ErrExponentOverflow
		}

		result = lo
	}

	return result, nil
}

func scalarFromUint64(x uint64) *ristretto255.Scalar {
	var b [32]byte
	binary.LittleEndian.PutUint64(b[:8], x)

	s, err := ristretto255.NewScalar().SetCanonicalBytes(b[:])
	if err != nil {
		// x < 2^64 is always far below the group order, so this can't fail.
		panic("shamir: impossible canonical encoding failure")
	}

	return s
}

// LagrangeCoefficient computes λ_i = Π_{j∈set, j≠i} j/(j-i) for identifier i,
// which must appear exactly once in set. set's identifiers must be distinct
// and nonzero; its length determines the effective threshold.
func LagrangeCoefficient(i uint16, set []uint16) (*ristretto255.Scalar, error) {
	if i == 0 {
		return nil, ErrInvalidParameters
	}

	found := false
	seen := make(map[uint16]struct{}, len(set))
	for _, j := range set {
		if j == 0 {
			return nil, ErrInvalidParameters
		}
		if _, dup := seen[j]; dup {
			return nil, ErrDuplicateIdentifier
		}
		seen[j] = struct{}{}
		if j == i {
			found = true
		}
	}
	if !found {
		return nil, ErrInvalidParameters
	}

	iScalar := scalarFromUint64(uint64(i))
	num := scalarFromUint64(1)
	den := scalarFromUint64(1)

	for _, j := range set {
		if j == i {
			continue
		}

		jScalar := scalarFromUint64(uint64(j))
		num.Multiply(num, jScalar)

		negI := ristretto255.NewScalar().Negate(iScalar)
		diff := ristretto255.NewScalar().Add(jScalar, negI)
		den.Multiply(den, diff)
	}

	denInv := ristretto255.NewScalar().Invert(den)

	return ristretto255.NewScalar().Multiply(num, denInv), nil
}

// Combine recombines shares (any t of the n produced by a matching Split)
// into the original secret via Lagrange interpolation at x=0. All
// identifiers in shares must be distinct and nonzero.
func Combine(shares []Share) (*ristretto255.Scalar, error) {
	if len(shares) == 0 {
		return nil, ErrWrongShareCount
	}

	ids := make([]uint16, len(shares))
	for k, s := range shares {
		ids[k] = s.Identifier
	}

	sum := ristretto255.NewScalar()
	for _, s := range shares {
		lambda, err := LagrangeCoefficient(s.Identifier, ids)
		if err != nil {
			return nil, err
		}

		term := ristretto255.NewScalar().Multiply(s.Value, lambda)
		sum.Add(sum, term)
	}

	return sum, nil
}
