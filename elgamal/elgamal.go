// Package elgamal implements threshold ElGamal encryption of 32-byte user
// identifiers over the Ristretto255 group, as used to embed a sender's
// identity in a moderation token (c.f. package token) for later recovery
// upon an abuse report.
//
// Encryption is hash-then-XOR rather than point addition: the live path
// recovers the identity by re-deriving a one-time pad from the shared
// point, never by mapping a UserId to (and from) a curve point. The dead
// UserId<->RistrettoPoint conversion some reference implementations carry
// is deliberately not implemented here.
package elgamal

import (
	"crypto/sha256"
	"errors"
	"io"

	"github.com/cerberus-project/cerberus/internal/mem"
	"github.com/cerberus-project/cerberus/shamir"
	"github.com/gtank/ristretto255"
)

var (
	// ErrInvalidParameters is returned for invalid (n, t) dealer parameters.
	ErrInvalidParameters = errors.New("elgamal: invalid parameters")

	// ErrNoShares is returned when decryption is attempted with zero shares.
	ErrNoShares = errors.New("elgamal: no decryption shares supplied")

	// ErrDuplicateShare is returned when two decryption shares carry the
	// same identifier.
	ErrDuplicateShare = errors.New("elgamal: duplicate share identifier")

	// ErrInvalidEncoding is returned when a compressed point fails to decode.
	ErrInvalidEncoding = errors.New("elgamal: invalid point encoding")
)

// UserId is an opaque 32-byte sender identifier. Equality is byte equality;
// there is no meaningful ordering.
type UserId [32]byte

// PublicKey is the group's public ElGamal key Y = x*G, shared by every
// moderator.
type PublicKey struct {
	Y *ristretto255.Element
}

// KeyShare is one moderator's share of the group's ElGamal private key:
// (Identifier i, Secret = f(i), Public = f(i)*G, GroupPublic = Y). f is the
// secret polynomial underlying the group key, with f(0) = x.
type KeyShare struct {
	Identifier  uint16
	Secret      *ristretto255.Scalar
	Public      *ristretto255.Element
	GroupPublic PublicKey
}

// EncryptedUserId is an ElGamal ciphertext (c1, c2) = (r*G, H(r*Y) XOR userId).
// It is deterministic in (userId, r, Y): re-encrypting the same UserId with
// the same randomness under the same public key reproduces byte-identical
// ciphertexts, which is exactly what lets a moderator re-derive and check a
// claimed encryption during signing (see moderator.Engine).
type EncryptedUserId struct {
	C1 *ristretto255.Element
	C2 [32]byte
}

// Equal reports whether two ciphertexts encode the same (c1, c2) pair.
func (e EncryptedUserId) Equal(other EncryptedUserId) bool {
	return e.C1.Equal(other.C1) == 1 && e.C2 == other.C2
}

// DecryptionShare is one moderator's contribution (i, d_i = sk_i * c1)
// toward threshold-decrypting an EncryptedUserId.
type DecryptionShare struct {
	Identifier uint16
	D          *ristretto255.Element
}

// GenerateKeyShares runs a trusted-dealer key generation for an n-party,
// t-threshold ElGamal scheme: it draws a random group secret x, derives the
// group public key Y = x*G, and splits x into n Shamir shares. rand must be
// a cryptographically secure source of randomness.
func GenerateKeyShares(n, t int, rand io.Reader) (PublicKey, []KeyShare, error) {
	if n < 1 || t < 1 || t > n {
		return PublicKey{}, nil, ErrInvalidParameters
	}

	buf := make([]byte, 64)
	if _, err := io.ReadFull(rand, buf); err != nil {
		return PublicKey{}, nil, err
	}

	x, err := ristretto255.NewScalar().SetUniformBytes(buf)
	if err != nil {
		return PublicKey{}, nil, err
	}

	groupPublic := PublicKey{Y: ristretto255.NewIdentityElement().ScalarBaseMult(x)}

	shares, err := shamir.Split(x, n, t, rand)
	if err != nil {
		return PublicKey{}, nil, err
	}

	keyShares := make([]KeyShare, len(shares))
	for i, s := range shares {
		keyShares[i] = KeyShare{
			Identifier:  s.Identifier,
			Secret:      s.Value,
			Public:      ristretto255.NewIdentityElement().ScalarBaseMult(s.Value),
			GroupPublic: groupPublic,
		}
	}

	return groupPublic, keyShares, nil
}

// Encrypt encrypts userId under the group public key using randomness r,
// returning c1 = r*G, c2 = SHA256(compress(r*Y)) XOR userId.
func (pk PublicKey) Encrypt(userId UserId, r *ristretto255.Scalar) EncryptedUserId {
	c1 := ristretto255.NewIdentityElement().ScalarBaseMult(r)
	shared := ristretto255.NewIdentityElement().ScalarMult(r, pk.Y)

	pad := sha256.Sum256(shared.Bytes())

	c2 := pad
	mem.XORInPlace(c2[:], userId[:])

	return EncryptedUserId{C1: c1, C2: c2}
}

// DecryptionShare computes this moderator's contribution d_i = sk_i * c1
// toward decrypting ct.
func (ks KeyShare) DecryptionShare(ct EncryptedUserId) DecryptionShare {
	return DecryptionShare{
		Identifier: ks.Identifier,
		D:          ristretto255.NewIdentityElement().ScalarMult(ks.Secret, ct.C1),
	}
}

// DecryptWithShares recombines a threshold of decryption shares to recover
// the user ID encrypted in ct. All shares must carry distinct, nonzero
// identifiers; callers are responsible for gathering exactly the
// decryption threshold the deployment was configured with (fewer shares
// silently produce the wrong answer, matching the Lagrange interpolation
// underneath; see shamir.Combine).
func (ct EncryptedUserId) DecryptWithShares(shares []DecryptionShare) (UserId, error) {
	if len(shares) == 0 {
		return UserId{}, ErrNoShares
	}

	ids := make([]uint16, len(shares))
	seen := make(map[uint16]struct{}, len(shares))
	for i, s := range shares {
		if _, dup := seen[s.Identifier]; dup {
			return UserId{}, ErrDuplicateShare
		}
		seen[s.Identifier] = struct{}{}
		ids[i] = s.Identifier
	}

	sum := ristretto255.NewIdentityElement()
	for _, s := range shares {
		lambda, err := shamir.LagrangeCoefficient(s.Identifier, ids)
		if err != nil {
			return UserId{}, err
		}

		weighted := ristretto255.NewIdentityElement().ScalarMult(lambda, s.D)
		sum.Add(sum, weighted)
	}

	pad := sha256.Sum256(sum.Bytes())

	userId := pad
	mem.XORInPlace(userId[:], ct.C2[:])

	return UserId(userId), nil
}

// DecodePoint decodes a compressed 32-byte Ristretto255 point, rejecting
// non-canonical encodings.
func DecodePoint(b []byte) (*ristretto255.Element, error) {
	e, err := ristretto255.NewIdentityElement().SetCanonicalBytes(b)
	if err != nil {
		return nil, ErrInvalidEncoding
	}

	return e, nil
}
