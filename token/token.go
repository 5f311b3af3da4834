// Package token implements the moderation token: an encrypted sender
// identity, a timestamp, and a placeholder ephemeral user key, signed by a
// threshold of moderators.
//
// UnsignedToken's byte encoding is canonical and version-stable by design:
// it is the exact message FROST signs and verifies, so the coordinator and
// every moderator must derive byte-identical encodings independently (see
// schemes/complex/frost). Any change to field order or width breaks
// signature compatibility between a version that wrote tokens and one that
// verifies them.
package token

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/cerberus-project/cerberus/elgamal"
)

// Size is the fixed, canonical byte length of an UnsignedToken.
const Size = 8 + 32 + 32 + 32

var (
	// ErrInvalidLength is returned when decoding a byte string of the wrong length.
	ErrInvalidLength = errors.New("token: invalid encoded length")
)

// UnsignedToken carries an encrypted sender identity alongside a timestamp
// and an ephemeral user public key placeholder. PkE has no signing step
// behind it: coordinator.Engine.CreateTokens leaves it as the zero value,
// and it gives the encoding a fixed 32-byte slot for such a key.
type UnsignedToken struct {
	Timestamp int64 // unix seconds
	X1        elgamal.EncryptedUserId
	PkE       [32]byte
}

// SignedToken pairs an UnsignedToken with a FROST signature over its
// canonical encoding, verifiable against the group's FROST public key.
type SignedToken struct {
	Token     UnsignedToken
	Signature []byte
}

// MarshalBinary encodes t into its canonical, fixed-width wire form:
// timestamp (8 bytes, signed LE), C1 (32-byte compressed point), C2 (32
// raw bytes), PkE (32 raw bytes).
func (t UnsignedToken) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, Size)

	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(t.Timestamp))
	out = append(out, ts[:]...)

	out = append(out, t.X1.C1.Bytes()...)
	out = append(out, t.X1.C2[:]...)
	out = append(out, t.PkE[:]...)

	return out, nil
}

// UnmarshalBinary decodes b, which must be exactly Size bytes, into t.
func (t *UnsignedToken) UnmarshalBinary(b []byte) error {
	if len(b) != Size {
		return ErrInvalidLength
	}

	t.Timestamp = int64(binary.LittleEndian.Uint64(b[0:8]))

	c1, err := elgamal.DecodePoint(b[8:40])
	if err != nil {
		return err
	}

	var c2, pkE [32]byte
	copy(c2[:], b[40:72])
	copy(pkE[:], b[72:104])

	t.X1 = elgamal.EncryptedUserId{C1: c1, C2: c2}
	t.PkE = pkE

	return nil
}

// Now is the clock UnsignedToken.Timestamp is stamped from; a var so tests
// can substitute a fixed value.
var Now = func() int64 { return time.Now().Unix() }
