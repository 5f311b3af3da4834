// Package wire implements the binary message contract moderators and the
// coordinator speak over HTTP: the /setup, /signing, /decryption and
// /shutdown request/response bodies of spec §6.
//
// Every message is a length-prefixed, little-endian binary encoding:
// variable-length byte strings and sequences are preceded by an 8-byte LE
// length; Ristretto255 points and scalars are always their 32-byte
// canonical encoding. The coordinator and every moderator MUST agree on
// this encoding byte-for-byte, independent of this implementation —
// that's what package token's canonical encoding is specifically for.
package wire

import (
	"encoding/binary"
	"errors"

	"github.com/gtank/ristretto255"
)

// ErrTruncated is returned when decoding runs past the end of the input.
var ErrTruncated = errors.New("wire: truncated message")

// encoder appends a binary message incrementally.
type encoder struct {
	buf []byte
}

func (e *encoder) uint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) int64(v int64) {
	e.uint64(uint64(v))
}

// fixed appends b verbatim, with no length prefix. Use only for
// statically-sized fields whose length is implied by the schema.
func (e *encoder) fixed(b []byte) {
	e.buf = append(e.buf, b...)
}

// bytes appends an 8-byte LE length prefix followed by b.
func (e *encoder) bytes(b []byte) {
	e.uint64(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) string(s string) {
	e.bytes([]byte(s))
}

func (e *encoder) scalar(s *ristretto255.Scalar) {
	e.fixed(s.Bytes())
}

func (e *encoder) point(p *ristretto255.Element) {
	e.fixed(p.Bytes())
}

// decoder consumes a binary message incrementally, returning ErrTruncated
// the moment it would read past the end of the input.
type decoder struct {
	buf []byte
}

func (d *decoder) take(n int) ([]byte, error) {
	if len(d.buf) < n {
		return nil, ErrTruncated
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b, nil
}

func (d *decoder) uint16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *decoder) uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *decoder) int64() (int64, error) {
	v, err := d.uint64()
	return int64(v), err
}

func (d *decoder) fixed(n int) ([]byte, error) {
	return d.take(n)
}

func (d *decoder) bytes() ([]byte, error) {
	n, err := d.uint64()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(d.buf)) {
		return nil, ErrTruncated
	}
	return d.take(int(n))
}

func (d *decoder) string() (string, error) {
	b, err := d.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) scalar() (*ristretto255.Scalar, error) {
	b, err := d.fixed(32)
	if err != nil {
		return nil, err
	}
	return ristretto255.NewScalar().SetCanonicalBytes(b)
}

func (d *decoder) point() (*ristretto255.Element, error) {
	b, err := d.fixed(32)
	if err != nil {
		return nil, err
	}
	return ristretto255.NewIdentityElement().SetCanonicalBytes(b)
}

func (d *decoder) done() error {
	if len(d.buf) != 0 {
		return errors.New("wire: trailing bytes after message")
	}
	return nil
}
