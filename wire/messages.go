package wire

import (
	"errors"

	"github.com/cerberus-project/cerberus/elgamal"
	"github.com/cerberus-project/cerberus/schemes/complex/frost"
	"github.com/gtank/ristretto255"
)

// ErrBatchSizeMismatch is returned when a SigningResponse's number of
// signature shares differs from its number of new nonce commitments.
var ErrBatchSizeMismatch = errors.New("wire: batch size mismatch")

func encodeCommitment(e *encoder, c frost.Commitment) {
	e.uint16(c.Identifier)
	e.fixed(c.Hiding)
	e.fixed(c.Binding)
}

func decodeCommitment(d *decoder) (frost.Commitment, error) {
	id, err := d.uint16()
	if err != nil {
		return frost.Commitment{}, err
	}
	hiding, err := d.fixed(32)
	if err != nil {
		return frost.Commitment{}, err
	}
	binding, err := d.fixed(32)
	if err != nil {
		return frost.Commitment{}, err
	}
	return frost.Commitment{Identifier: id, Hiding: hiding, Binding: binding}, nil
}

func encodeCommitments(e *encoder, cs []frost.Commitment) {
	e.uint64(uint64(len(cs)))
	for _, c := range cs {
		encodeCommitment(e, c)
	}
}

func decodeCommitments(d *decoder) ([]frost.Commitment, error) {
	n, err := d.uint64()
	if err != nil {
		return nil, err
	}
	out := make([]frost.Commitment, n)
	for i := range out {
		out[i], err = decodeCommitment(d)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SetupRequest is the /setup body sent once to moderator i. Domain is the
// shared FROST domain-separation label; Identifier, SigningShare and
// GroupKey let the moderator reconstruct its frost.Signer via
// frost.NewSigner. ElgamalSecret and ElgamalGroupPublic let it reconstruct
// its elgamal.KeyShare. BatchSize is the size of every nonce batch the
// moderator will be asked to maintain.
type SetupRequest struct {
	Domain             string
	Identifier         uint16
	SigningShare       *ristretto255.Scalar
	GroupKey           *ristretto255.Element
	ElgamalSecret      *ristretto255.Scalar
	ElgamalGroupPublic *ristretto255.Element
	BatchSize          uint64
}

// SetupResponse is the /setup reply: the moderator's first batch of nonce
// commitments, one per batch slot.
type SetupResponse struct {
	NonceCommitments []frost.Commitment
}

func (r SetupRequest) MarshalBinary() ([]byte, error) {
	e := &encoder{}
	e.string(r.Domain)
	e.uint16(r.Identifier)
	e.scalar(r.SigningShare)
	e.point(r.GroupKey)
	e.scalar(r.ElgamalSecret)
	e.point(r.ElgamalGroupPublic)
	e.uint64(r.BatchSize)
	return e.buf, nil
}

func (r *SetupRequest) UnmarshalBinary(b []byte) error {
	d := &decoder{buf: b}

	var err error
	if r.Domain, err = d.string(); err != nil {
		return err
	}
	if r.Identifier, err = d.uint16(); err != nil {
		return err
	}
	if r.SigningShare, err = d.scalar(); err != nil {
		return err
	}
	if r.GroupKey, err = d.point(); err != nil {
		return err
	}
	if r.ElgamalSecret, err = d.scalar(); err != nil {
		return err
	}
	if r.ElgamalGroupPublic, err = d.point(); err != nil {
		return err
	}
	if r.BatchSize, err = d.uint64(); err != nil {
		return err
	}
	return d.done()
}

func (r SetupResponse) MarshalBinary() ([]byte, error) {
	e := &encoder{}
	encodeCommitments(e, r.NonceCommitments)
	return e.buf, nil
}

func (r *SetupResponse) UnmarshalBinary(b []byte) error {
	d := &decoder{buf: b}
	var err error
	if r.NonceCommitments, err = decodeCommitments(d); err != nil {
		return err
	}
	return d.done()
}

// SigningRequestItem is the signing package for one batch slot, plus the
// claims the moderator must verify before releasing a signature share
// (spec §4.5 step 2): that the slot's token really does encrypt UserId
// under Randomness.
type SigningRequestItem struct {
	Commitments []frost.Commitment // one per moderator, full column for this slot
	Message     []byte             // canonical token.UnsignedToken encoding
	Randomness  *ristretto255.Scalar
	UserId      elgamal.UserId
}

// SigningRequest is the /signing body: the same batch, broadcast to every
// moderator.
type SigningRequest struct {
	Items []SigningRequestItem
}

// SigningResponse is the /signing reply: one signature share per slot, and
// the moderator's freshly-generated next nonce batch — produced atomically
// with the signature shares (spec §4.5).
type SigningResponse struct {
	SignatureShares     [][]byte
	NewNonceCommitments []frost.Commitment
}

func (r SigningRequest) MarshalBinary() ([]byte, error) {
	e := &encoder{}
	e.uint64(uint64(len(r.Items)))
	for _, item := range r.Items {
		encodeCommitments(e, item.Commitments)
		e.bytes(item.Message)
		e.scalar(item.Randomness)
		e.fixed(item.UserId[:])
	}
	return e.buf, nil
}

func (r *SigningRequest) UnmarshalBinary(b []byte) error {
	d := &decoder{buf: b}

	n, err := d.uint64()
	if err != nil {
		return err
	}

	items := make([]SigningRequestItem, n)
	for i := range items {
		commitments, err := decodeCommitments(d)
		if err != nil {
			return err
		}
		message, err := d.bytes()
		if err != nil {
			return err
		}
		randomness, err := d.scalar()
		if err != nil {
			return err
		}
		userIdBytes, err := d.fixed(32)
		if err != nil {
			return err
		}

		var userId elgamal.UserId
		copy(userId[:], userIdBytes)

		items[i] = SigningRequestItem{
			Commitments: commitments,
			Message:     message,
			Randomness:  randomness,
			UserId:      userId,
		}
	}

	r.Items = items
	return d.done()
}

func (r SigningResponse) MarshalBinary() ([]byte, error) {
	if len(r.SignatureShares) != len(r.NewNonceCommitments) {
		return nil, ErrBatchSizeMismatch
	}

	e := &encoder{}
	e.uint64(uint64(len(r.SignatureShares)))
	for _, share := range r.SignatureShares {
		e.bytes(share)
	}
	encodeCommitments(e, r.NewNonceCommitments)
	return e.buf, nil
}

func (r *SigningResponse) UnmarshalBinary(b []byte) error {
	d := &decoder{buf: b}

	n, err := d.uint64()
	if err != nil {
		return err
	}

	shares := make([][]byte, n)
	for i := range shares {
		if shares[i], err = d.bytes(); err != nil {
			return err
		}
	}

	commitments, err := decodeCommitments(d)
	if err != nil {
		return err
	}
	if uint64(len(commitments)) != n {
		return ErrBatchSizeMismatch
	}

	r.SignatureShares = shares
	r.NewNonceCommitments = commitments
	return d.done()
}

// DecryptionRequest is the /decryption body: a ciphertext to produce this
// moderator's decryption share for. Per spec §9, this is intentionally NOT
// gated on any proof that the ciphertext came from a signed token.
type DecryptionRequest struct {
	X1 elgamal.EncryptedUserId
}

// DecryptionResponse is the /decryption reply.
type DecryptionResponse struct {
	Share elgamal.DecryptionShare
}

func (r DecryptionRequest) MarshalBinary() ([]byte, error) {
	e := &encoder{}
	e.point(r.X1.C1)
	e.fixed(r.X1.C2[:])
	return e.buf, nil
}

func (r *DecryptionRequest) UnmarshalBinary(b []byte) error {
	d := &decoder{buf: b}

	c1, err := d.point()
	if err != nil {
		return err
	}
	c2, err := d.fixed(32)
	if err != nil {
		return err
	}

	var c2Arr [32]byte
	copy(c2Arr[:], c2)

	r.X1 = elgamal.EncryptedUserId{C1: c1, C2: c2Arr}
	return d.done()
}

func (r DecryptionResponse) MarshalBinary() ([]byte, error) {
	e := &encoder{}
	e.uint16(r.Share.Identifier)
	e.point(r.Share.D)
	return e.buf, nil
}

func (r *DecryptionResponse) UnmarshalBinary(b []byte) error {
	d := &decoder{buf: b}

	id, err := d.uint16()
	if err != nil {
		return err
	}
	point, err := d.point()
	if err != nil {
		return err
	}

	r.Share = elgamal.DecryptionShare{Identifier: id, D: point}
	return d.done()
}
