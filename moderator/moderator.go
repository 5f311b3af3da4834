// Package moderator implements the moderator-side engine: the per-process,
// single-threaded state machine that holds one participant's FROST signing
// share and ElGamal decryption share, and answers the /setup, /signing,
// /decryption and /shutdown requests (see package wire and package
// transport).
//
// Engine never touches a network socket; transport.Server binds one to an
// Engine. This lets tests drive the state machine directly, the way the
// teacher's own schemes are tested against in-process values rather than
// over a wire.
package moderator

import (
	"crypto/rand"
	"errors"
	"io"
	"sync"

	"github.com/cerberus-project/cerberus/elgamal"
	"github.com/cerberus-project/cerberus/schemes/complex/frost"
	"github.com/cerberus-project/cerberus/token"
	"github.com/cerberus-project/cerberus/wire"
	"github.com/gtank/ristretto255"
)

var (
	// ErrAlreadyConfigured is returned when /setup is called more than once.
	ErrAlreadyConfigured = errors.New("moderator: already configured")

	// ErrNotConfigured is returned when /signing or /decryption is called
	// before /setup.
	ErrNotConfigured = errors.New("moderator: not configured, /setup required first")

	// ErrHalted is returned when any request arrives after /shutdown.
	ErrHalted = errors.New("moderator: halted")

	// ErrBatchSize is returned when a /signing request's item count does
	// not match the configured batch size.
	ErrBatchSize = errors.New("moderator: signing request batch size mismatch")

	// ErrCiphertextMismatch is returned when a /signing request's claimed
	// encryption of a user id does not match what this moderator
	// independently recomputes, for some slot in the batch. Per spec,
	// this fails the whole batch, not just the offending slot.
	ErrCiphertextMismatch = errors.New("moderator: claimed ciphertext does not match recomputed encryption")
)

type state int

const (
	stateUnconfigured state = iota
	stateReady
	stateHalted
)

// Engine is one moderator's signing and decryption participant, plus its
// batch-of-nonces bookkeeping. The zero value is an unconfigured engine
// ready for /setup.
//
// Every exported method takes the engine's single mutex for its entire
// body: the spec's single-threaded moderator loop, realized here as one
// lock instead of an actual single-threaded event loop, so a transport
// that happens to serve requests from multiple goroutines still behaves
// like the one-request-at-a-time model the signing critical section
// requires (see package transport).
type Engine struct {
	mu sync.Mutex

	state state

	domain    string
	signer    frost.Signer
	keyShare  elgamal.KeyShare
	batchSize int
	nonces    []frost.Nonce // current batch, indexed by slot
}

// New returns an unconfigured Engine. domain is the FROST domain-separation
// label shared by the whole deployment.
func New(domain string) *Engine {
	return &Engine{domain: domain}
}

// HandleSetup configures the engine from its share of the FROST and ElGamal
// key material, generates the engine's first nonce batch, and returns the
// corresponding commitments. It MUST be called exactly once, before any
// other Handle* method.
func (e *Engine) HandleSetup(req wire.SetupRequest) (wire.SetupResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == stateHalted {
		return wire.SetupResponse{}, ErrHalted
	}
	if e.state != stateUnconfigured {
		return wire.SetupResponse{}, ErrAlreadyConfigured
	}
	if req.BatchSize == 0 {
		return wire.SetupResponse{}, ErrBatchSize
	}

	e.signer = frost.NewSigner(req.Domain, req.Identifier, req.SigningShare, req.GroupKey)
	e.keyShare = elgamal.KeyShare{
		Identifier:  req.Identifier,
		Secret:      req.ElgamalSecret,
		Public:      ristretto255.NewIdentityElement().ScalarBaseMult(req.ElgamalSecret),
		GroupPublic: elgamal.PublicKey{Y: req.ElgamalGroupPublic},
	}
	e.batchSize = int(req.BatchSize)

	nonces, commitments, err := e.freshBatch()
	if err != nil {
		return wire.SetupResponse{}, err
	}

	e.nonces = nonces
	e.state = stateReady

	return wire.SetupResponse{NonceCommitments: commitments}, nil
}

// HandleSigning verifies and signs every slot in req, atomically consuming
// the current nonce batch and replacing it with a freshly generated one.
// Per spec, a single slot whose claimed ciphertext doesn't match the
// moderator's own recomputation fails the ENTIRE batch: no shares are
// released and the old nonce batch is left untouched.
func (e *Engine) HandleSigning(req wire.SigningRequest) (wire.SigningResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateHalted:
		return wire.SigningResponse{}, ErrHalted
	case stateUnconfigured:
		return wire.SigningResponse{}, ErrNotConfigured
	}

	if len(req.Items) != e.batchSize {
		return wire.SigningResponse{}, ErrBatchSize
	}

	for _, item := range req.Items {
		if err := e.verifyClaim(item); err != nil {
			return wire.SigningResponse{}, err
		}
	}

	shares := make([][]byte, len(req.Items))
	for i, item := range req.Items {
		share, err := e.signer.Sign(e.domain, e.nonces[i], item.Message, item.Commitments)
		if err != nil {
			return wire.SigningResponse{}, err
		}
		shares[i] = share
	}

	nonces, commitments, err := e.freshBatch()
	if err != nil {
		return wire.SigningResponse{}, err
	}
	e.nonces = nonces

	return wire.SigningResponse{SignatureShares: shares, NewNonceCommitments: commitments}, nil
}

// verifyClaim recomputes elgamal.PublicKey.Encrypt(item.UserId, item.Randomness)
// under the moderator's own stored group public key and checks it against
// the x_1 ciphertext embedded in item's token message.
func (e *Engine) verifyClaim(item wire.SigningRequestItem) error {
	var tok token.UnsignedToken
	if err := tok.UnmarshalBinary(item.Message); err != nil {
		return err
	}

	recomputed := e.keyShare.GroupPublic.Encrypt(item.UserId, item.Randomness)

	if !recomputed.Equal(tok.X1) {
		return ErrCiphertextMismatch
	}

	return nil
}

// HandleDecryption returns this moderator's decryption share for req's
// ciphertext. Per spec §9, this is NOT gated on any proof that the
// ciphertext came from a validly signed token — a moderator answers any
// well-formed decryption request. This is a known, deliberately preserved
// gap in the reference protocol, not an oversight here.
func (e *Engine) HandleDecryption(req wire.DecryptionRequest) (wire.DecryptionResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateHalted:
		return wire.DecryptionResponse{}, ErrHalted
	case stateUnconfigured:
		return wire.DecryptionResponse{}, ErrNotConfigured
	}

	return wire.DecryptionResponse{Share: e.keyShare.DecryptionShare(req.X1)}, nil
}

// HandleShutdown halts the engine; every subsequent request fails with
// ErrHalted.
func (e *Engine) HandleShutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = stateHalted
	return nil
}

// freshBatch draws a new batch of commit nonces, one per batch slot, using
// crypto/rand as the hedging source (see frost.Signer.Commit).
func (e *Engine) freshBatch() ([]frost.Nonce, []frost.Commitment, error) {
	nonces := make([]frost.Nonce, e.batchSize)
	commitments := make([]frost.Commitment, e.batchSize)

	for i := range e.batchSize {
		r := make([]byte, 64)
		if _, err := io.ReadFull(rand.Reader, r); err != nil {
			return nil, nil, err
		}

		nonce, commitment := e.signer.Commit(r)
		nonces[i] = nonce
		commitments[i] = commitment
	}

	return nonces, commitments, nil
}
