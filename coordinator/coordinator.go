// Package coordinator implements the coordinator-side engine: the
// single-threaded orchestrator that runs the trusted-dealer setup, drives
// batched token creation, and requests threshold decryption, fanning every
// round out to all n moderators and fanning the responses back in (spec
// §4.6, §4.7).
//
// Engine never touches a network socket; it is parameterized by a
// Transport, so tests can drive it against in-process moderator.Engine
// values while transport.HTTPTransport binds the real wire contract for
// production (see package transport).
package coordinator

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/cerberus-project/cerberus/elgamal"
	"github.com/cerberus-project/cerberus/schemes/complex/frost"
	"github.com/cerberus-project/cerberus/token"
	"github.com/cerberus-project/cerberus/wire"
	"github.com/gtank/ristretto255"
)

var (
	// ErrInvalidParameters is returned by Init for an invalid (n, t_sig,
	// t_dec, batch_size) configuration.
	ErrInvalidParameters = errors.New("coordinator: invalid parameters")

	// ErrNotInitialized is returned when CreateTokens, RequestTokenDecryption
	// or ShutdownModerators is called before Init.
	ErrNotInitialized = errors.New("coordinator: not initialized, Init required first")

	// ErrBatchSize is returned when CreateTokens is called with a number of
	// user ids that doesn't match the configured batch size.
	ErrBatchSize = errors.New("coordinator: user id count does not match batch size")

	// ErrInsufficientShares is returned when RequestTokenDecryption doesn't
	// have at least t_dec well-formed decryption shares to work with.
	ErrInsufficientShares = errors.New("coordinator: fewer than the decryption threshold of shares available")
)

// Transport is the coordinator's one outbound collaborator: a single
// implementation reachable by moderator index, speaking the four endpoints
// of spec §6. transport.HTTPTransport is the production implementation;
// tests typically use an in-process fake wrapping moderator.Engine values
// directly.
type Transport interface {
	Setup(ctx context.Context, moderator int, req wire.SetupRequest) (wire.SetupResponse, error)
	Signing(ctx context.Context, moderator int, req wire.SigningRequest) (wire.SigningResponse, error)
	Decryption(ctx context.Context, moderator int, req wire.DecryptionRequest) (wire.DecryptionResponse, error)
	Shutdown(ctx context.Context, moderator int) error
}

// Engine is the coordinator's orchestration state: the group public keys
// from the trusted-dealer setup, and the nonce-commitment matrix that is
// refreshed, atomically, at the end of every CreateTokens call.
//
// The zero value is not usable; construct with New and configure with
// Init.
type Engine struct {
	domain    string
	transport Transport

	initialized              bool
	n, tSig, tDec, batchSize int

	groupKey      *ristretto255.Element // FROST group verifying key
	elgamalPublic elgamal.PublicKey     // threshold ElGamal group public key

	// nonceCommitments[j][i] is moderator j's commitment for slot i of the
	// next batch. Refreshed wholesale after every successful CreateTokens.
	nonceCommitments [][]frost.Commitment
}

// New returns an uninitialized Engine for domain (the FROST/ElGamal domain
// separation label shared by the whole deployment) talking to moderators
// through transport.
func New(domain string, transport Transport) *Engine {
	return &Engine{domain: domain, transport: transport}
}

// Init runs a trusted-dealer key generation for both the FROST signing
// scheme and the threshold ElGamal encryption scheme, then broadcasts each
// moderator's share via /setup (spec §4.6.1). Any moderator's failure
// aborts Init with the first observed error; Engine is left uninitialized.
//
// tSig must be at least 2: spec §4.6.1 only requires 1 <= t_sig <= n, but
// the underlying frost.KeyGen black box (spec §4.4) rejects a
// single-signer threshold outright, since a 1-of-n "threshold" signature
// needs no interpolation at all and isn't a degenerate case FROST itself
// supports. This tightens §4.6.1's precondition to match the signing
// scheme it actually drives, rather than failing deep inside keygen.
func (e *Engine) Init(ctx context.Context, n, tSig, tDec, batchSize int) error {
	if n < 1 || tSig < 2 || tSig > n || tDec < 1 || tDec > n || batchSize < 1 {
		return ErrInvalidParameters
	}

	seed := make([]byte, 64)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return fmt.Errorf("coordinator: reading keygen randomness: %w", err)
	}

	groupKey, signers, _, err := frost.KeyGen(e.domain, n, tSig, seed)
	if err != nil {
		return fmt.Errorf("coordinator: frost keygen: %w", err)
	}

	elgamalPublic, elgamalShares, err := elgamal.GenerateKeyShares(n, tDec, rand.Reader)
	if err != nil {
		return fmt.Errorf("coordinator: elgamal keygen: %w", err)
	}

	requests := make([]wire.SetupRequest, n)
	for i := range n {
		requests[i] = wire.SetupRequest{
			Domain:             e.domain,
			Identifier:         signers[i].Identifier(),
			SigningShare:       signers[i].SigningShare(),
			GroupKey:           groupKey,
			ElgamalSecret:      elgamalShares[i].Secret,
			ElgamalGroupPublic: elgamalPublic.Y,
			BatchSize:          uint64(batchSize),
		}
	}

	responses, err := queryModerators(ctx, n, Unique(requests), e.transport.Setup)
	if err != nil {
		return fmt.Errorf("coordinator: setup: %w", err)
	}

	commitments := make([][]frost.Commitment, n)
	for i, resp := range responses {
		if len(resp.NonceCommitments) != batchSize {
			return fmt.Errorf("coordinator: moderator %d returned %d commitments, want %d", i, len(resp.NonceCommitments), batchSize)
		}
		commitments[i] = resp.NonceCommitments
	}

	e.n = n
	e.tSig = tSig
	e.tDec = tDec
	e.batchSize = batchSize
	e.groupKey = groupKey
	e.elgamalPublic = elgamalPublic
	e.nonceCommitments = commitments
	e.initialized = true

	return nil
}

// CreateTokens encrypts each of userIds under the group ElGamal public key,
// builds one canonical UnsignedToken per slot, and drives a single FROST
// round-2 signing broadcast across all moderators to produce a
// token.SignedToken per slot (spec §4.6.2). On success, every moderator's
// nonce-commitment row is atomically replaced by the fresh batch returned
// alongside its signature shares — never partially, and never before
// aggregation has succeeded for every slot.
func (e *Engine) CreateTokens(ctx context.Context, userIds []elgamal.UserId) ([]token.SignedToken, error) {
	if !e.initialized {
		return nil, ErrNotInitialized
	}
	if len(userIds) != e.batchSize {
		return nil, ErrBatchSize
	}

	items := make([]wire.SigningRequestItem, e.batchSize)
	messages := make([][]byte, e.batchSize)
	tokens := make([]token.UnsignedToken, e.batchSize)
	columns := make([][]frost.Commitment, e.batchSize)

	for i := range e.batchSize {
		r, err := randomScalar()
		if err != nil {
			return nil, fmt.Errorf("coordinator: drawing randomness: %w", err)
		}

		x1 := e.elgamalPublic.Encrypt(userIds[i], r)

		tok := token.UnsignedToken{Timestamp: token.Now(), X1: x1}
		msg, err := tok.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("coordinator: encoding token: %w", err)
		}

		column := make([]frost.Commitment, e.n)
		for j := range e.n {
			column[j] = e.nonceCommitments[j][i]
		}

		tokens[i] = tok
		messages[i] = msg
		columns[i] = column
		items[i] = wire.SigningRequestItem{
			Commitments: column,
			Message:     msg,
			Randomness:  r,
			UserId:      userIds[i],
		}
	}

	req := wire.SigningRequest{Items: items}

	responses, err := queryModerators(ctx, e.n, Same(req), e.transport.Signing)
	if err != nil {
		return nil, fmt.Errorf("coordinator: signing: %w", err)
	}

	signed := make([]token.SignedToken, e.batchSize)
	for i := range e.batchSize {
		shares := make([][]byte, e.n)
		for j, resp := range responses {
			if len(resp.SignatureShares) != e.batchSize {
				return nil, fmt.Errorf("coordinator: moderator %d returned %d signature shares, want %d", j, len(resp.SignatureShares), e.batchSize)
			}
			shares[j] = resp.SignatureShares[i]
		}

		sig, err := frost.Aggregate(e.domain, e.groupKey, messages[i], columns[i], shares)
		if err != nil {
			return nil, fmt.Errorf("coordinator: aggregating slot %d: %w", i, err)
		}

		signed[i] = token.SignedToken{Token: tokens[i], Signature: sig}
	}

	commitments := make([][]frost.Commitment, e.n)
	for j, resp := range responses {
		if len(resp.NewNonceCommitments) != e.batchSize {
			return nil, fmt.Errorf("coordinator: moderator %d returned %d new commitments, want %d", j, len(resp.NewNonceCommitments), e.batchSize)
		}
		commitments[j] = resp.NewNonceCommitments
	}
	e.nonceCommitments = commitments

	return signed, nil
}

// RequestTokenDecryption broadcasts a /decryption request for x1 to every
// moderator and recombines the decryption threshold's worth of responses
// into the original user id (spec §4.6.3). Per spec, the reference takes
// all n responses then slices to t_dec; this does the same rather than
// racing to stop at the first t_dec arrivals.
func (e *Engine) RequestTokenDecryption(ctx context.Context, x1 elgamal.EncryptedUserId) (elgamal.UserId, error) {
	if !e.initialized {
		return elgamal.UserId{}, ErrNotInitialized
	}

	req := wire.DecryptionRequest{X1: x1}

	responses, err := queryModerators(ctx, e.n, Same(req), e.transport.Decryption)
	if err != nil {
		return elgamal.UserId{}, fmt.Errorf("coordinator: decryption: %w", err)
	}

	if len(responses) < e.tDec {
		return elgamal.UserId{}, ErrInsufficientShares
	}

	shares := make([]elgamal.DecryptionShare, e.tDec)
	for i := range e.tDec {
		shares[i] = responses[i].Share
	}

	userId, err := x1.DecryptWithShares(shares)
	if err != nil {
		return elgamal.UserId{}, fmt.Errorf("coordinator: combining shares: %w", err)
	}

	return userId, nil
}

// ShutdownModerators broadcasts /shutdown to every moderator. Success
// requires every moderator to acknowledge; the first failure is returned
// and the rest are discarded, same as every other fan-out (spec §4.6.4).
func (e *Engine) ShutdownModerators(ctx context.Context) error {
	if !e.initialized {
		return ErrNotInitialized
	}

	_, err := queryModerators(ctx, e.n, Same(struct{}{}), func(ctx context.Context, i int, _ struct{}) (struct{}, error) {
		return struct{}{}, e.transport.Shutdown(ctx, i)
	})
	if err != nil {
		return fmt.Errorf("coordinator: shutdown: %w", err)
	}

	return nil
}

// GroupPublicKeys returns the FROST group verifying key and the threshold
// ElGamal group public key established by Init, for callers that need to
// independently verify a SignedToken's signature.
func (e *Engine) GroupPublicKeys() (frostGroupKey *ristretto255.Element, elgamalPublic elgamal.PublicKey) {
	return e.groupKey, e.elgamalPublic
}

func randomScalar() (*ristretto255.Scalar, error) {
	buf := make([]byte, 64)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, err
	}
	return ristretto255.NewScalar().SetUniformBytes(buf)
}
