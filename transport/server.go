package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/cerberus-project/cerberus/moderator"
	"github.com/cerberus-project/cerberus/wire"
)

// Server is the moderator-side http.Handler binding a moderator.Engine to
// the four endpoints of spec §6. Per §5, "an implementation that
// multiplexes requests MUST take an exclusive lock across the entire
// /signing handler"; Server takes that lock around every endpoint, which is
// simplest and still matches the spec's single-request-in-flight model
// (moderator.Engine itself is already safe for concurrent use, but Server's
// own lock additionally serializes request handling end to end).
type Server struct {
	engine *moderator.Engine

	mu       sync.Mutex
	shutdown sync.Once
	done     chan struct{}
}

// NewServer returns a Server wrapping engine.
func NewServer(engine *moderator.Engine) *Server {
	return &Server{engine: engine, done: make(chan struct{})}
}

// Done returns a channel that's closed once /shutdown has been handled, so
// the binary hosting Server knows when to stop serving and exit (spec
// §4.5: "respond 200 then exit the loop").
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.URL.Path {
	case "/setup":
		s.handleSetup(w, r)
	case "/signing":
		s.handleSigning(w, r)
	case "/decryption":
		s.handleDecryption(w, r)
	case "/shutdown":
		s.handleShutdown(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req wire.SetupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.engine.HandleSetup(req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeBody(w, resp)
}

func (s *Server) handleSigning(w http.ResponseWriter, r *http.Request) {
	var req wire.SigningRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.engine.HandleSigning(req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeBody(w, resp)
}

func (s *Server) handleDecryption(w http.ResponseWriter, r *http.Request) {
	var req wire.DecryptionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.engine.HandleDecryption(req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeBody(w, resp)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	err := s.engine.HandleShutdown()
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	s.shutdown.Do(func() { close(s.done) })
}

type binaryUnmarshaler interface {
	UnmarshalBinary([]byte) error
}

func decodeBody(w http.ResponseWriter, r *http.Request, into binaryUnmarshaler) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("reading request body: %v", err), http.StatusBadRequest)
		return false
	}

	if err := into.UnmarshalBinary(body); err != nil {
		http.Error(w, fmt.Sprintf("decoding request body: %v", err), http.StatusBadRequest)
		return false
	}

	return true
}

type binaryMarshaler interface {
	MarshalBinary() ([]byte, error)
}

func writeBody(w http.ResponseWriter, resp binaryMarshaler) {
	body, err := resp.MarshalBinary()
	if err != nil {
		http.Error(w, fmt.Sprintf("encoding response body: %v", err), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// writeError maps an Engine error to an HTTP status per spec §7's error
// taxonomy: protocol-state violations (second /setup, /signing before
// /setup, a halted engine) are client errors; everything else (a
// ciphertext-claim mismatch, a malformed FROST share) is treated as a
// request the moderator could not process, not a client mistake in the
// strictest sense, but still a 4xx so the coordinator's fan-out aborts the
// batch exactly as it would for any other non-200.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, moderator.ErrAlreadyConfigured),
		errors.Is(err, moderator.ErrNotConfigured),
		errors.Is(err, moderator.ErrHalted),
		errors.Is(err, moderator.ErrBatchSize):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, moderator.ErrCiphertextMismatch):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	}
}
