// Package transport provides the one production implementation of
// spec §6's wire contract: an [HTTPTransport] that lets a coordinator.Engine
// reach real moderator processes over HTTP/1.1, and a [Server] that binds a
// moderator.Engine to a net/http listener.
//
// Per spec.md §1, the HTTP wiring itself is explicitly out of scope as a
// design problem — "we specify only its message contract" — so this
// package stays a thin, direct translation of coordinator.Transport's four
// methods onto four HTTP endpoints, with no retry, pooling policy, or
// timeout configuration beyond what callers set on the *http.Client /
// *http.Server they supply.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cerberus-project/cerberus/wire"
)

// Addresser maps a 0-based moderator index to the base URL moderator i is
// reachable at.
type Addresser func(i int) string

// DefaultAddresser matches spec §6: moderator i (1-based) is reachable at
// cerberus-moderator-{i}:80.
func DefaultAddresser(i int) string {
	return fmt.Sprintf("http://cerberus-moderator-%d:80", i+1)
}

// HTTPTransport implements coordinator.Transport over HTTP/1.1, framing
// every request and response body with package wire's binary codec.
type HTTPTransport struct {
	Client    *http.Client
	Addresser Addresser
}

// NewHTTPTransport returns an HTTPTransport using client (or
// http.DefaultClient if nil) and DefaultAddresser.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{Client: client, Addresser: DefaultAddresser}
}

func (t *HTTPTransport) addr(i int) string {
	if t.Addresser != nil {
		return t.Addresser(i)
	}
	return DefaultAddresser(i)
}

// do issues a GET request carrying body to moderator i's path, and returns
// the response body. Any non-200 status aborts with an error (spec §6,
// §7): the caller's fan-out treats this the same as a transport failure.
func (t *HTTPTransport) do(ctx context.Context, i int, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.addr(i)+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: moderator %d: building request: %w", i, err)
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: moderator %d: %w", i, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: moderator %d: reading response: %w", i, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transport: moderator %d: %s: %s", i, resp.Status, out)
	}

	return out, nil
}

// Setup implements coordinator.Transport.
func (t *HTTPTransport) Setup(ctx context.Context, i int, req wire.SetupRequest) (wire.SetupResponse, error) {
	body, err := req.MarshalBinary()
	if err != nil {
		return wire.SetupResponse{}, err
	}

	out, err := t.do(ctx, i, "/setup", body)
	if err != nil {
		return wire.SetupResponse{}, err
	}

	var resp wire.SetupResponse
	if err := resp.UnmarshalBinary(out); err != nil {
		return wire.SetupResponse{}, fmt.Errorf("transport: moderator %d: decoding setup response: %w", i, err)
	}

	return resp, nil
}

// Signing implements coordinator.Transport.
func (t *HTTPTransport) Signing(ctx context.Context, i int, req wire.SigningRequest) (wire.SigningResponse, error) {
	body, err := req.MarshalBinary()
	if err != nil {
		return wire.SigningResponse{}, err
	}

	out, err := t.do(ctx, i, "/signing", body)
	if err != nil {
		return wire.SigningResponse{}, err
	}

	var resp wire.SigningResponse
	if err := resp.UnmarshalBinary(out); err != nil {
		return wire.SigningResponse{}, fmt.Errorf("transport: moderator %d: decoding signing response: %w", i, err)
	}

	return resp, nil
}

// Decryption implements coordinator.Transport.
func (t *HTTPTransport) Decryption(ctx context.Context, i int, req wire.DecryptionRequest) (wire.DecryptionResponse, error) {
	body, err := req.MarshalBinary()
	if err != nil {
		return wire.DecryptionResponse{}, err
	}

	out, err := t.do(ctx, i, "/decryption", body)
	if err != nil {
		return wire.DecryptionResponse{}, err
	}

	var resp wire.DecryptionResponse
	if err := resp.UnmarshalBinary(out); err != nil {
		return wire.DecryptionResponse{}, fmt.Errorf("transport: moderator %d: decoding decryption response: %w", i, err)
	}

	return resp, nil
}

// Shutdown implements coordinator.Transport.
func (t *HTTPTransport) Shutdown(ctx context.Context, i int) error {
	_, err := t.do(ctx, i, "/shutdown", nil)
	return err
}
