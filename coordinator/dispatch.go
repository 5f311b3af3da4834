package coordinator

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Payload models the body sent to each moderator in a fan-out: either the
// Same body replicated to all moderators (token creation, decryption) or a
// Unique, per-index body (setup). See spec §4.7.
type Payload[T any] struct {
	same   *T
	unique []T
}

// Same returns a Payload that sends v, unchanged, to every moderator.
func Same[T any](v T) Payload[T] {
	return Payload[T]{same: &v}
}

// Unique returns a Payload that sends vs[i] to moderator i. len(vs) must
// equal the moderator count the payload is later dispatched against.
func Unique[T any](vs []T) Payload[T] {
	return Payload[T]{unique: vs}
}

// For returns the body destined for moderator i.
func (p Payload[T]) For(i int) T {
	if p.same != nil {
		return *p.same
	}
	return p.unique[i]
}

// queryModerators issues one call per moderator index in [0, n) concurrently,
// awaits every result, and fails fast: the first error cancels ctx for every
// still-in-flight call and is the only error returned, per spec §5/§7's
// all-or-nothing cancellation semantics. Results are returned in moderator-
// index order regardless of completion order.
func queryModerators[Req, Resp any](ctx context.Context, n int, payload Payload[Req], call func(ctx context.Context, i int, req Req) (Resp, error)) ([]Resp, error) {
	results := make([]Resp, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := range n {
		g.Go(func() error {
			resp, err := call(gctx, i, payload.For(i))
			if err != nil {
				return err
			}
			results[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
