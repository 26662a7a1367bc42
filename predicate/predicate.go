// Package predicate implements the asynchronous composable predicate
// calculus described in §3 and §4.3 of the gateway spec: a predicate is a
// function from an Exchange to a boolean, produced at most once per call,
// combined via and/or/negate. and/or deliberately do not short-circuit —
// both operands are evaluated, concurrently, and their results are
// combined — mirroring the original Flux.zip-based implementation (see
// AsyncPredicate.java in the Java source this spec was distilled from).
package predicate

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/skipper-gw/gateway/exchange"
)

// AsyncPredicate is a boolean function over an Exchange that may block (on
// I/O, on a remote lookup) and therefore takes a context for cancellation.
// It must produce at most one result per call.
type AsyncPredicate func(ctx context.Context, ex *exchange.Exchange) (bool, error)

// ToAsync lifts a synchronous predicate into an AsyncPredicate, per §4.3:
// toAsync(p) = λx. just(p(x)).
func ToAsync(p func(ex *exchange.Exchange) bool) AsyncPredicate {
	return func(_ context.Context, ex *exchange.Exchange) (bool, error) {
		return p(ex), nil
	}
}

// And evaluates a and b concurrently without short-circuiting and combines
// the results with logical AND. It fails if either operand fails.
func And(a, b AsyncPredicate) AsyncPredicate {
	return func(ctx context.Context, ex *exchange.Exchange) (bool, error) {
		var ra, rb bool

		g := new(errgroup.Group)
		g.Go(func() error {
			var err error
			ra, err = a(ctx, ex)
			return err
		})
		g.Go(func() error {
			var err error
			rb, err = b(ctx, ex)
			return err
		})

		if err := g.Wait(); err != nil {
			return false, err
		}
		return ra && rb, nil
	}
}

// Or is the symmetric counterpart of And: both sides are evaluated, neither
// is skipped even when the other already resolved to true.
func Or(a, b AsyncPredicate) AsyncPredicate {
	return func(ctx context.Context, ex *exchange.Exchange) (bool, error) {
		var ra, rb bool

		g := new(errgroup.Group)
		g.Go(func() error {
			var err error
			ra, err = a(ctx, ex)
			return err
		})
		g.Go(func() error {
			var err error
			rb, err = b(ctx, ex)
			return err
		})

		if err := g.Wait(); err != nil {
			return false, err
		}
		return ra || rb, nil
	}
}

// Negate evaluates a once and returns its logical complement.
func Negate(a AsyncPredicate) AsyncPredicate {
	return func(ctx context.Context, ex *exchange.Exchange) (bool, error) {
		r, err := a(ctx, ex)
		if err != nil {
			return false, err
		}
		return !r, nil
	}
}

// All combines a non-empty slice of predicates with And, left to right, as
// done in route compilation (§4.4): predicate = p0 ∧ p1 ∧ … ∧ pn.
func All(ps ...AsyncPredicate) AsyncPredicate {
	if len(ps) == 0 {
		return ToAsync(func(*exchange.Exchange) bool { return true })
	}
	result := ps[0]
	for _, p := range ps[1:] {
		result = And(result, p)
	}
	return result
}
