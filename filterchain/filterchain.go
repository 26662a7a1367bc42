// Package filterchain implements the reentrant, continuation-passing filter
// chain described in §4.7 of the gateway spec. A GatewayFilter is handed the
// remaining Chain and decides whether and when to invoke it — mirroring GatewayFilterChain.filter(exchange) in the Java source this
// spec was distilled from, translated into Go's explicit-error idiom instead
// of a reactive Mono<Void>.
package filterchain

import (
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/skipper-gw/gateway/exchange"
)

// LowestPrecedence is the order value reserved for the terminal HTTP/forward
// routing filter, so it always runs last regardless of how many ordered
// filters a route declares (§4.7, "terminal filter ordering").
const LowestPrecedence = math.MaxInt

// WebsocketPrecedence is one slot above LowestPrecedence, reserved for the
// WebSocket terminal routing filter so it still sorts after every
// user-declared filter but is distinguishable from the HTTP terminal filter
// when both are present in a chain built for inspection.
const WebsocketPrecedence = math.MaxInt - 1

// GatewayFilter is one link in the chain. It receives the exchange and the
// remaining chain and decides whether to call chain.Filter to continue or
// to return early (short-circuit). Per the single-use, non-thread-shared
// Chain contract below, a filter calls chain.Filter zero or one time.
type GatewayFilter func(ex *exchange.Exchange, chain Chain) error

// OrderedFilter pairs a GatewayFilter with its declared order, used to
// stable-sort a route's compiled filter list ascending (§4.7).
type OrderedFilter struct {
	Order  int
	Name   string
	Filter GatewayFilter
}

// Chain is the remaining, not-yet-executed portion of a filter list. A Chain
// value must be used at most once; it is not safe to share across goroutines
// or to retain past the GatewayFilter call that received it.
type Chain interface {
	Filter(ex *exchange.Exchange) error
}

// chain is the default Chain implementation: a slice of filters plus a
// cursor into it.
type chain struct {
	filters []OrderedFilter
	pos     int
	onPanic func(name string, recovered interface{}, stack string)
}

// New builds a Chain from filters already sorted/ready to run, starting at
// the first one. Filters are NOT sorted here; call Sort first if the caller
// assembled them from multiple sources (global defaults + route-specific).
func New(filters []OrderedFilter, onPanic func(name string, recovered interface{}, stack string)) Chain {
	return &chain{filters: filters, onPanic: onPanic}
}

// Sort stable-sorts filters ascending by Order, preserving relative order
// among equal-order entries (e.g. global defaults before route filters when
// both were assigned the same order), per §4.7.
func Sort(filters []OrderedFilter) {
	sort.SliceStable(filters, func(i, j int) bool {
		return filters[i].Order < filters[j].Order
	})
}

// Filter invokes the next filter in the chain, or returns nil if the chain is
// exhausted. A panic inside a filter is recovered, reported via onPanic, and
// converted into an error so the chain unwinds cleanly instead of crashing
// the serving goroutine — mirroring skipper's tryCatch.
func (c *chain) Filter(ex *exchange.Exchange) error {
	if c.pos >= len(c.filters) {
		return nil
	}

	f := c.filters[c.pos]
	rest := &chain{filters: c.filters, pos: c.pos + 1, onPanic: c.onPanic}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				if c.onPanic != nil {
					c.onPanic(f.Name, r, string(buf[:n]))
				}
				err = fmt.Errorf("filter %q panicked: %v", f.Name, r)
			}
		}()
		err = f.Filter(ex, rest)
	}()

	return err
}

// Run is a convenience entry point equivalent to constructing a Chain and
// calling Filter once from position zero.
func Run(filters []OrderedFilter, ex *exchange.Exchange, onPanic func(name string, recovered interface{}, stack string)) error {
	return New(filters, onPanic).Filter(ex)
}
