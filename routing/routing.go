// Package routing implements the route locator and routing handler described
// in §4.4, §4.5 and §4.6 of the gateway spec: compiling RouteDefinitions into
// Routes (predicate + ordered filters + target URI), and matching an inbound
// request against the compiled set. The overall shape — a locator producing
// an immutable snapshot consumed by a matching handler — mirrors skipper's
// routing.Routing/matcher split (routing/routing.go, routing/matcher.go),
// adapted to predicate-ordered first-true-wins matching instead of a
// path-prefix lookup tree, since the spec's routes are ordered by an
// explicit integer rather than by path specificity.
package routing

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/skipper-gw/gateway/eskip"
	"github.com/skipper-gw/gateway/exchange"
	"github.com/skipper-gw/gateway/filterchain"
	"github.com/skipper-gw/gateway/predicate"
	"github.com/skipper-gw/gateway/registry"
)

// Route is the compiled form of a RouteDefinition: a ready-to-evaluate
// predicate plus an ordered filter list plus the backend target.
type Route struct {
	ID        string
	URI       *url.URL
	Order     int
	Predicate predicate.AsyncPredicate
	Filters   []filterchain.OrderedFilter
}

// RouteID satisfies the small interface builtin filters use to read the
// matched route's id out of GATEWAY_ROUTE without importing this package.
func (r *Route) RouteID() string { return r.ID }

// Locator compiles RouteDefinitions into Routes using the predicate and
// filter factory registries, and exposes the compiled set as a single
// immutable snapshot, mirroring §4.4 ("Route locator") and §9's note that
// the registries themselves are frozen after boot.
type Locator struct {
	Predicates *registry.PredicateRegistry
	Filters    *registry.FilterRegistry

	// Defaults are default filter definitions applied before each
	// route's own filters, per the "defaults first" rule in §4.4 step 2.
	Defaults []*eskip.FilterDefinition

	// TerminalFilters are the global, registry-independent filters every
	// chain ends in regardless of route-specific configuration: the
	// terminal routing filters and the response writer (§4.6, "the
	// chain is the ordered concatenation globalFilters ∪ route.filters
	// ∪ [responseWriter]"). They are appended, not looked up by name,
	// since they need live dependencies (an *http.Client, a websocket
	// upgrader) that a shortcut-argument factory cannot express.
	TerminalFilters []filterchain.OrderedFilter
}

// Compile turns one RouteDefinition into a Route. Predicate compilation
// conjoins every predicate via predicate.All (§4.4 step 1); filter
// compilation prepends l.Defaults to def.Filters, assigns each filter an
// order of (position+1), and stable-sorts ascending together with the
// terminal filters (§4.4 step 2). A factory cannot supply an order of its
// own; every looked-up filter gets its position-based order.
func (l *Locator) Compile(def *eskip.RouteDefinition) (*Route, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	target, err := url.Parse(def.URI)
	if err != nil {
		return nil, fmt.Errorf("route %q: invalid uri %q: %w", def.ID, def.URI, err)
	}

	preds := make([]predicate.AsyncPredicate, 0, len(def.Predicates))
	for _, pd := range def.Predicates {
		p, err := l.Predicates.Lookup(pd, nil)
		if err != nil {
			return nil, fmt.Errorf("route %q: predicate %q: %w", def.ID, pd.Name, err)
		}
		preds = append(preds, p)
	}
	compiledPredicate := predicate.All(preds...)

	allFilterDefs := make([]*eskip.FilterDefinition, 0, len(l.Defaults)+len(def.Filters))
	allFilterDefs = append(allFilterDefs, l.Defaults...)
	allFilterDefs = append(allFilterDefs, def.Filters...)

	filters := make([]filterchain.OrderedFilter, 0, len(allFilterDefs))
	for i, fd := range allFilterDefs {
		built, err := l.Filters.Lookup(fd, nil)
		if err != nil {
			return nil, fmt.Errorf("route %q: filter %q: %w", def.ID, fd.Name, err)
		}
		gf, ok := built.(filterchain.GatewayFilter)
		if !ok {
			return nil, fmt.Errorf("route %q: filter %q did not produce a GatewayFilter", def.ID, fd.Name)
		}
		filters = append(filters, filterchain.OrderedFilter{
			Order:  i + 1,
			Name:   fd.Name,
			Filter: gf,
		})
	}
	filters = append(filters, copyTerminalFilters(l.TerminalFilters)...)
	filterchain.Sort(filters)

	return &Route{
		ID:        def.ID,
		URI:       target,
		Order:     def.Order,
		Predicate: compiledPredicate,
		Filters:   filters,
	}, nil
}

// copyTerminalFilters returns a fresh slice so each route's filter list owns
// its own backing array and a later stable-sort on one route cannot disturb
// another's.
func copyTerminalFilters(terminal []filterchain.OrderedFilter) []filterchain.OrderedFilter {
	out := make([]filterchain.OrderedFilter, len(terminal))
	copy(out, terminal)
	return out
}

// CompileAll compiles every definition, failing fast on the first error —
// per §4.4, "the locator does not silently drop routes."
func (l *Locator) CompileAll(defs []*eskip.RouteDefinition) ([]*Route, error) {
	routes := make([]*Route, 0, len(defs))
	for _, def := range defs {
		r, err := l.Compile(def)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// Table is an immutable, ascending-order-sorted snapshot of compiled routes,
// ready to be matched against inbound requests.
type Table struct {
	routes []*Route
}

// NewTable sorts routes ascending by Order, with ties broken by original
// definition order (sort.SliceStable preserves the input relative order for
// equal keys), per §4.6: "ties broken by definition order."
func NewTable(routes []*Route) *Table {
	sorted := make([]*Route, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return &Table{routes: sorted}
}

// ErrNoMatch is returned by Match when no route's predicate accepts the
// exchange; callers translate this into a 404 response (§4.6).
var ErrNoMatch = fmt.Errorf("no route matched")

// Match walks the table in ascending order and returns the first Route whose
// predicate evaluates true, per §4.6. Implementations are free to evaluate
// predicates concurrently for latency reduction, but this one evaluates
// sequentially, which the spec explicitly allows ("An implementation that
// evaluates sequentially is conforming"). Per §7, a predicate that fails
// during evaluation does not abort matching: that route is treated as
// non-matching, the failure is logged at debug, and the scan continues.
func (t *Table) Match(ctx context.Context, ex *exchange.Exchange, log *logrus.Logger) (*Route, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	for _, r := range t.routes {
		ok, err := r.Predicate(ctx, ex)
		if err != nil {
			log.Debugf("route %q: predicate evaluation failed, treating as non-matching: %v", r.ID, err)
			continue
		}
		if ok {
			return r, nil
		}
	}
	return nil, ErrNoMatch
}

// Routes returns the ordered snapshot, mainly for diagnostics and tests.
func (t *Table) Routes() []*Route {
	out := make([]*Route, len(t.routes))
	copy(out, t.routes)
	return out
}
