package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skipper-gw/gateway/eskip"
	"github.com/skipper-gw/gateway/exchange"
	"github.com/skipper-gw/gateway/filterchain"
	"github.com/skipper-gw/gateway/predicate"
	"github.com/skipper-gw/gateway/registry"
)

// alwaysMatchFactory is a minimal predicate factory for route-compilation
// tests, independent of the real builtin catalogue.
type alwaysMatchFactory struct{ match bool }

func (f alwaysMatchFactory) Name() string                { return "AlwaysMatch" }
func (f alwaysMatchFactory) ShortcutFieldOrder() []string { return nil }
func (f alwaysMatchFactory) ShortcutFieldPrefix() string  { return "" }
func (f alwaysMatchFactory) NewPredicate(eskip.Args) (predicate.AsyncPredicate, error) {
	return predicate.ToAsync(func(*exchange.Exchange) bool { return f.match }), nil
}

// erroringMatchFactory builds a predicate that always fails evaluation, used
// to exercise Match's "treat as non-matching, keep scanning" contract.
type erroringMatchFactory struct{}

func (f erroringMatchFactory) Name() string                { return "ErroringMatch" }
func (f erroringMatchFactory) ShortcutFieldOrder() []string { return nil }
func (f erroringMatchFactory) ShortcutFieldPrefix() string  { return "" }
func (f erroringMatchFactory) NewPredicate(eskip.Args) (predicate.AsyncPredicate, error) {
	return func(context.Context, *exchange.Exchange) (bool, error) {
		return false, errors.New("boom")
	}, nil
}

type noopFilterFactory struct{ name string }

func (f noopFilterFactory) Name() string                { return f.name }
func (f noopFilterFactory) ShortcutFieldOrder() []string { return nil }
func (f noopFilterFactory) ShortcutFieldPrefix() string  { return "" }
func (f noopFilterFactory) NewFilter(eskip.Args) (interface{}, error) {
	var gf filterchain.GatewayFilter = func(ex *exchange.Exchange, chain filterchain.Chain) error {
		return chain.Filter(ex)
	}
	return gf, nil
}

func newLocator() *Locator {
	preds := registry.NewPredicateRegistry(nil)
	preds.Register(alwaysMatchFactory{match: true})

	filters := registry.NewFilterRegistry(nil)
	filters.Register(noopFilterFactory{name: "Noop"})

	return &Locator{Predicates: preds, Filters: filters}
}

func routeDef(id string, order int) *eskip.RouteDefinition {
	return &eskip.RouteDefinition{
		ID:         id,
		URI:        "https://backend.example.org",
		Order:      order,
		Predicates: []*eskip.PredicateDefinition{{Name: "AlwaysMatch"}},
		Filters:    []*eskip.FilterDefinition{{Name: "Noop"}},
	}
}

func TestCompileBuildsRoute(t *testing.T) {
	l := newLocator()
	r, err := l.Compile(routeDef("r1", 0))
	require.NoError(t, err)
	assert.Equal(t, "r1", r.ID)
	assert.Equal(t, "https", r.URI.Scheme)
	require.Len(t, r.Filters, 1)
}

func TestCompileAppliesDefaultFiltersBeforeRouteFilters(t *testing.T) {
	l := newLocator()
	l.Filters.Register(noopFilterFactory{name: "FromDefault"})
	l.Defaults = []*eskip.FilterDefinition{{Name: "FromDefault"}}

	def := routeDef("r1", 0)
	def.Filters = []*eskip.FilterDefinition{{Name: "Noop"}}

	r, err := l.Compile(def)
	require.NoError(t, err)
	require.Len(t, r.Filters, 2)
	assert.Equal(t, "FromDefault", r.Filters[0].Name, "default filters run ahead of the route's own filters")
	assert.Equal(t, "Noop", r.Filters[1].Name)
}

func TestCompileMissingPredicateFactoryFails(t *testing.T) {
	l := newLocator()
	def := routeDef("r1", 0)
	def.Predicates[0].Name = "DoesNotExist"
	_, err := l.Compile(def)
	assert.Error(t, err)
}

func TestCompileMissingFilterFactoryFails(t *testing.T) {
	l := newLocator()
	def := routeDef("r1", 0)
	def.Filters[0].Name = "DoesNotExist"
	_, err := l.Compile(def)
	assert.Error(t, err)
}

func TestCompileAllFailsFastAndDropsNothingSilently(t *testing.T) {
	l := newLocator()
	good := routeDef("r1", 0)
	bad := routeDef("r2", 1)
	bad.Predicates[0].Name = "DoesNotExist"

	_, err := l.CompileAll([]*eskip.RouteDefinition{good, bad})
	assert.Error(t, err)
}

func TestTableMatchesFirstTrueInOrder(t *testing.T) {
	l := newLocator()
	r1, err := l.Compile(routeDef("low", 5))
	require.NoError(t, err)
	r2, err := l.Compile(routeDef("high", 1))
	require.NoError(t, err)

	table := NewTable([]*Route{r1, r2})
	matched, err := table.Match(context.Background(), exchange.New(nil, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, "high", matched.ID, "lower order value must be tried first")
}

func TestTableNoMatchReturnsErrNoMatch(t *testing.T) {
	preds := registry.NewPredicateRegistry(nil)
	preds.Register(alwaysMatchFactory{match: false})
	filters := registry.NewFilterRegistry(nil)
	l := &Locator{Predicates: preds, Filters: filters}

	def := &eskip.RouteDefinition{
		ID:         "r1",
		URI:        "https://backend.example.org",
		Predicates: []*eskip.PredicateDefinition{{Name: "AlwaysMatch"}},
	}
	r, err := l.Compile(def)
	require.NoError(t, err)

	table := NewTable([]*Route{r})
	_, err = table.Match(context.Background(), exchange.New(nil, nil), nil)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestTableSkipsRouteWhosePredicateErrorsAndKeepsScanning(t *testing.T) {
	preds := registry.NewPredicateRegistry(nil)
	preds.Register(erroringMatchFactory{})
	preds.Register(alwaysMatchFactory{match: true})
	filters := registry.NewFilterRegistry(nil)
	filters.Register(noopFilterFactory{name: "Noop"})
	l := &Locator{Predicates: preds, Filters: filters}

	failing := &eskip.RouteDefinition{
		ID:         "failing",
		URI:        "https://backend.example.org",
		Order:      0,
		Predicates: []*eskip.PredicateDefinition{{Name: "ErroringMatch"}},
		Filters:    []*eskip.FilterDefinition{{Name: "Noop"}},
	}
	ok := &eskip.RouteDefinition{
		ID:         "ok",
		URI:        "https://backend.example.org",
		Order:      1,
		Predicates: []*eskip.PredicateDefinition{{Name: "AlwaysMatch"}},
		Filters:    []*eskip.FilterDefinition{{Name: "Noop"}},
	}

	rFailing, err := l.Compile(failing)
	require.NoError(t, err)
	rOK, err := l.Compile(ok)
	require.NoError(t, err)

	table := NewTable([]*Route{rFailing, rOK})
	matched, err := table.Match(context.Background(), exchange.New(nil, nil), nil)
	require.NoError(t, err, "a later route's success must win despite an earlier route's predicate error")
	assert.Equal(t, "ok", matched.ID)
}

func TestTableTiesBrokenByDefinitionOrder(t *testing.T) {
	l := newLocator()
	first, err := l.Compile(routeDef("first", 1))
	require.NoError(t, err)
	second, err := l.Compile(routeDef("second", 1))
	require.NoError(t, err)

	table := NewTable([]*Route{first, second})
	matched, err := table.Match(context.Background(), exchange.New(nil, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, "first", matched.ID)
}
