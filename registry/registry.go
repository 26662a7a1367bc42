// Package registry implements the named factory registries described in
// §4.2 ("Factories") of the gateway spec: two parallel, name-keyed
// registries — predicates and filters — each producing a runtime value from
// a typed, positionally-shortcut-bound argument list.
//
// Go has no reflection-based "class name minus suffix" convention the way
// the Java original derives a factory's name from its type
// (FooRoutePredicateFactory -> "Foo"); instead every factory explicitly
// declares its Name(). The rest of the normalization algorithm — positional
// "_genkey_i" binding via ShortcutFieldOrder, and the "#{...}" expression
// marker — is implemented exactly as specified.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/skipper-gw/gateway/eskip"
	"github.com/skipper-gw/gateway/exchange"
	"github.com/skipper-gw/gateway/predicate"
)

// ExpressionEvaluator evaluates a "#{...}" expression value against an
// exchange's attributes, kept behind an interface per §9 so it can be
// stubbed in tests. The default evaluator used by both registries when none
// is given is NoopExpressionEvaluator (below), which rejects every
// expression.
type ExpressionEvaluator interface {
	Evaluate(expr string, ex *exchange.Exchange) (string, error)
}

// NoopExpressionEvaluator rejects every expression; used when a deployment
// has no need for "#{...}" values.
type NoopExpressionEvaluator struct{}

func (NoopExpressionEvaluator) Evaluate(expr string, _ *exchange.Exchange) (string, error) {
	return "", fmt.Errorf("expression evaluation not configured: %s", expr)
}

// Factory is the shared shape of predicate and filter factories: a name plus
// the positional-argument metadata used to bind "_genkey_i" shortcut args to
// named fields (§4.2).
type Factory interface {
	// Name is the registry key, e.g. "Path" or "RewritePath".
	Name() string

	// ShortcutFieldOrder lists the declared field names in positional
	// order, used to rewrite "_genkey_i" -> ShortcutFieldPrefix+field.
	// A nil/empty slice means the factory does not support positional
	// binding and normalization leaves "_genkey_i" keys untouched.
	ShortcutFieldOrder() []string

	// ShortcutFieldPrefix is prepended to the field name during
	// binding; usually empty.
	ShortcutFieldPrefix() string
}

// PredicateFactory builds an AsyncPredicate from normalized args.
type PredicateFactory interface {
	Factory
	NewPredicate(args eskip.Args) (predicate.AsyncPredicate, error)
}

// FilterFactory builds a GatewayFilter from normalized args. The return type
// is interface{} here to avoid an import cycle with the filterchain package;
// FilterRegistry below re-exposes it typed.
type FilterFactory interface {
	Factory
	NewFilter(args eskip.Args) (interface{}, error)
}

// normalize implements the §4.2 algorithm up to (but not including) binding
// onto a typed config object, which callers perform themselves by reading
// named/positional values off the returned Args.
func normalize(f Factory, args eskip.Args, eval ExpressionEvaluator, ex *exchange.Exchange) (eskip.Args, error) {
	bound := args

	if order := f.ShortcutFieldOrder(); len(order) > 0 && bound.OnlyGenKeys() {
		rewritten := make(eskip.Args, 0, len(bound))
		for i, kv := range bound {
			if i >= len(order) {
				return nil, fmt.Errorf("%s: too many positional arguments", f.Name())
			}
			rewritten = append(rewritten, eskip.Arg{
				Key:   f.ShortcutFieldPrefix() + order[i],
				Value: kv.Value,
			})
		}
		bound = rewritten
	}

	evaluated := make(eskip.Args, len(bound))
	for i, kv := range bound {
		v := kv.Value
		if strings.HasPrefix(v, "#{") && strings.HasSuffix(v, "}") {
			expr := strings.TrimSuffix(strings.TrimPrefix(v, "#{"), "}")
			resolved, err := eval.Evaluate(expr, ex)
			if err != nil {
				return nil, fmt.Errorf("%s: expression %q: %w", f.Name(), v, err)
			}
			v = resolved
		}
		evaluated[i] = eskip.Arg{Key: kv.Key, Value: v}
	}

	return evaluated, nil
}

// PredicateRegistry is the name-keyed registry of predicate factories,
// built once at boot and frozen thereafter (§9 "Global state").
type PredicateRegistry struct {
	mu        sync.RWMutex
	factories map[string]PredicateFactory
	eval      ExpressionEvaluator
}

// NewPredicateRegistry creates an empty registry. Use NoopExpressionEvaluator
// unless "#{...}" shortcut values are needed.
func NewPredicateRegistry(eval ExpressionEvaluator) *PredicateRegistry {
	if eval == nil {
		eval = NoopExpressionEvaluator{}
	}
	return &PredicateRegistry{factories: make(map[string]PredicateFactory), eval: eval}
}

// Register adds a factory. Registering the same name twice is a programmer
// error and panics, matching the "built once at boot, immutable thereafter"
// contract in §9.
func (r *PredicateRegistry) Register(f PredicateFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[f.Name()]; exists {
		panic(fmt.Sprintf("predicate factory already registered: %s", f.Name()))
	}
	r.factories[f.Name()] = f
}

// Lookup binds def.Args against the named factory and builds the predicate.
// A missing factory is a fatal configuration error, per §4.4.
func (r *PredicateRegistry) Lookup(def *eskip.PredicateDefinition, ex *exchange.Exchange) (predicate.AsyncPredicate, error) {
	r.mu.RLock()
	f, ok := r.factories[def.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("predicate factory not found: %s", def.Name)
	}

	args, err := normalize(f, def.Args, r.eval, ex)
	if err != nil {
		return nil, err
	}

	return f.NewPredicate(args)
}

// FilterRegistry is the name-keyed registry of filter factories.
type FilterRegistry struct {
	mu        sync.RWMutex
	factories map[string]FilterFactory
	eval      ExpressionEvaluator
}

// NewFilterRegistry creates an empty registry.
func NewFilterRegistry(eval ExpressionEvaluator) *FilterRegistry {
	if eval == nil {
		eval = NoopExpressionEvaluator{}
	}
	return &FilterRegistry{factories: make(map[string]FilterFactory), eval: eval}
}

// Register adds a factory, panicking on a duplicate name (see
// PredicateRegistry.Register).
func (r *FilterRegistry) Register(f FilterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[f.Name()]; exists {
		panic(fmt.Sprintf("filter factory already registered: %s", f.Name()))
	}
	r.factories[f.Name()] = f
}

// Lookup binds def.Args against the named factory and builds the filter.
func (r *FilterRegistry) Lookup(def *eskip.FilterDefinition, ex *exchange.Exchange) (interface{}, error) {
	r.mu.RLock()
	f, ok := r.factories[def.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("filter factory not found: %s", def.Name)
	}

	args, err := normalize(f, def.Args, r.eval, ex)
	if err != nil {
		return nil, err
	}

	return f.NewFilter(args)
}
