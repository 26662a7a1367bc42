// Package eskip implements the route/predicate/filter definition model and
// the textual mini-DSL shortcut form described in §3 and §4.1 of the gateway
// spec. It mirrors the shape of skipper's eskip package (Route/Filter with
// positional Args) adapted to the gateway's PredicateDefinition/
// FilterDefinition split and its "_genkey_N" shortcut-argument convention.
package eskip

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// genKeyPrefix is used to name positionally-parsed shortcut arguments before
// they are bound to a factory's declared field names.
const genKeyPrefix = "_genkey_"

// Arg is one entry of an ordered argument map. Order matters because
// shortcut binding (§4.2) maps position i to a declared field name.
type Arg struct {
	Key   string
	Value string
}

// Args is an ordered map<string,string>, preserving insertion order.
type Args []Arg

// Get returns the value for key and whether it was present.
func (a Args) Get(key string) (string, bool) {
	for _, kv := range a {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Set appends or overwrites the value for key, preserving the position of
// an existing key.
func (a Args) Set(key, value string) Args {
	for i, kv := range a {
		if kv.Key == key {
			a[i].Value = value
			return a
		}
	}
	return append(a, Arg{Key: key, Value: value})
}

// Keys returns the ordered list of keys.
func (a Args) Keys() []string {
	keys := make([]string, len(a))
	for i, kv := range a {
		keys[i] = kv.Key
	}
	return keys
}

// OnlyGenKeys reports whether every key in a follows the "_genkey_N" shape,
// i.e. the args came straight from positional shortcut parsing and have not
// yet been bound to a factory's declared field names.
func (a Args) OnlyGenKeys() bool {
	if len(a) == 0 {
		return false
	}
	for _, kv := range a {
		if !strings.HasPrefix(kv.Key, genKeyPrefix) {
			return false
		}
	}
	return true
}

// PredicateDefinition is the parsed form of a single predicate expression,
// e.g. Path=/api/**.
type PredicateDefinition struct {
	Name string
	Args Args
}

// FilterDefinition is the parsed form of a single filter expression, e.g.
// AddRequestHeader=X-Trace,on.
type FilterDefinition struct {
	Name string
	Args Args
}

// RouteDefinition is the uncompiled, validated route: predicates plus
// filters plus a backend URI, as produced by a DataClient (§6) or by
// parsing the route text form (§4.1).
type RouteDefinition struct {
	ID         string
	URI        string
	Order      int
	Predicates []*PredicateDefinition
	Filters    []*FilterDefinition
}

// Validate enforces the invariants from §3: id defaults to a random UUID,
// predicates must be non-empty, and uri is required.
func (r *RouteDefinition) Validate() error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if len(r.Predicates) == 0 {
		return fmt.Errorf("route %q: at least one predicate is required", r.ID)
	}
	if r.URI == "" {
		return fmt.Errorf("route %q: uri is required", r.ID)
	}
	return nil
}

// splitTrimmed splits s on sep and trims whitespace from each piece. Empty
// pieces, including one produced by a trailing separator, are kept.
func splitTrimmed(s, sep string) []string {
	raw := strings.Split(s, sep)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// parseNameArgs implements the shared "Name=a,b,c" shortcut grammar from
// §4.1: require "=", split once; left side is the name, right side is
// comma-tokenized into positionally-keyed args "_genkey_i".
func parseNameArgs(text string) (string, Args, error) {
	text = strings.TrimSpace(text)
	eq := strings.Index(text, "=")
	if eq < 0 {
		return "", nil, fmt.Errorf("invalid shortcut expression %q: missing '='", text)
	}

	name := strings.TrimSpace(text[:eq])
	if name == "" {
		return "", nil, fmt.Errorf("invalid shortcut expression %q: empty name", text)
	}

	rest := strings.TrimSpace(text[eq+1:])
	var args Args
	if rest != "" {
		for i, v := range splitTrimmed(rest, ",") {
			args = append(args, Arg{Key: fmt.Sprintf("%s%d", genKeyPrefix, i), Value: v})
		}
	}

	return name, args, nil
}

// ParsePredicate parses a single predicate shortcut expression.
func ParsePredicate(text string) (*PredicateDefinition, error) {
	name, args, err := parseNameArgs(text)
	if err != nil {
		return nil, err
	}
	return &PredicateDefinition{Name: name, Args: args}, nil
}

// ParseFilter parses a single filter shortcut expression.
func ParseFilter(text string) (*FilterDefinition, error) {
	name, args, err := parseNameArgs(text)
	if err != nil {
		return nil, err
	}
	return &FilterDefinition{Name: name, Args: args}, nil
}

// predicateBoundary matches a comma that starts a new "Name=" predicate
// shortcut, as opposed to a comma that separates arguments within the
// current predicate's own arg list.
var predicateBoundary = predicateBoundaryRegexp()

// ParseRoute parses the RouteDefinition text form from §4.1:
// "id=uri,pred1,pred2,…". Filters are never part of this text form; callers
// must attach def.Filters structurally after parsing.
func ParseRoute(text string) (*RouteDefinition, error) {
	text = strings.TrimSpace(text)
	eq := strings.Index(text, "=")
	if eq < 0 {
		return nil, errors.New("invalid route expression: missing '='")
	}

	id := strings.TrimSpace(text[:eq])
	rest := strings.TrimSpace(text[eq+1:])
	if rest == "" {
		return nil, errors.New("invalid route expression: missing uri")
	}

	parts := splitPredicateBoundaries(rest, predicateBoundary)
	uri := strings.TrimSpace(parts[0])
	if uri == "" {
		return nil, errors.New("invalid route expression: empty uri")
	}

	def := &RouteDefinition{ID: id, URI: uri}
	for _, pt := range parts[1:] {
		pd, err := ParsePredicate(pt)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", id, err)
		}
		def.Predicates = append(def.Predicates, pd)
	}

	return def, nil
}

// String renders a predicate back to its shortcut text form, used for
// logging and for the round-trip property in §8.
func (p *PredicateDefinition) String() string {
	return formatNameArgs(p.Name, p.Args)
}

// String renders a filter back to its shortcut text form.
func (f *FilterDefinition) String() string {
	return formatNameArgs(f.Name, f.Args)
}

func formatNameArgs(name string, args Args) string {
	if len(args) == 0 {
		return name + "=()"
	}
	vals := make([]string, len(args))
	for i, kv := range args {
		vals[i] = kv.Value
	}
	return name + "=" + strings.Join(vals, ",")
}
