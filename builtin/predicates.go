// Package builtin implements the minimal factory catalogue named in §1 of
// the gateway spec: Path, Host, Method, Header predicates and RewritePath,
// PrefixPath, AddRequestHeader, RequestRateLimiter filters. Each factory
// follows skipper's CreateXxx() Spec pattern (e.g. filters/headerfilter.go,
// filters/builtin) adapted to the registry.PredicateFactory/FilterFactory
// interfaces.
package builtin

import (
	"path"
	"strings"

	"github.com/skipper-gw/gateway/eskip"
	"github.com/skipper-gw/gateway/exchange"
	"github.com/skipper-gw/gateway/predicate"
)

// simpleFactory is the shared Factory implementation for the predicates and
// filters in this package: ShortcutFieldOrder returns the field names each
// constructor declares (empty for RequestRateLimiter), and
// ShortcutFieldPrefix is always empty.
type simpleFactory struct {
	name  string
	order []string
}

func (f simpleFactory) Name() string                { return f.name }
func (f simpleFactory) ShortcutFieldOrder() []string { return f.order }
func (f simpleFactory) ShortcutFieldPrefix() string  { return "" }

// pathFactory builds the Path predicate: matches when the request path
// equals or, if the pattern ends in "/**", is prefixed by the pattern.
type pathFactory struct{ simpleFactory }

// NewPathFactory returns the Path predicate factory. Shortcut form:
// Path=/api/**.
func NewPathFactory() *pathFactory {
	return &pathFactory{simpleFactory{name: "Path", order: []string{"pattern"}}}
}

func (f *pathFactory) NewPredicate(args eskip.Args) (predicate.AsyncPredicate, error) {
	pattern, _ := args.Get("pattern")
	if pattern == "" && len(args) > 0 {
		pattern = args[0].Value
	}

	prefix := strings.TrimSuffix(pattern, "/**")
	isWildcard := strings.HasSuffix(pattern, "/**")

	return predicate.ToAsync(func(ex *exchange.Exchange) bool {
		p := ex.Request().URL.Path
		if isWildcard {
			return p == prefix || strings.HasPrefix(p, prefix+"/")
		}
		return p == pattern
	}), nil
}

// hostFactory builds the Host predicate: matches when the request Host
// header equals the configured value.
type hostFactory struct{ simpleFactory }

// NewHostFactory returns the Host predicate factory. Shortcut form:
// Host=example.org.
func NewHostFactory() *hostFactory {
	return &hostFactory{simpleFactory{name: "Host", order: []string{"host"}}}
}

func (f *hostFactory) NewPredicate(args eskip.Args) (predicate.AsyncPredicate, error) {
	host, _ := args.Get("host")
	if host == "" && len(args) > 0 {
		host = args[0].Value
	}

	return predicate.ToAsync(func(ex *exchange.Exchange) bool {
		reqHost := ex.Request().Host
		if i := strings.IndexByte(reqHost, ':'); i >= 0 {
			reqHost = reqHost[:i]
		}
		return reqHost == host
	}), nil
}

// methodFactory builds the Method predicate: matches on request HTTP method.
type methodFactory struct{ simpleFactory }

// NewMethodFactory returns the Method predicate factory. Shortcut form:
// Method=GET.
func NewMethodFactory() *methodFactory {
	return &methodFactory{simpleFactory{name: "Method", order: []string{"method"}}}
}

func (f *methodFactory) NewPredicate(args eskip.Args) (predicate.AsyncPredicate, error) {
	method, _ := args.Get("method")
	if method == "" && len(args) > 0 {
		method = args[0].Value
	}
	method = strings.ToUpper(method)

	return predicate.ToAsync(func(ex *exchange.Exchange) bool {
		return ex.Request().Method == method
	}), nil
}

// headerFactory builds the Header predicate: matches when a named request
// header carries the given value.
type headerFactory struct{ simpleFactory }

// NewHeaderFactory returns the Header predicate factory. Shortcut form:
// Header=X-Trace,on.
func NewHeaderFactory() *headerFactory {
	return &headerFactory{simpleFactory{name: "Header", order: []string{"name", "value"}}}
}

func (f *headerFactory) NewPredicate(args eskip.Args) (predicate.AsyncPredicate, error) {
	name, _ := args.Get("name")
	value, _ := args.Get("value")
	if name == "" && len(args) > 0 {
		name = args[0].Value
	}
	if value == "" && len(args) > 1 {
		value = args[1].Value
	}

	return predicate.ToAsync(func(ex *exchange.Exchange) bool {
		return ex.Request().Header.Get(name) == value
	}), nil
}

// joinPath concatenates two URL path segments with exactly one slash.
func joinPath(a, b string) string {
	return path.Join(a, b)
}
