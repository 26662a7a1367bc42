package builtin

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/skipper-gw/gateway/eskip"
	"github.com/skipper-gw/gateway/exchange"
	"github.com/skipper-gw/gateway/filterchain"
	"github.com/skipper-gw/gateway/gwerror"
	"github.com/skipper-gw/gateway/headers"
	"github.com/skipper-gw/gateway/ratelimit"
)

// rewritePathFactory builds the RewritePath filter: rewrites the request
// path by applying a regexp substitution, mirroring Spring Cloud Gateway's
// RewritePathGatewayFilterFactory.
type rewritePathFactory struct{ simpleFactory }

// NewRewritePathFactory returns the RewritePath filter factory. Shortcut
// form: RewritePath=/api/(?P<segment>.*),/${segment}.
func NewRewritePathFactory() *rewritePathFactory {
	return &rewritePathFactory{simpleFactory{name: "RewritePath", order: []string{"regexp", "replacement"}}}
}

func (f *rewritePathFactory) NewFilter(args eskip.Args) (interface{}, error) {
	pattern, _ := args.Get("regexp")
	replacement, _ := args.Get("replacement")
	if pattern == "" && len(args) > 0 {
		pattern = args[0].Value
	}
	if replacement == "" && len(args) > 1 {
		replacement = args[1].Value
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	var gf filterchain.GatewayFilter = func(ex *exchange.Exchange, chain filterchain.Chain) error {
		u := ex.RequestURL()
		if u != nil {
			rewritten := *u
			rewritten.Path = re.ReplaceAllString(u.Path, replacement)
			ex.SetRequestURL(&rewritten)
		}
		return chain.Filter(ex)
	}
	return gf, nil
}

// prefixPathFactory builds the PrefixPath filter: prepends a fixed prefix to
// the request path.
type prefixPathFactory struct{ simpleFactory }

// NewPrefixPathFactory returns the PrefixPath filter factory. Shortcut form:
// PrefixPath=/api.
func NewPrefixPathFactory() *prefixPathFactory {
	return &prefixPathFactory{simpleFactory{name: "PrefixPath", order: []string{"prefix"}}}
}

func (f *prefixPathFactory) NewFilter(args eskip.Args) (interface{}, error) {
	prefix, _ := args.Get("prefix")
	if prefix == "" && len(args) > 0 {
		prefix = args[0].Value
	}

	var gf filterchain.GatewayFilter = func(ex *exchange.Exchange, chain filterchain.Chain) error {
		u := ex.RequestURL()
		if u != nil {
			rewritten := *u
			rewritten.Path = joinPath(prefix, u.Path)
			ex.SetRequestURL(&rewritten)
		}
		return chain.Filter(ex)
	}
	return gf, nil
}

// addRequestHeaderFactory builds the AddRequestHeader filter.
type addRequestHeaderFactory struct{ simpleFactory }

// NewAddRequestHeaderFactory returns the AddRequestHeader filter factory.
// Shortcut form: AddRequestHeader=X-Trace,on.
func NewAddRequestHeaderFactory() *addRequestHeaderFactory {
	return &addRequestHeaderFactory{simpleFactory{name: "AddRequestHeader", order: []string{"name", "value"}}}
}

func (f *addRequestHeaderFactory) NewFilter(args eskip.Args) (interface{}, error) {
	name, _ := args.Get("name")
	value, _ := args.Get("value")
	if name == "" && len(args) > 0 {
		name = args[0].Value
	}
	if value == "" && len(args) > 1 {
		value = args[1].Value
	}

	hf := headers.AddRequestHeader(name, value)

	var gf filterchain.GatewayFilter = func(ex *exchange.Exchange, chain filterchain.Chain) error {
		hf(ex.Request().Header, ex, headers.Request)
		return chain.Filter(ex)
	}
	return gf, nil
}

// KeyResolver resolves the rate-limit key for an exchange, e.g. client IP,
// a header value, or an authenticated principal name (§4.10 step 1).
type KeyResolver func(ex *exchange.Exchange) string

// HeaderKeyResolver resolves the rate-limit key from a named request header.
func HeaderKeyResolver(name string) KeyResolver {
	return func(ex *exchange.Exchange) string {
		return ex.Request().Header.Get(name)
	}
}

// RemoteAddrKeyResolver resolves the rate-limit key from the client's
// network address.
func RemoteAddrKeyResolver() KeyResolver {
	return func(ex *exchange.Exchange) string {
		return ex.Request().RemoteAddr
	}
}

// requestRateLimiterFactory builds the RequestRateLimiter filter from
// §4.10. It is registered by the wiring code (not self-constructed from
// shortcut args alone) because it needs a shared *ratelimit.Limiter and a
// KeyResolver, neither of which is expressible as a plain string argument.
type requestRateLimiterFactory struct {
	simpleFactory
	limiter            *ratelimit.Limiter
	resolver           KeyResolver
	replenishRate      int
	burstCapacity      int
	denyEmptyKey       bool
	emptyKeyStatusCode int
	deniedStatusCode   int
}

// NewRequestRateLimiterFactory returns the RequestRateLimiter filter
// factory bound to a shared limiter and key resolution strategy.
func NewRequestRateLimiterFactory(limiter *ratelimit.Limiter, resolver KeyResolver, replenishRate, burstCapacity int) *requestRateLimiterFactory {
	return &requestRateLimiterFactory{
		simpleFactory:      simpleFactory{name: "RequestRateLimiter"},
		limiter:            limiter,
		resolver:           resolver,
		replenishRate:      replenishRate,
		burstCapacity:      burstCapacity,
		denyEmptyKey:       true,
		emptyKeyStatusCode: http.StatusForbidden,
		deniedStatusCode:   http.StatusTooManyRequests,
	}
}

func (f *requestRateLimiterFactory) NewFilter(eskip.Args) (interface{}, error) {
	limiter := f.limiter
	resolver := f.resolver
	replenishRate := f.replenishRate
	burstCapacity := f.burstCapacity
	denyEmptyKey := f.denyEmptyKey
	emptyKeyStatusCode := f.emptyKeyStatusCode
	deniedStatusCode := f.deniedStatusCode

	var gf filterchain.GatewayFilter = func(ex *exchange.Exchange, chain filterchain.Chain) error {
		key := resolver(ex)
		if key == "" {
			if denyEmptyKey {
				return gwerror.WithStatus(emptyKeyStatusCode, errEmptyRateLimitKey)
			}
			return chain.Filter(ex)
		}

		route, _ := ex.Route().(interface{ RouteID() string })
		routeID := "default"
		if route != nil {
			routeID = route.RouteID()
		}

		result := limiter.IsAllowed(ex.Request().Context(), routeID, key, replenishRate, burstCapacity)

		w := ex.ResponseWriter()
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.TokensLeft, 10))
		w.Header().Set("X-RateLimit-Replenish-Rate", strconv.Itoa(replenishRate))
		w.Header().Set("X-RateLimit-Burst-Capacity", strconv.Itoa(burstCapacity))

		if !result.Allowed {
			return gwerror.WithStatus(deniedStatusCode, errRateLimited)
		}

		return chain.Filter(ex)
	}
	return gf, nil
}

type rateLimitError string

func (e rateLimitError) Error() string { return string(e) }

const (
	errEmptyRateLimitKey = rateLimitError("rate limit key resolved to empty string")
	errRateLimited       = rateLimitError("rate limit exceeded")
)
