package proxy

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/skipper-gw/gateway/exchange"
	"github.com/skipper-gw/gateway/filterchain"
	"github.com/skipper-gw/gateway/gwerror"
)

// ForwardRegistry resolves a "forward" URI's host to an in-process handler,
// used by endpoints that live inside the gateway process itself (health
// checks, admin endpoints) instead of across the network.
type ForwardRegistry struct {
	handlers map[string]http.Handler
}

// NewForwardRegistry builds an empty registry.
func NewForwardRegistry() *ForwardRegistry {
	return &ForwardRegistry{handlers: make(map[string]http.Handler)}
}

// Register associates a forward target (the host component of a
// forward://<name>/... URI) with a local handler.
func (r *ForwardRegistry) Register(name string, h http.Handler) {
	r.handlers[name] = h
}

// NewForwardRoutingFilter builds the ForwardRoutingFilter from §4.8: scheme
// "forward" dispatches to an in-process handler rather than issuing a
// network call.
func NewForwardRoutingFilter(registry *ForwardRegistry) filterchain.GatewayFilter {
	return func(ex *exchange.Exchange, chain filterchain.Chain) error {
		target := ex.RequestURL()
		if ex.AlreadyRouted() || target == nil || target.Scheme != "forward" {
			return chain.Filter(ex)
		}
		ex.MarkAlreadyRouted()

		name := forwardHandlerName(target)
		h, ok := registry.handlers[name]
		if !ok {
			return gwerror.WithStatus(http.StatusBadGateway, errNoForwardHandler(name))
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, ex.Request())
		resp := rec.Result()

		ex.CaptureOriginalResponseContentType(resp.Header.Get("Content-Type"))
		ex.SetClientResponse(resp)

		return chain.Filter(ex)
	}
}

// forwardHandlerName resolves the registry key from a "forward" URI. The
// double-slash form (forward://health/status) parses with the handler name
// in Host; the single-slash form (forward:/local), used in the spec's own
// example, parses with an empty Host and the name as the first path
// component instead, so both must be accepted.
func forwardHandlerName(target *url.URL) string {
	if target.Host != "" {
		return target.Host
	}
	return strings.TrimPrefix(target.Path, "/")
}

type errNoForwardHandler string

func (e errNoForwardHandler) Error() string { return "no forward handler registered for " + string(e) }
