// Package headers implements the header-filter contract described in §4.8 of
// the gateway spec: a small, directional, order-preserving chain of
// functions that add, remove, or rewrite header values. The shape mirrors
// skipper's RequestHeader/ResponseHeader filter pair (filters/headerfilter.go)
// generalized to a single directional function type instead of two
// Filter.Request/Response methods.
package headers

import (
	"net/http"

	"github.com/skipper-gw/gateway/exchange"
)

// Direction selects which half of the exchange a HeaderFilter applies to.
type Direction int

const (
	// Request filters run against the outbound request headers before
	// the terminal routing filter dials the backend.
	Request Direction = iota
	// Response filters run against the inbound upstream response headers
	// before the response-writer filter commits them to the client.
	Response
)

// HeaderFilter transforms a header set for a given direction. Implementations
// must mutate h in place and return it, so a chain of filters folds over the
// same header set in insertion order.
type HeaderFilter func(h http.Header, ex *exchange.Exchange, dir Direction) http.Header

// Apply folds a list of filters over h in order. Every filter is called
// with dir; each filter decides for itself whether to act on that direction.
func Apply(h http.Header, ex *exchange.Exchange, dir Direction, filters ...HeaderFilter) http.Header {
	for _, f := range filters {
		h = f(h, ex, dir)
	}
	return h
}

// hopByHop lists the header names that must never be forwarded across a
// proxy hop, per RFC 7230 §6.1 and the set removed by net/http's own
// ReverseProxy.
var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// StripHopByHop removes the standard hop-by-hop headers regardless of
// direction. HttpRoutingFilter applies it to the request and the response;
// WebSocketRoutingFilter applies it to the outbound dial request.
func StripHopByHop(h http.Header, _ *exchange.Exchange, _ Direction) http.Header {
	for _, name := range hopByHop {
		h.Del(name)
	}
	return h
}

// AddRequestHeader returns a filter that appends a single header value to
// the request direction only, matching skipper's RequestHeaderName filter.
func AddRequestHeader(key, value string) HeaderFilter {
	return func(h http.Header, _ *exchange.Exchange, dir Direction) http.Header {
		if dir == Request {
			h.Add(key, value)
		}
		return h
	}
}

// AddResponseHeader is the response-direction counterpart of AddRequestHeader.
func AddResponseHeader(key, value string) HeaderFilter {
	return func(h http.Header, _ *exchange.Exchange, dir Direction) http.Header {
		if dir == Response {
			h.Add(key, value)
		}
		return h
	}
}

// StripWebsocketUpgradeRequestHeaders drops the Sec-WebSocket-* negotiation
// headers from the outbound request once the gateway has already consumed
// them to decide on a WebSocket route, matching the upgrade-rewrite step in
// §4.11 (WebSocketRoutingFilter). It leaves Sec-WebSocket-Protocol alone,
// since that one is re-added explicitly by the routing filter after
// negotiating with the backend.
func StripWebsocketUpgradeRequestHeaders(h http.Header, _ *exchange.Exchange, dir Direction) http.Header {
	if dir != Request {
		return h
	}
	h.Del("Sec-WebSocket-Key")
	h.Del("Sec-WebSocket-Version")
	h.Del("Sec-WebSocket-Extensions")
	return h
}
