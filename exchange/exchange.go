// Package exchange holds the per-request mutable context that flows through
// the predicate matcher and the filter chain.
package exchange

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// ResponseBuilder is the mutable response placeholder on the exchange. It is
// nil until a filter populates it. The response-writer filter streams
// CLIENT_RESPONSE to the client and records the status it committed in
// StatusCode, which the routing handler checks before writing an error
// response; Header and Body are not read by the response-writer filter.
type ResponseBuilder struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

func newResponseBuilder() *ResponseBuilder {
	return &ResponseBuilder{Header: make(http.Header)}
}

// Exchange is the per-request context carried through predicate evaluation
// and the filter chain. One Exchange is created per inbound HTTP request and
// released when the request completes.
//
// Well-known attributes (§3 of the gateway spec) have explicit typed fields
// so filters don't need to type-assert a generic map for the hot path; the
// Attributes map remains for out-of-core filters and future extensions.
type Exchange struct {
	mu sync.Mutex

	request        *http.Request
	responseWriter http.ResponseWriter
	response       *ResponseBuilder

	// Attributes is the string-keyed extension map described in §3 and
	// §6 ("Attribute contract with out-of-core filters").
	Attributes map[string]interface{}

	// requestURL is GATEWAY_REQUEST_URL: the current forwarding target,
	// mutable by filters (e.g. RewritePath, PrefixPath) and read by the
	// terminal routing filters.
	requestURL *url.URL

	// originalRequestURLs is GATEWAY_ORIGINAL_REQUEST_URL: an append-only
	// history of prior target URIs.
	originalRequestURLs []*url.URL

	// preserveHostHeader is PRESERVE_HOST_HEADER.
	preserveHostHeader bool

	// clientResponse is CLIENT_RESPONSE: the upstream response handle
	// awaiting a deferred write by the response-writer filter.
	clientResponse *http.Response

	// originalResponseContentType is ORIGINAL_RESPONSE_CONTENT_TYPE,
	// captured before response filters mutate the header.
	originalResponseContentType string

	// alreadyRouted is ALREADY_ROUTED: set by the first terminal routing
	// filter that accepts the exchange.
	alreadyRouted bool

	route interface{} // GATEWAY_ROUTE; typed as interface{} to avoid an import cycle with routing.Route
}

// New creates an Exchange for an inbound request. The response builder stays
// nil until something populates it.
func New(w http.ResponseWriter, r *http.Request) *Exchange {
	return &Exchange{
		request:        r,
		responseWriter: w,
		Attributes:     make(map[string]interface{}),
	}
}

func (e *Exchange) Request() *http.Request             { return e.request }
func (e *Exchange) ResponseWriter() http.ResponseWriter { return e.responseWriter }

// Response returns the current response builder, creating it on first access.
func (e *Exchange) Response() *ResponseBuilder {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.response == nil {
		e.response = newResponseBuilder()
	}
	return e.response
}

// HasResponse reports whether a response has already been started, without
// allocating one as a side effect.
func (e *Exchange) HasResponse() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.response != nil
}

// RequestURL returns GATEWAY_REQUEST_URL.
func (e *Exchange) RequestURL() *url.URL { return e.requestURL }

// SetRequestURL sets GATEWAY_REQUEST_URL, pushing the previous value (if any)
// onto GATEWAY_ORIGINAL_REQUEST_URL.
func (e *Exchange) SetRequestURL(u *url.URL) {
	if e.requestURL != nil {
		e.originalRequestURLs = append(e.originalRequestURLs, e.requestURL)
	}
	e.requestURL = u
}

// OriginalRequestURLs returns the ordered sequence of prior target URIs.
func (e *Exchange) OriginalRequestURLs() []*url.URL { return e.originalRequestURLs }

// PreserveHostHeader reports PRESERVE_HOST_HEADER.
func (e *Exchange) PreserveHostHeader() bool { return e.preserveHostHeader }

// SetPreserveHostHeader sets PRESERVE_HOST_HEADER.
func (e *Exchange) SetPreserveHostHeader(v bool) { e.preserveHostHeader = v }

// ClientResponse returns CLIENT_RESPONSE.
func (e *Exchange) ClientResponse() *http.Response { return e.clientResponse }

// SetClientResponse sets CLIENT_RESPONSE.
func (e *Exchange) SetClientResponse(r *http.Response) { e.clientResponse = r }

// OriginalResponseContentType returns ORIGINAL_RESPONSE_CONTENT_TYPE.
func (e *Exchange) OriginalResponseContentType() string { return e.originalResponseContentType }

// CaptureOriginalResponseContentType snapshots the Content-Type header,
// idempotently (subsequent calls are no-ops once a value has been captured).
func (e *Exchange) CaptureOriginalResponseContentType(contentType string) {
	if e.originalResponseContentType == "" {
		e.originalResponseContentType = contentType
	}
}

// AlreadyRouted reports ALREADY_ROUTED.
func (e *Exchange) AlreadyRouted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alreadyRouted
}

// MarkAlreadyRouted sets ALREADY_ROUTED. Per the invariant in §3, once set no
// further terminal routing filter may forward the exchange.
func (e *Exchange) MarkAlreadyRouted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alreadyRouted = true
}

// Route returns GATEWAY_ROUTE. Callers type-assert to *routing.Route.
func (e *Exchange) Route() interface{} { return e.route }

// SetRoute sets GATEWAY_ROUTE.
func (e *Exchange) SetRoute(r interface{}) { e.route = r }

// Attribute reads a value from the generic attributes map.
func (e *Exchange) Attribute(key string) (interface{}, bool) {
	v, ok := e.Attributes[key]
	return v, ok
}

// SetAttribute writes a value into the generic attributes map.
func (e *Exchange) SetAttribute(key string, value interface{}) {
	e.Attributes[key] = value
}

// EmptyBody returns a no-op ReadCloser, used as a safe default response body.
func EmptyBody() io.ReadCloser {
	return io.NopCloser(&bytes.Buffer{})
}
