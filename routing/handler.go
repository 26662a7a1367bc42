package routing

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/skipper-gw/gateway/exchange"
	"github.com/skipper-gw/gateway/filterchain"
)

// Handler is the routing handler from §4.6: for each request it matches the
// current route table, stamps the exchange's GATEWAY_ROUTE and
// GATEWAY_REQUEST_URL attributes, and runs the matched route's filter chain.
// A Table swap (see SetTable) is safe to do concurrently with in-flight
// requests; the handler always reads the table that was current when the
// request arrived.
type Handler struct {
	table  atomicTable
	log    *logrus.Logger
	onDone func(ex *exchange.Exchange, err error)
}

// NewHandler wires an initial table. log defaults to logrus.StandardLogger()
// if nil.
func NewHandler(table *Table, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &Handler{log: log}
	h.table.store(table)
	return h
}

// SetTable atomically swaps in a newly compiled route table, logging the
// swap at Info level per the ambient logging contract.
func (h *Handler) SetTable(table *Table) {
	h.table.store(table)
	h.log.Infof("route table swapped: %d routes", len(table.routes))
}

// ServeHTTP implements http.Handler. On no match it writes 404 and runs no
// filter, per §4.6. On a match it builds the filter chain (route filters
// only; global defaults were already folded in at compile time by the
// Locator) and runs it, translating a returned error into a status via
// gwerror.StatusOf: a gwerror.StatusError's own status, 504 for a
// gwerror.Timeout, 502 otherwise. GATEWAY_REQUEST_URL is set to the route's
// URI, taking the inbound request's path and query where the route URI has
// none of its own.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	table := h.table.load()
	ex := exchange.New(w, r)
	ex.SetRequestURL(r.URL)

	route, err := table.Match(r.Context(), ex, h.log)
	if err != nil {
		if h.onDone != nil {
			h.onDone(ex, err)
		}
		http.NotFound(w, r)
		return
	}

	ex.SetRoute(route)
	target := *route.URI
	if target.Path == "" && target.Opaque == "" {
		target.Path = r.URL.Path
		target.RawPath = r.URL.RawPath
	}
	if target.RawQuery == "" {
		target.RawQuery = r.URL.RawQuery
	}
	ex.SetRequestURL(&target)

	chainErr := filterchain.Run(route.Filters, ex, func(name string, recovered interface{}, stack string) {
		h.log.Debugf("filter %q panicked: %v\n%s", name, recovered, stack)
	})

	if h.onDone != nil {
		h.onDone(ex, chainErr)
	}

	if chainErr != nil {
		writeError(w, ex, chainErr, h.log)
	}
}

// OnDone registers a callback invoked after every request completes (match
// failure or filter chain completion), used by tests and by the ambient
// access-log wiring.
func (h *Handler) OnDone(f func(ex *exchange.Exchange, err error)) {
	h.onDone = f
}
