package routing

import (
	"net/http"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/skipper-gw/gateway/exchange"
	"github.com/skipper-gw/gateway/gwerror"
)

// atomicTable holds a *Table behind an atomic.Value so SetTable can swap in
// a freshly compiled table without a lock on the request path, matching the
// lock-free read path in skipper's routing.Routing (routing/routing.go,
// the channel-fed matcher swap).
type atomicTable struct {
	v atomic.Value
}

func (a *atomicTable) store(t *Table) { a.v.Store(t) }

func (a *atomicTable) load() *Table { return a.v.Load().(*Table) }

// writeError maps a filter-chain error to an HTTP status via gwerror.StatusOf
// and writes it, unless the response has already been committed by the
// response-writer filter (HasResponse), in which case headers were already
// flushed and the best we can do is log it.
func writeError(w http.ResponseWriter, ex *exchange.Exchange, err error, log *logrus.Logger) {
	if ex.HasResponse() && ex.Response().StatusCode != 0 {
		log.Errorf("error after response started: %v", err)
		return
	}
	status := gwerror.StatusOf(err)
	log.Errorf("request failed with status %d: %v", status, err)
	http.Error(w, http.StatusText(status), status)
}
