package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skipper-gw/gateway/exchange"
	"github.com/skipper-gw/gateway/filterchain"
	"github.com/skipper-gw/gateway/gwerror"
	"github.com/skipper-gw/gateway/headers"
)

// acceptedHTTPSchemes is the set of schemes HttpRoutingFilter forwards, §4.8.
var acceptedHTTPSchemes = map[string]bool{"http": true, "https": true}

// HttpRoutingFilterOptions configures NewHttpRoutingFilter.
type HttpRoutingFilterOptions struct {
	Client         *http.Client
	ResponseTimeout time.Duration
	Log            *logrus.Logger
}

// NewHttpRoutingFilter builds the terminal HTTP/HTTPS routing filter from
// §4.8. It is idempotent via ALREADY_ROUTED, composes the outbound request
// from GATEWAY_REQUEST_URL, streams the body through unmodified, never fails
// on an upstream 4xx/5xx (those pass through as ordinary responses), and
// raises gwerror.Timeout if ResponseTimeout elapses while waiting on
// upstream response headers.
func NewHttpRoutingFilter(opts HttpRoutingFilterOptions) filterchain.GatewayFilter {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	return func(ex *exchange.Exchange, chain filterchain.Chain) error {
		target := ex.RequestURL()
		if ex.AlreadyRouted() || target == nil || !acceptedHTTPSchemes[target.Scheme] {
			return chain.Filter(ex)
		}
		ex.MarkAlreadyRouted()

		ctx := ex.Request().Context()
		if opts.ResponseTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.ResponseTimeout)
			defer cancel()
		}

		outReq, err := http.NewRequestWithContext(ctx, ex.Request().Method, target.String(), ex.Request().Body)
		if err != nil {
			return gwerror.WithStatus(http.StatusBadGateway, err)
		}
		outReq.Header = headers.Apply(ex.Request().Header.Clone(), ex, headers.Request, headers.StripHopByHop)
		outReq.TransferEncoding = ex.Request().TransferEncoding

		if ex.PreserveHostHeader() {
			outReq.Host = ex.Request().Host
		} else {
			outReq.Header.Del("Host")
		}

		log.Debugf("forwarding %s %s to %s", outReq.Method, outReq.URL.Path, canonicalAddr(target.Host, target.Scheme))

		resp, err := client.Do(outReq)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return &gwerror.Timeout{Err: err}
			}
			return gwerror.WithStatus(http.StatusBadGateway, err)
		}

		ex.CaptureOriginalResponseContentType(resp.Header.Get("Content-Type"))
		resp.Header = headers.Apply(resp.Header, ex, headers.Response, headers.StripHopByHop)
		ex.SetClientResponse(resp)

		if err := chain.Filter(ex); err != nil {
			log.Debugf("downstream filter error after forwarding: %v", err)
			return err
		}
		return nil
	}
}
