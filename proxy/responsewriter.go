package proxy

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/skipper-gw/gateway/exchange"
	"github.com/skipper-gw/gateway/filterchain"
)

// NewResponseWriterFilter builds the chain-tail filter from §4.9. It must be
// the last filter in every chain's filter list (highest order, appended
// after the terminal routing filters so a stable sort keeps it last). If
// CLIENT_RESPONSE was never populated, it leaves the response writer
// untouched.
func NewResponseWriterFilter(log *logrus.Logger) filterchain.GatewayFilter {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return func(ex *exchange.Exchange, chain filterchain.Chain) error {
		if err := chain.Filter(ex); err != nil {
			return err
		}

		resp := ex.ClientResponse()
		if resp == nil {
			return nil
		}
		defer resp.Body.Close()

		w := ex.ResponseWriter()
		header := w.Header()
		for k, vs := range resp.Header {
			for _, v := range vs {
				header.Add(k, v)
			}
		}
		ex.Response().StatusCode = resp.StatusCode
		w.WriteHeader(resp.StatusCode)

		if _, err := io.Copy(w, resp.Body); err != nil {
			log.Errorf("error streaming response body: %v", err)
			return err
		}
		return nil
	}
}
