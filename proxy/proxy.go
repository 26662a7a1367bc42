// Package proxy implements the terminal routing filters and the response
// writer described in §4.8 and §4.9 of the gateway spec: HttpRoutingFilter,
// WebSocketRoutingFilter, ForwardRoutingFilter, and ResponseWriterFilter.
// The HTTP and WebSocket filters are grounded on skipper's proxy.go request
// forwarding and upgrade.go connection-upgrade handling, generalized from
// skipper's two-phase Request()/Response() filter model into the gateway's
// single reentrant GatewayFilter shape.
package proxy

import (
	"net/http"
	"strings"
)

// isUpgradeRequest reports whether req carries a Connection: Upgrade header,
// mirroring skipper's proxy/upgrade.go isUpgradeRequest.
func isUpgradeRequest(req *http.Request) bool {
	for _, h := range req.Header[http.CanonicalHeaderKey("Connection")] {
		if strings.Contains(strings.ToLower(h), "upgrade") {
			return true
		}
	}
	return false
}

// hasPort reports whether s already carries an explicit ":port" suffix.
func hasPort(s string) bool { return strings.LastIndex(s, ":") > strings.LastIndex(s, "]") }

var defaultPortByScheme = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
}

// canonicalAddr returns host:port, filling in the scheme's default port when
// absent.
func canonicalAddr(host, scheme string) string {
	if hasPort(host) {
		return host
	}
	return host + ":" + defaultPortByScheme[scheme]
}
