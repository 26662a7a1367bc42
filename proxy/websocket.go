package proxy

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/skipper-gw/gateway/exchange"
	"github.com/skipper-gw/gateway/filterchain"
	"github.com/skipper-gw/gateway/gwerror"
	"github.com/skipper-gw/gateway/headers"
)

var acceptedWSSchemes = map[string]bool{"ws": true, "wss": true}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewWebSocketRoutingFilter builds the terminal WebSocket routing filter
// from §4.8. It accepts ws/wss targets directly, and http/https targets
// carrying an Upgrade: websocket request header, rewriting the scheme to
// ws/wss before dialing upstream. Frames are pumped bidirectionally using
// two goroutines; either side closing ends both, mirroring the
// bidirectional-copy shape of skipper's upgradeProxy.serveHTTP
// (proxy/upgrade.go), translated from a raw TCP tunnel into frame-level
// gorilla/websocket pumping so binary/text frame boundaries are preserved.
func NewWebSocketRoutingFilter(log *logrus.Logger) filterchain.GatewayFilter {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return func(ex *exchange.Exchange, chain filterchain.Chain) error {
		target := ex.RequestURL()
		wsTarget := target != nil && acceptedWSSchemes[target.Scheme]
		httpUpgrade := target != nil && (target.Scheme == "http" || target.Scheme == "https") && isUpgradeRequest(ex.Request()) &&
			strings.EqualFold(ex.Request().Header.Get("Upgrade"), "websocket")

		if ex.AlreadyRouted() || target == nil || (!wsTarget && !httpUpgrade) {
			return chain.Filter(ex)
		}
		ex.MarkAlreadyRouted()

		if httpUpgrade {
			rewritten := *target
			if target.Scheme == "https" {
				rewritten.Scheme = "wss"
			} else {
				rewritten.Scheme = "ws"
			}
			target = &rewritten
		}

		dialHeader := headers.Apply(ex.Request().Header.Clone(), ex, headers.Request,
			headers.StripHopByHop, headers.StripWebsocketUpgradeRequestHeaders)
		dialHeader.Del("Sec-WebSocket-Protocol")

		dialer := websocket.Dialer{Subprotocols: websocket.Subprotocols(ex.Request())}
		upstreamConn, upstreamResp, err := dialer.Dial(target.String(), dialHeader)
		if err != nil {
			status := http.StatusBadGateway
			if upstreamResp != nil {
				status = upstreamResp.StatusCode
			}
			return gwerror.WithStatus(status, fmt.Errorf("websocket dial failed: %w", err))
		}
		defer upstreamConn.Close()

		responseHeader := http.Header{}
		if proto := upstreamResp.Header.Get("Sec-WebSocket-Protocol"); proto != "" {
			responseHeader.Set("Sec-WebSocket-Protocol", proto)
		}

		clientConn, err := upgrader.Upgrade(ex.ResponseWriter(), ex.Request(), responseHeader)
		if err != nil {
			return gwerror.WithStatus(http.StatusBadGateway, fmt.Errorf("client upgrade failed: %w", err))
		}
		defer clientConn.Close()

		pumpBidirectional(clientConn, upstreamConn, log)

		return chain.Filter(ex)
	}
}

// pumpBidirectional forwards frames client<->upstream concurrently until
// either side closes, then waits for both directions to drain, per §4.8
// step 3: "both directions must then drain and close."
func pumpBidirectional(client, upstream *websocket.Conn, log *logrus.Logger) {
	var wg sync.WaitGroup
	wg.Add(2)

	go pumpOne(&wg, client, upstream, "client->upstream", log)
	go pumpOne(&wg, upstream, client, "upstream->client", log)

	wg.Wait()
}

// pumpOne copies frames from src to dst until src's read fails, then closes
// both connections outright rather than waiting on a graceful peer close:
// an unresponsive or non-conforming endpoint would otherwise leave the
// opposite pump blocked in its own ReadMessage for the life of the
// process, since a Close control frame only asks the peer to close and
// does not force it.
func pumpOne(wg *sync.WaitGroup, src, dst *websocket.Conn, label string, log *logrus.Logger) {
	defer wg.Done()
	for {
		msgType, data, err := src.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!strings.Contains(err.Error(), "use of closed network connection") {
				log.Debugf("websocket pump %s ended: %v", label, err)
			}
			dst.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			src.Close()
			dst.Close()
			return
		}
		if err := dst.WriteMessage(msgType, data); err != nil {
			log.Debugf("websocket pump %s write failed: %v", label, err)
			src.Close()
			dst.Close()
			return
		}
	}
}
