// Command gateway wires the registries, route locator, filter chain and
// terminal proxy filters into a running HTTP server, following the
// composition root shape of skipper's cmd/skipper/main.go.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skipper-gw/gateway/builtin"
	"github.com/skipper-gw/gateway/config"
	"github.com/skipper-gw/gateway/eskip"
	"github.com/skipper-gw/gateway/filterchain"
	"github.com/skipper-gw/gateway/proxy"
	"github.com/skipper-gw/gateway/ratelimit"
	"github.com/skipper-gw/gateway/registry"
	"github.com/skipper-gw/gateway/routing"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		logrus.Fatal(err)
	}
}

func run(args []string) error {
	cfg := config.New()
	if err := cfg.Parse(args); err != nil {
		return err
	}

	log := logrus.StandardLogger()
	if cfg.DevMode {
		log.SetLevel(logrus.DebugLevel)
	}

	predicates := registry.NewPredicateRegistry(nil)
	predicates.Register(builtin.NewPathFactory())
	predicates.Register(builtin.NewHostFactory())
	predicates.Register(builtin.NewMethodFactory())
	predicates.Register(builtin.NewHeaderFactory())

	limiter := ratelimit.New(ratelimit.RedisOptions{Addrs: cfg.RedisAddrs}, log)

	filters := registry.NewFilterRegistry(nil)
	filters.Register(builtin.NewRewritePathFactory())
	filters.Register(builtin.NewPrefixPathFactory())
	filters.Register(builtin.NewAddRequestHeaderFactory())
	filters.Register(builtin.NewRequestRateLimiterFactory(
		limiter, builtin.RemoteAddrKeyResolver(), cfg.DefaultReplenishRate, cfg.DefaultBurstCapacity))

	forwardRegistry := proxy.NewForwardRegistry()

	locator := &routing.Locator{
		Predicates: predicates,
		Filters:    filters,
		TerminalFilters: []filterchain.OrderedFilter{
			{Order: filterchain.WebsocketPrecedence, Name: "WebSocketRoutingFilter", Filter: proxy.NewWebSocketRoutingFilter(log)},
			{Order: filterchain.LowestPrecedence, Name: "HttpRoutingFilter", Filter: proxy.NewHttpRoutingFilter(proxy.HttpRoutingFilterOptions{
				ResponseTimeout: cfg.ResponseTimeout,
				Log:             log,
			})},
			{Order: filterchain.LowestPrecedence, Name: "ForwardRoutingFilter", Filter: proxy.NewForwardRoutingFilter(forwardRegistry)},
			{Order: filterchain.LowestPrecedence, Name: "ResponseWriterFilter", Filter: proxy.NewResponseWriterFilter(log)},
		},
	}

	defs, err := routeDefinitions(cfg.Routes)
	if err != nil {
		return fmt.Errorf("parsing configured routes: %w", err)
	}

	compiled, err := locator.CompileAll(defs)
	if err != nil {
		return fmt.Errorf("compiling routes: %w", err)
	}

	handler := routing.NewHandler(routing.NewTable(compiled), log)

	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      0, // streaming responses must not be capped
		IdleTimeout:       60 * time.Second,
	}

	log.Infof("gateway listening on %s", cfg.Address)
	return server.ListenAndServe()
}

// routeDefinitions converts the YAML-sourced config.RouteSource list into
// eskip.RouteDefinitions by parsing each predicate/filter shortcut
// expression, per §4.1.
func routeDefinitions(sources []config.RouteSource) ([]*eskip.RouteDefinition, error) {
	defs := make([]*eskip.RouteDefinition, 0, len(sources))
	for _, rs := range sources {
		def := &eskip.RouteDefinition{ID: rs.ID, URI: rs.URI, Order: rs.Order}
		for _, m := range rs.Match {
			pd, err := eskip.ParsePredicate(m)
			if err != nil {
				return nil, fmt.Errorf("route %q: %w", rs.ID, err)
			}
			def.Predicates = append(def.Predicates, pd)
		}
		for _, fexpr := range rs.Filters {
			fd, err := eskip.ParseFilter(fexpr)
			if err != nil {
				return nil, fmt.Errorf("route %q: %w", rs.ID, err)
			}
			def.Filters = append(def.Filters, fd)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
