package builtin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skipper-gw/gateway/eskip"
	"github.com/skipper-gw/gateway/exchange"
	"github.com/skipper-gw/gateway/filterchain"
	"github.com/skipper-gw/gateway/gwerror"
	"github.com/skipper-gw/gateway/ratelimit"
)

func runChain(t *testing.T, gf filterchain.GatewayFilter, ex *exchange.Exchange) error {
	t.Helper()
	return filterchain.Run([]filterchain.OrderedFilter{{Order: 1, Name: "under-test", Filter: gf}}, ex, nil)
}

func TestRewritePathFactoryAppliesSubstitution(t *testing.T) {
	f := NewRewritePathFactory()
	built, err := f.NewFilter(eskip.Args{
		{Key: "_genkey_0", Value: "^/api/(.*)"},
		{Key: "_genkey_1", Value: "/svc/$1"},
	})
	require.NoError(t, err)
	gf := built.(filterchain.GatewayFilter)

	ex := newExchange("GET", "http://gw.example.org/api/orders")
	ex.SetRequestURL(ex.Request().URL)

	err = runChain(t, gf, ex)
	require.NoError(t, err)
	assert.Equal(t, "/svc/orders", ex.RequestURL().Path)
}

func TestPrefixPathFactoryPrepends(t *testing.T) {
	f := NewPrefixPathFactory()
	built, err := f.NewFilter(eskip.Args{{Key: "_genkey_0", Value: "/api"}})
	require.NoError(t, err)
	gf := built.(filterchain.GatewayFilter)

	ex := newExchange("GET", "http://gw.example.org/orders")
	ex.SetRequestURL(ex.Request().URL)

	err = runChain(t, gf, ex)
	require.NoError(t, err)
	assert.Equal(t, "/api/orders", ex.RequestURL().Path)
}

func TestAddRequestHeaderFactorySetsHeader(t *testing.T) {
	f := NewAddRequestHeaderFactory()
	built, err := f.NewFilter(eskip.Args{
		{Key: "_genkey_0", Value: "X-Trace"},
		{Key: "_genkey_1", Value: "on"},
	})
	require.NoError(t, err)
	gf := built.(filterchain.GatewayFilter)

	ex := newExchange("GET", "http://gw.example.org/x")
	err = runChain(t, gf, ex)
	require.NoError(t, err)
	assert.Equal(t, "on", ex.Request().Header.Get("X-Trace"))
}

func TestRequestRateLimiterFactoryDeniesEmptyKey(t *testing.T) {
	limiter := ratelimit.New(ratelimit.RedisOptions{}, nil)
	f := NewRequestRateLimiterFactory(limiter, HeaderKeyResolver("X-Client-Id"), 1, 1)
	built, err := f.NewFilter(nil)
	require.NoError(t, err)
	gf := built.(filterchain.GatewayFilter)

	ex := newExchange("GET", "http://gw.example.org/x")
	err = runChain(t, gf, ex)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, gwerror.StatusOf(err))
}

func TestRequestRateLimiterFactoryAllowsThenDeniesOnExhaustedBurst(t *testing.T) {
	limiter := ratelimit.New(ratelimit.RedisOptions{}, nil)
	f := NewRequestRateLimiterFactory(limiter, HeaderKeyResolver("X-Client-Id"), 1, 1)
	built, err := f.NewFilter(nil)
	require.NoError(t, err)
	gf := built.(filterchain.GatewayFilter)

	mkExchange := func() *exchange.Exchange {
		ex := newExchange("GET", "http://gw.example.org/x")
		ex.Request().Header.Set("X-Client-Id", "client-a")
		return ex
	}

	first := mkExchange()
	require.NoError(t, runChain(t, gf, first))

	second := mkExchange()
	err = runChain(t, gf, second)
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, gwerror.StatusOf(err))
}

func TestRequestRateLimiterFactorySetsRateLimitHeaders(t *testing.T) {
	limiter := ratelimit.New(ratelimit.RedisOptions{}, nil)
	f := NewRequestRateLimiterFactory(limiter, HeaderKeyResolver("X-Client-Id"), 5, 10)
	built, err := f.NewFilter(nil)
	require.NoError(t, err)
	gf := built.(filterchain.GatewayFilter)

	req := httptest.NewRequest("GET", "http://gw.example.org/x", nil)
	req.Header.Set("X-Client-Id", "client-b")
	rec := httptest.NewRecorder()
	ex := exchange.New(rec, req)

	require.NoError(t, runChain(t, gf, ex))
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Replenish-Rate"))
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Burst-Capacity"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
}
