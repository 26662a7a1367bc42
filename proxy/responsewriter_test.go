package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skipper-gw/gateway/exchange"
	"github.com/skipper-gw/gateway/filterchain"
)

func TestResponseWriterFilterWritesClientResponse(t *testing.T) {
	filter := NewResponseWriterFilter(nil)

	req := httptest.NewRequest("GET", "http://gateway.example.org/x", nil)
	rec := httptest.NewRecorder()
	ex := exchange.New(rec, req)

	header := http.Header{}
	header.Set("X-From-Upstream", "yes")
	ex.SetClientResponse(&http.Response{
		StatusCode: http.StatusCreated,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader("body")),
	})

	err := filterchain.Run([]filterchain.OrderedFilter{{Order: 1, Name: "rw", Filter: filter}}, ex, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "yes", rec.Header().Get("X-From-Upstream"))
	assert.Equal(t, "body", rec.Body.String())
}

func TestResponseWriterFilterNoopsWithoutClientResponse(t *testing.T) {
	filter := NewResponseWriterFilter(nil)

	req := httptest.NewRequest("GET", "http://gateway.example.org/x", nil)
	rec := httptest.NewRecorder()
	ex := exchange.New(rec, req)

	err := filterchain.Run([]filterchain.OrderedFilter{{Order: 1, Name: "rw", Filter: filter}}, ex, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code) // httptest.ResponseRecorder default, untouched
	assert.Empty(t, rec.Body.String())
}

func TestResponseWriterFilterPropagatesDownstreamError(t *testing.T) {
	filter := NewResponseWriterFilter(nil)
	boom := func(ex *exchange.Exchange, chain filterchain.Chain) error {
		return assert.AnError
	}

	req := httptest.NewRequest("GET", "http://gateway.example.org/x", nil)
	rec := httptest.NewRecorder()
	ex := exchange.New(rec, req)

	filters := []filterchain.OrderedFilter{
		{Order: 1, Name: "rw", Filter: filter},
		{Order: 2, Name: "boom", Filter: boom},
	}
	err := filterchain.Run(filters, ex, nil)
	assert.ErrorIs(t, err, assert.AnError)
}
