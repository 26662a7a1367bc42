package routing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerReturns404WhenNoRouteMatches(t *testing.T) {
	handler := NewHandler(NewTable(nil), nil)

	req := httptest.NewRequest("GET", "http://gateway.example.org/nonsense", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRunsMatchedRouteChain(t *testing.T) {
	l := newLocator()
	r, err := l.Compile(routeDef("r1", 0))
	require.NoError(t, err)

	handler := NewHandler(NewTable([]*Route{r}), nil)

	req := httptest.NewRequest("GET", "http://gateway.example.org/x", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusNotFound, rec.Code)
}

func TestHandlerSetTableSwapsAtomically(t *testing.T) {
	l := newLocator()
	r, err := l.Compile(routeDef("r1", 0))
	require.NoError(t, err)

	handler := NewHandler(NewTable(nil), nil)

	req := httptest.NewRequest("GET", "http://gateway.example.org/x", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	handler.SetTable(NewTable([]*Route{r}))

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	assert.NotEqual(t, http.StatusNotFound, rec2.Code)
}
