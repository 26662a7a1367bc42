package predicate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skipper-gw/gateway/exchange"
)

func alwaysTrue(_ *exchange.Exchange) bool  { return true }
func alwaysFalse(_ *exchange.Exchange) bool { return false }

func TestAndBothTrue(t *testing.T) {
	p := And(ToAsync(alwaysTrue), ToAsync(alwaysTrue))
	ok, err := p(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAndOneFalse(t *testing.T) {
	p := And(ToAsync(alwaysTrue), ToAsync(alwaysFalse))
	ok, err := p(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrOneTrue(t *testing.T) {
	p := Or(ToAsync(alwaysFalse), ToAsync(alwaysTrue))
	ok, err := p(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOrBothFalse(t *testing.T) {
	p := Or(ToAsync(alwaysFalse), ToAsync(alwaysFalse))
	ok, err := p(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNegate(t *testing.T) {
	p := Negate(ToAsync(alwaysTrue))
	ok, err := p(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestAndDoesNotShortCircuit asserts both operands of And run even when the
// first one evaluates false, which is the core property distinguishing this
// predicate calculus from a short-circuiting boolean "&&".
func TestAndDoesNotShortCircuit(t *testing.T) {
	var secondRan bool
	second := func(ctx context.Context, ex *exchange.Exchange) (bool, error) {
		secondRan = true
		return true, nil
	}

	p := And(ToAsync(alwaysFalse), second)
	_, err := p(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, secondRan, "second operand must run even though the first was false")
}

func TestOrDoesNotShortCircuit(t *testing.T) {
	var secondRan bool
	second := func(ctx context.Context, ex *exchange.Exchange) (bool, error) {
		secondRan = true
		return false, nil
	}

	p := Or(ToAsync(alwaysTrue), second)
	_, err := p(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, secondRan, "second operand must run even though the first was true")
}

func TestAndPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	failing := func(ctx context.Context, ex *exchange.Exchange) (bool, error) {
		return false, boom
	}

	p := And(ToAsync(alwaysTrue), failing)
	_, err := p(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestAllConjoinsAllPredicates(t *testing.T) {
	p := All(ToAsync(alwaysTrue), ToAsync(alwaysTrue), ToAsync(alwaysFalse))
	ok, err := p(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllEmptyIsTrue(t *testing.T) {
	p := All()
	ok, err := p(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAndRunsConcurrently(t *testing.T) {
	slow := func(ctx context.Context, ex *exchange.Exchange) (bool, error) {
		time.Sleep(20 * time.Millisecond)
		return true, nil
	}
	other := func(ctx context.Context, ex *exchange.Exchange) (bool, error) {
		time.Sleep(20 * time.Millisecond)
		return true, nil
	}

	start := time.Now()
	p := And(slow, other)
	ok, err := p(context.Background(), nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Less(t, elapsed, 35*time.Millisecond, "operands should run concurrently, not sequentially")
}
