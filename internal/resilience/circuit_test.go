package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pricing/internal/resilience"
)

func TestBreakerTransitions(t *testing.T) {
	breaker := resilience.NewBreaker(resilience.BreakerSettings{
		Target:       "catalog-transitions",
		MinRequests:  2,
		FailureRatio: 0.5,
		OpenFor:      50 * time.Millisecond,
	})
	ctx := context.Background()

	require.NoError(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.NoError(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	require.ErrorIs(t, breaker.Allow(ctx), resilience.ErrOpenCircuit, "breaker should open after threshold exceeded")

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, breaker.Allow(ctx), "breaker should admit a probe after cool off")
	require.Equal(t, resilience.HalfOpen, breaker.State())
	require.ErrorIs(t, breaker.Allow(ctx), resilience.ErrOpenCircuit, "only one probe while half-open")
	breaker.Report(ctx, true)
	require.Equal(t, resilience.Closed, breaker.State())
	require.NoError(t, breaker.Allow(ctx))
}

func TestBreakerMetrics(t *testing.T) {
	breaker := resilience.NewBreaker(resilience.BreakerSettings{
		Target:      "promotion-metrics",
		MinRequests: 1,
		OpenFor:     20 * time.Millisecond,
	})
	ctx := context.Background()

	require.NoError(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerState.WithLabelValues("promotion-metrics")))

	require.Eventually(t, func() bool {
		return breaker.Allow(ctx) == nil
	}, 200*time.Millisecond, 5*time.Millisecond)
	require.Equal(t, 2.0, testutil.ToFloat64(resilience.BreakerState.WithLabelValues("promotion-metrics")))

	breaker.Report(ctx, true)
	require.Equal(t, 0.0, testutil.ToFloat64(resilience.BreakerState.WithLabelValues("promotion-metrics")))

	for _, tc := range []struct{ from, to string }{
		{"closed", "open"},
		{"open", "half_open"},
		{"half_open", "closed"},
	} {
		v := testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("promotion-metrics", tc.from, tc.to))
		require.Equal(t, 1.0, v, "%s -> %s", tc.from, tc.to)
	}
}

func TestBackoffWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, base*4, resilience.Backoff(base, 3, 0))

	d := resilience.Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-base*2/5)
	require.LessOrEqual(t, d, base*2+base*2/5)
}
