package obs_test

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pricing/internal/obs"
	"github.com/noah-isme/backend-pricing/internal/pricing"
)

func TestPricingObserverCountsAndLogs(t *testing.T) {
	obs.MustRegisterDomainMetrics("pricing", prometheus.NewRegistry())

	var buf bytes.Buffer
	observer := obs.PricingObserver{Logger: zerolog.New(&buf)}

	before := testutil.ToFloat64(obs.PricingUnresolvedUnitTotal)
	observer.UnresolvedUnit("SOAP-1", "PLAN-12", "PALLET")
	require.Equal(t, before+1, testutil.ToFloat64(obs.PricingUnresolvedUnitTotal))
	require.Contains(t, buf.String(), `"message":"unresolved_unit"`)
	require.Contains(t, buf.String(), `"unit":"PALLET"`)

	exact := obs.PricingResolutionTotal.WithLabelValues("exact")
	beforeExact := testutil.ToFloat64(exact)
	observer.Resolved("SOAP-1", pricing.RuleExact)
	require.Equal(t, beforeExact+1, testutil.ToFloat64(exact))
}
