package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingResolutionTotal counts resolved line prices by cascade rule.
	PricingResolutionTotal *prometheus.CounterVec
	// PricingUnresolvedUnitTotal counts lines whose unit had no conversion factor.
	PricingUnresolvedUnitTotal prometheus.Counter
	// PricingEngineErrorsTotal counts typed engine failures returned to callers.
	PricingEngineErrorsTotal *prometheus.CounterVec
	// PromotionCallsTotal counts external promotion calculator outcomes.
	PromotionCallsTotal *prometheus.CounterVec
	// PromotionCallLatency records promotion calculator latency in milliseconds.
	PromotionCallLatency *prometheus.HistogramVec
	// CatalogLookupTotal counts catalog snapshot lookups by source.
	CatalogLookupTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingResolutionTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_resolution_total",
			Help:      "Count of resolved line prices by resolution rule.",
		}, []string{"rule"}))
		PricingUnresolvedUnitTotal = registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_unresolved_unit_total",
			Help:      "Number of lines priced with an unconvertible unit.",
		}))
		PricingEngineErrorsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_engine_errors_total",
			Help:      "Count of pricing failures returned to callers by error code.",
		}, []string{"kind"}))
		PromotionCallsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotion_calls_total",
			Help:      "Count of promotion calculator calls by outcome.",
		}, []string{"result"}))
		PromotionCallLatency = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "promotion_call_duration_ms",
			Help:      "Latency for promotion calculator calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"result"}))
		CatalogLookupTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_lookup_total",
			Help:      "Count of catalog snapshot lookups by source.",
		}, []string{"source"}))
	})
}

// CountEngineError increments the engine error counter when metrics are registered.
func CountEngineError(kind string) {
	if PricingEngineErrorsTotal != nil {
		PricingEngineErrorsTotal.WithLabelValues(kind).Inc()
	}
}

// CountCatalogLookup increments the catalog lookup counter when metrics are registered.
func CountCatalogLookup(source string) {
	if CatalogLookupTotal != nil {
		CatalogLookupTotal.WithLabelValues(source).Inc()
	}
}

// ObservePromotionCall records a promotion calculator outcome when metrics are registered.
func ObservePromotionCall(result string, millis float64) {
	if PromotionCallsTotal != nil {
		PromotionCallsTotal.WithLabelValues(result).Inc()
	}
	if PromotionCallLatency != nil {
		PromotionCallLatency.WithLabelValues(result).Observe(millis)
	}
}
