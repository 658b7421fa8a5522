package prometheus

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "invitegate"

// Registry holds the service collectors plus the Go runtime and process ones.
var Registry = newRegistry()

func newRegistry() *prom.Registry {
	r := prom.NewRegistry()
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

var factory = promauto.With(Registry)

var (
	// JoinAttempts counts delegated-join runs by terminal outcome.
	JoinAttempts = factory.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "join_attempts_total",
		Help:      "Delegated guild join attempts by outcome.",
	}, []string{"outcome"})

	MappingsCreated = factory.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "mappings_created_total",
		Help:      "Vanity invite mappings created.",
	})

	LimitAdjustments = factory.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "limit_adjustments_total",
		Help:      "Admin invite limit adjustments by direction and outcome.",
	}, []string{"direction", "outcome"})

	HTTPRequestDuration = factory.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prom.DefBuckets,
	}, []string{"method", "route", "status"})
)
