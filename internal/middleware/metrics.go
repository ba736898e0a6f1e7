package middleware

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogforge_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// UpstreamRequests counts calls to external APIs by API name and outcome.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogforge_upstream_requests_total",
		Help: "Total number of upstream API requests by API and outcome",
	}, []string{"api", "outcome"})

	// PipelineTransitions counts post state transitions by target status.
	PipelineTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogforge_pipeline_transitions_total",
		Help: "Total number of post pipeline state transitions",
	}, []string{"status"})

	// DuplicateTopicsRejected counts topic suggestions rejected by the similarity gate.
	DuplicateTopicsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blogforge_duplicate_topics_rejected_total",
		Help: "Total number of suggested topics rejected as near-duplicates",
	})
)

// InitMetrics creates the Prometheus middleware for the given service name.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	return fiberprometheus.New(serviceName)
}

// MetricsMiddleware wraps the fiberprometheus middleware as a fiber.Handler.
func MetricsMiddleware(prom *fiberprometheus.FiberPrometheus) fiber.Handler {
	return prom.Middleware
}
