package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	core "github.com/concord-network/substrate/internal/app/core/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "substrate",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "substrate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "substrate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.56s
		},
		[]string{"method", "path"},
	)

	// bridgeEvents counts the Event Bridge pipeline stage outcomes named in
	// spec §6: eventsReceived, eventsClassified, eventsDroppedClassifier,
	// eventsDroppedDedup, systemDtusRouted.
	bridgeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "substrate",
			Subsystem: "bridge",
			Name:      "events_total",
			Help:      "Event Bridge pipeline stage outcomes.",
		},
		[]string{"stage"},
	)

	// routerDispatch counts Scope Router deliveries (spec §6: routeCount,
	// isMultiLens).
	routerDispatch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "substrate",
			Subsystem: "router",
			Name:      "dispatch_total",
			Help:      "Scope Router delivery attempts, by lens-fanout shape.",
		},
		[]string{"lens_shape"},
	)

	// complianceAudit counts compliance phase outcomes, both at
	// registration time and during the nightly audit.
	complianceAudit = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "substrate",
			Subsystem: "compliance",
			Name:      "audit_checks_total",
			Help:      "Compliance audit check outcomes by phase and result.",
		},
		[]string{"phase", "outcome"},
	)

	// federationEscalations counts tier-transition escalations recorded by
	// the Federated Resolver.
	federationEscalations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "substrate",
			Subsystem: "federation",
			Name:      "escalations_total",
			Help:      "Federated Resolver tier escalations.",
		},
		[]string{"from_tier", "to_tier"},
	)

	// newshubCompaction counts completed compaction runs by the kind of
	// aggregate produced.
	newshubCompaction = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "substrate",
			Subsystem: "newshub",
			Name:      "compaction_total",
			Help:      "News Hub compaction outcomes by aggregate tier.",
		},
		[]string{"tier"},
	)

	observationCollectors sync.Map
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		bridgeEvents,
		routerDispatch,
		complianceAudit,
		federationEscalations,
		newshubCompaction,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordBridgeStage increments the named Event Bridge pipeline stage
// counter (spec §6: received, classified, dropped_classifier,
// dropped_dedup, system_routed).
func RecordBridgeStage(stage string) {
	bridgeEvents.WithLabelValues(stage).Inc()
}

// RecordRouterDispatch records one Scope Router delivery, labeled by
// whether it fanned out across more than one lens.
func RecordRouterDispatch(multiLens bool) {
	shape := "single_lens"
	if multiLens {
		shape = "multi_lens"
	}
	routerDispatch.WithLabelValues(shape).Inc()
}

// RecordComplianceCheck records one compliance phase outcome.
func RecordComplianceCheck(phase, outcome string) {
	complianceAudit.WithLabelValues(phase, outcome).Inc()
}

// RecordFederationEscalation records one tier-transition escalation.
func RecordFederationEscalation(fromTier, toTier string) {
	federationEscalations.WithLabelValues(fromTier, toTier).Inc()
}

// RecordNewshubCompaction records one completed aggregate creation for the
// given target tier ("mega" or "hyper").
func RecordNewshubCompaction(tier string) {
	newshubCompaction.WithLabelValues(tier).Inc()
}

type observationCollector struct {
	gauge *prometheus.GaugeVec
	hist  *prometheus.HistogramVec
}

// ObservationHooks creates core observation hooks backed by Prometheus metrics.
func ObservationHooks(namespace, subsystem, name string) core.ObservationHooks {
	key := namespace + ":" + subsystem + ":" + name
	var collector observationCollector
	if entry, ok := observationCollectors.Load(key); ok {
		collector = entry.(observationCollector)
	} else {
		collector = createObservationCollector(namespace, subsystem, name)
		observationCollectors.Store(key, collector)
	}
	return core.ObservationHooks{
		OnStart: func(ctx context.Context, meta map[string]string) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Inc()
		},
		OnComplete: func(ctx context.Context, meta map[string]string, err error, duration time.Duration) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Dec()
			status := "success"
			if err != nil {
				status = "error"
			}
			collector.hist.WithLabelValues(label, status).Observe(duration.Seconds())
		},
	}
}

func createObservationCollector(namespace, subsystem, name string) observationCollector {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_in_flight",
			Help:      "Current operations in flight for " + subsystem,
		},
		[]string{"resource"},
	)
	hist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_duration_seconds",
			Help:      "Duration of operations for " + subsystem,
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"resource", "status"},
	)
	Registry.MustRegister(gauge, hist)
	return observationCollector{gauge: gauge, hist: hist}
}

func metaLabel(meta map[string]string) string {
	if meta == nil {
		return "unknown"
	}
	if id, ok := meta["resource"]; ok && id != "" {
		return id
	}
	if id, ok := meta["dtu_id"]; ok && id != "" {
		return id
	}
	if id, ok := meta["lens_id"]; ok && id != "" {
		return id
	}
	if id, ok := meta["cri_id"]; ok && id != "" {
		return id
	}
	if id, ok := meta["query"]; ok && id != "" {
		return id
	}
	return "unknown"
}

// BridgeIngestHooks captures Event Bridge ingest pipeline timing.
func BridgeIngestHooks() core.ObservationHooks {
	return ObservationHooks("substrate", "bridge", "ingest")
}

// CanonicalRegistrationHooks captures canonical registry submissions.
func CanonicalRegistrationHooks() core.ObservationHooks {
	return ObservationHooks("substrate", "canonical", "registration")
}

// CompressionHooks captures compression pipeline runs.
func CompressionHooks() core.ObservationHooks {
	return ObservationHooks("substrate", "compression", "pipeline")
}

// FederationPromotionHooks captures DTU tier-promotion attempts.
func FederationPromotionHooks() core.ObservationHooks {
	return ObservationHooks("substrate", "federation", "promotion")
}

// ResolverQueryHooks captures Federated Resolver query resolution.
func ResolverQueryHooks() core.ObservationHooks {
	return ObservationHooks("substrate", "resolver", "query")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 {
		return "/"
	}
	return "/" + parts[0]
}
