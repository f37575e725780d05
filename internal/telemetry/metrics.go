package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the Prometheus collectors exposed by the runtime. A
// single registry is shared across engine, worker and activity
// execution so a scrape target sees one consistent namespace.
type Metrics struct {
	registry *prometheus.Registry

	messagesTotal      *prometheus.CounterVec
	messageDuration    *prometheus.HistogramVec
	activationsTotal   *prometheus.CounterVec
	activeActors       *prometheus.GaugeVec
	activityExecutions *prometheus.CounterVec
	activityDuration   *prometheus.HistogramVec
	retriesTotal       *prometheus.CounterVec
	suspendsTotal      *prometheus.CounterVec
	leaseAcquireTotal  *prometheus.CounterVec
	idempotencyHits    *prometheus.CounterVec
	queueDepth         *prometheus.GaugeVec
	uptime             prometheus.GaugeFunc
}

var defaultDurationBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var startTime = time.Now()

var global *Metrics

// InitMetrics initializes the Prometheus metrics subsystem. Safe to
// call once at startup; subsequent Record*/Set* calls become no-ops
// for any previous registry.
func InitMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Total number of actor messages processed, by actor type and outcome.",
			},
			[]string{"actor_type", "status"},
		),

		messageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "message_duration_milliseconds",
				Help:      "Duration of actor message handling in milliseconds.",
				Buckets:   defaultDurationBuckets,
			},
			[]string{"actor_type"},
		),

		activationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activations_total",
				Help:      "Total actor activations, by actor type and source label.",
			},
			[]string{"actor_type", "source"},
		),

		activeActors: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_actors",
				Help:      "Currently activated actors held in this process's runtime pool, by actor type.",
			},
			[]string{"actor_type"},
		),

		activityExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activity_executions_total",
				Help:      "Total WASM activity executions, by activity name and outcome.",
			},
			[]string{"activity", "status"},
		),

		activityDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "activity_duration_milliseconds",
				Help:      "Duration of sandboxed activity execution in milliseconds.",
				Buckets:   defaultDurationBuckets,
			},
			[]string{"activity"},
		),

		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total retry attempts scheduled by the retry handler, by activity and reason.",
			},
			[]string{"activity", "reason"},
		),

		suspendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "suspends_total",
				Help:      "Total actor suspensions, by kind (activity, event).",
			},
			[]string{"kind"},
		),

		leaseAcquireTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lease_acquire_total",
				Help:      "Total lease acquisition attempts, by outcome.",
			},
			[]string{"outcome"},
		),

		idempotencyHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idempotency_hits_total",
				Help:      "Total idempotency key lookups that short-circuited a duplicate effect.",
			},
			[]string{"outcome"},
		),

		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Last observed depth of the message queue, by topic.",
			},
			[]string{"topic"},
		),
	}

	m.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the runtime process started.",
		},
		func() float64 {
			return time.Since(startTime).Seconds()
		},
	)

	registry.MustRegister(
		m.messagesTotal,
		m.messageDuration,
		m.activationsTotal,
		m.activeActors,
		m.activityExecutions,
		m.activityDuration,
		m.retriesTotal,
		m.suspendsTotal,
		m.leaseAcquireTotal,
		m.idempotencyHits,
		m.queueDepth,
		m.uptime,
	)

	global = m
	return m
}

// Global returns the process-wide metrics instance, or nil if InitMetrics
// has not been called.
func Global() *Metrics {
	return global
}

// Handler returns an HTTP handler for Prometheus scraping. Returns 503
// until InitMetrics has run.
func Handler() http.Handler {
	if global == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(global.registry, promhttp.HandlerOpts{})
}

// RecordMessage records the outcome and duration of handling one actor
// message.
func RecordMessage(actorType string, durationMs int64, success bool) {
	if global == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	global.messagesTotal.WithLabelValues(actorType, status).Inc()
	global.messageDuration.WithLabelValues(actorType).Observe(float64(durationMs))
}

// RecordActivation records an actor activation under a caller-chosen
// source label (the runtime pool passes "pool", the worker's activity
// handoff passes "activity_requested").
func RecordActivation(actorType, source string) {
	if global == nil {
		return
	}
	global.activationsTotal.WithLabelValues(actorType, source).Inc()
}

// SetActiveActors sets the active-actor gauge for a type.
func SetActiveActors(actorType string, count int) {
	if global == nil {
		return
	}
	global.activeActors.WithLabelValues(actorType).Set(float64(count))
}

// RecordActivityExecution records the outcome and duration of one
// sandboxed activity execution.
func RecordActivityExecution(activity string, durationMs int64, success bool) {
	if global == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	global.activityExecutions.WithLabelValues(activity, status).Inc()
	global.activityDuration.WithLabelValues(activity).Observe(float64(durationMs))
}

// RecordRetry records a scheduled retry attempt.
func RecordRetry(activity, reason string) {
	if global == nil {
		return
	}
	global.retriesTotal.WithLabelValues(activity, reason).Inc()
}

// RecordSuspend records an actor suspension.
func RecordSuspend(kind string) {
	if global == nil {
		return
	}
	global.suspendsTotal.WithLabelValues(kind).Inc()
}

// RecordLeaseAcquire records the outcome of a lease acquisition attempt.
func RecordLeaseAcquire(outcome string) {
	if global == nil {
		return
	}
	global.leaseAcquireTotal.WithLabelValues(outcome).Inc()
}

// RecordIdempotencyHit records an idempotency key lookup outcome
// ("hit" short-circuited a duplicate, "miss" proceeded to execute).
func RecordIdempotencyHit(outcome string) {
	if global == nil {
		return
	}
	global.idempotencyHits.WithLabelValues(outcome).Inc()
}

// SetQueueDepth sets the queue-depth gauge for a topic.
func SetQueueDepth(topic string, depth int) {
	if global == nil {
		return
	}
	global.queueDepth.WithLabelValues(topic).Set(float64(depth))
}
