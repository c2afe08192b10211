package observability

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/envutil"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

// QueueCounter reports task counts by status. repos.TaskRunRepo satisfies it.
type QueueCounter interface {
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
}

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	tasksEnqueued *prometheus.CounterVec
	tasksFinished *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	queueDepth    *prometheus.GaugeVec

	validationRejected *prometheus.CounterVec
	eventsInterpreted  *prometheus.CounterVec
	snapshots          *prometheus.CounterVec
	promptsCompiled    *prometheus.CounterVec

	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", true)
}

// Current returns the process metrics, or nil before Init. Every method is
// safe on a nil receiver.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("prometheus metrics initialized")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tutor_api_requests_total",
			Help: "API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tutor_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route", "status"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "tutor_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		tasksEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tutor_tasks_enqueued_total",
			Help: "Tasks enqueued by kind.",
		}, []string{"kind"}),
		tasksFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tutor_tasks_finished_total",
			Help: "Task executions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tutor_task_duration_seconds",
			Help:    "Task execution time in seconds by kind.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"kind"}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tutor_task_queue_depth",
			Help: "Tasks in the durable queue by status.",
		}, []string{"status"}),
		validationRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tutor_behavior_validation_rejected_total",
			Help: "Behavior events rejected at the boundary by field.",
		}, []string{"field"}),
		eventsInterpreted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tutor_behavior_events_interpreted_total",
			Help: "Behavior events applied to learner state by event type.",
		}, []string{"event_type"}),
		snapshots: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tutor_learner_snapshots_total",
			Help: "Learner state snapshots written by trigger.",
		}, []string{"trigger"}),
		promptsCompiled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tutor_prompts_compiled_total",
			Help: "Prompts compiled by mode.",
		}, []string{"mode"}),
		redisUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "tutor_redis_up",
			Help: "1 when the last redis ping succeeded.",
		}),
		redisPing: f.NewGauge(prometheus.GaugeOpts{
			Name: "tutor_redis_ping_seconds",
			Help: "Latency of the last redis ping.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) IncTaskEnqueued(kind string) {
	if m == nil {
		return
	}
	m.tasksEnqueued.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveTask(kind, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.tasksFinished.WithLabelValues(kind, outcome).Inc()
	m.taskDuration.WithLabelValues(kind).Observe(dur.Seconds())
}

func (m *Metrics) IncValidationRejected(field string) {
	if m == nil {
		return
	}
	if field == "" {
		field = "unknown"
	}
	m.validationRejected.WithLabelValues(field).Inc()
}

func (m *Metrics) IncEventInterpreted(eventType string) {
	if m == nil {
		return
	}
	m.eventsInterpreted.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncSnapshot(trigger string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(trigger).Inc()
}

func (m *Metrics) IncPromptCompiled(mode string) {
	if m == nil {
		return
	}
	if mode == "" {
		mode = "default"
	}
	m.promptsCompiled.WithLabelValues(mode).Inc()
}

func scrapeInterval() time.Duration {
	d := envutil.Duration("METRICS_SCRAPE_INTERVAL", 15*time.Second)
	if d < time.Second {
		return time.Second
	}
	return d
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb goredis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func (m *Metrics) StartTaskQueueCollector(ctx context.Context, log *logger.Logger, queue QueueCounter) {
	if m == nil || queue == nil {
		return
	}
	interval := scrapeInterval()
	statuses := []string{"queued", "running", "succeeded", "failed", "dropped"}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				counts, err := queue.CountByStatus(dbctx.Context{Ctx: ctx})
				if err != nil {
					if log != nil {
						log.Warn("metrics: task queue depth query failed", "error", err)
					}
					continue
				}
				for _, s := range statuses {
					m.queueDepth.WithLabelValues(s).Set(0)
				}
				for status, n := range counts {
					status = strings.TrimSpace(status)
					if status == "" {
						status = "unknown"
					}
					m.queueDepth.WithLabelValues(status).Set(float64(n))
				}
			}
		}
	}()
}
