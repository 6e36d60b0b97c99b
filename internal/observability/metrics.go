package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

// Metrics owns a private registry; a nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	wsConnections prometheus.Gauge

	writeDuration   *prometheus.HistogramVec
	writeRejections *prometheus.CounterVec

	taskRuns    *prometheus.CounterVec
	taskLatency *prometheus.HistogramVec
	queueDepth  *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tb_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tb_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tb_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tb_ws_connections",
			Help: "Live notification WebSocket connections.",
		}),
		writeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tb_write_duration_seconds",
			Help:    "Transactional write duration by operation and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		writeRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tb_write_rejections_total",
			Help: "Writes refused with a client error, by operation and error code.",
		}, []string{"operation", "code"}),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tb_task_runs_total",
			Help: "Background task runs by type/outcome.",
		}, []string{"type", "outcome"}),
		taskLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tb_task_duration_seconds",
			Help:    "Background task duration by type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tb_task_queue_depth",
			Help: "Background tasks by status.",
		}, []string{"status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight, m.wsConnections,
		m.writeDuration, m.writeRejections,
		m.taskRuns, m.taskLatency, m.queueDepth,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

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
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) ApiInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

// WSGauge counts live WebSocket connections; it is nil when m is nil.
func (m *Metrics) WSGauge() prometheus.Gauge {
	if m == nil {
		return nil
	}
	return m.wsConnections
}

func (m *Metrics) ObserveWrite(op, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.writeDuration.WithLabelValues(op, outcome).Observe(dur.Seconds())
}

// IncWriteRejection counts a write refused with a client-facing error code.
func (m *Metrics) IncWriteRejection(op, code string) {
	if m == nil {
		return
	}
	m.writeRejections.WithLabelValues(op, code).Inc()
}

func (m *Metrics) ObserveTask(taskType, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.taskRuns.WithLabelValues(taskType, outcome).Inc()
	m.taskLatency.WithLabelValues(taskType).Observe(dur.Seconds())
}

// StartTaskQueueCollector samples task counts per status every interval.
func (m *Metrics) StartTaskQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, interval time.Duration) {
	if m == nil || db == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	statuses := []domain.TaskStatus{domain.TaskQueued, domain.TaskRunning, domain.TaskDone, domain.TaskFailed}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.sampleQueue(ctx, db, statuses); err != nil {
					log.Warn("metrics: task queue depth query failed", "error", err)
				}
			}
		}
	}()
}

func (m *Metrics) sampleQueue(ctx context.Context, db *gorm.DB, statuses []domain.TaskStatus) error {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).Model(&domain.Task{}).
		Select("status, count(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return err
	}
	for _, s := range statuses {
		m.queueDepth.WithLabelValues(string(s)).Set(0)
	}
	for _, row := range rows {
		status := strings.TrimSpace(row.Status)
		if status == "" {
			status = "unknown"
		}
		m.queueDepth.WithLabelValues(status).Set(float64(row.Count))
	}
	return nil
}
