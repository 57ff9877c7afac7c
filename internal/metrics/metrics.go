// Package metrics exposes quiz activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "code_quizzer"

// Metrics implements app.Recorder on top of a Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	quizzes      *prometheus.CounterVec
	achievements *prometheus.CounterVec
	logins       *prometheus.CounterVec
	storeErrors  *prometheus.CounterVec
	requests     *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		// Counter for finished, quit and retried quizzes
		quizzes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quizzes_total",
				Help:      "Quiz sessions by topic and outcome",
			},
			[]string{"topic", "outcome"},
		),
		achievements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "achievements_unlocked_total",
				Help:      "Achievements unlocked by name",
			},
			[]string{"name"},
		),
		logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Logins by streak change",
			},
			[]string{"streak"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Failed document store operations",
			},
			[]string{"op"},
		),
		// Histogram for API latency
		requests: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of API requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
	}
}

func (m *Metrics) QuizCompleted(topic string) {
	m.quizzes.WithLabelValues(topic, "completed").Inc()
}

func (m *Metrics) QuizQuit(topic string) {
	m.quizzes.WithLabelValues(topic, "quit").Inc()
}

func (m *Metrics) QuizRetried(topic string) {
	m.quizzes.WithLabelValues(topic, "retried").Inc()
}

func (m *Metrics) AchievementUnlocked(name string) {
	m.achievements.WithLabelValues(name).Inc()
}

func (m *Metrics) Login(change string) {
	m.logins.WithLabelValues(change).Inc()
}

func (m *Metrics) StoreError(op string) {
	m.storeErrors.WithLabelValues(op).Inc()
}

// ObserveRequest records one served API request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
