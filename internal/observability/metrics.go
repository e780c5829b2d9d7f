package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kwbot/internal/alert"
)

const namespace = "kwbot"

// QueueStats reports the delivery queue depth and capacity.
type QueueStats func() (queued, capacity int)

// RegistrySize reports how many keyword registrations are indexed.
type RegistrySize func() int

// Metrics holds every kwbot collector on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	evaluations  prometheus.Counter
	evalDuration prometheus.Histogram
	hits         prometheus.Counter
	outcomes     *prometheus.CounterVec
	commands     *prometheus.CounterVec
	maintenance  *prometheus.CounterVec
}

func NewMetrics(queue QueueStats, size RegistrySize) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Messages evaluated against the keyword registry.",
		}),
		evalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent matching and dispatching one message.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keyword_hits_total",
			Help:      "Keyword hits before exclusion filtering.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert outcomes by result.",
		}, []string{"outcome"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Registry commands by action and result.",
		}, []string{"action", "result"}),
		maintenance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_runs_total",
			Help:      "Maintenance job runs by job and result.",
		}, []string{"job", "result"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.evaluations, m.evalDuration, m.hits, m.outcomes, m.commands, m.maintenance,
	)
	if queue != nil {
		m.reg.MustRegister(&queueCollector{stats: queue})
	}
	if size != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keywords_indexed",
			Help:      "Keyword registrations held in the in-memory index.",
		}, func() float64 { return float64(size()) }))
	}
	// Pre-create outcome series so rate() works from the first scrape.
	for _, o := range []alert.Outcome{alert.OutcomeSent, alert.OutcomeExcluded, alert.OutcomeUnresolved, alert.OutcomeFailed, alert.OutcomeDropped} {
		m.outcomes.WithLabelValues(string(o))
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveEvaluation(sum alert.Summary, took time.Duration) {
	m.evaluations.Inc()
	m.evalDuration.Observe(took.Seconds())
	m.hits.Add(float64(sum.Hits))
}

// ObserveResult counts one hit outcome. Suitable as an alert.Reporter.
func (m *Metrics) ObserveResult(r alert.Result) {
	m.outcomes.WithLabelValues(string(r.Outcome)).Inc()
}

func (m *Metrics) ObserveCommand(action string, err error) {
	m.commands.WithLabelValues(action, result(err)).Inc()
}

func (m *Metrics) ObserveMaintenance(job string, _ time.Duration, err error) {
	m.maintenance.WithLabelValues(job, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

var (
	queueDepthDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "notifier", "queue_depth"),
		"Alerts waiting for a delivery worker.",
		nil, nil,
	)
	queueCapDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "notifier", "queue_capacity"),
		"Delivery queue capacity.",
		nil, nil,
	)
)

// queueCollector reads the delivery queue on each scrape.
type queueCollector struct {
	stats QueueStats
}

func (c *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- queueDepthDesc
	ch <- queueCapDesc
}

func (c *queueCollector) Collect(ch chan<- prometheus.Metric) {
	queued, capacity := c.stats()
	ch <- prometheus.MustNewConstMetric(queueDepthDesc, prometheus.GaugeValue, float64(queued))
	ch <- prometheus.MustNewConstMetric(queueCapDesc, prometheus.GaugeValue, float64(capacity))
}
