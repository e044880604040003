package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kagent-dev/mcpchat/internal/version"
)

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// Metrics holds the fetch server collectors and the registry serving them.
type Metrics struct {
	Registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fetch_requests_total",
			Help: "Number of fetch tool calls by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fetch_duration_seconds",
			Help:    "Time spent fetching and converting a page.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.Registry.MustRegister(
		m.requests,
		m.duration,
		NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) observe(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.duration.Observe(seconds)
}

// NewBuildInfoCollector returns a collector that exports the build metadata as
// labels with a constant value of 1.
func NewBuildInfoCollector() prometheus.Collector {
	info := version.Get()
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "fetch_server_build_info",
			Help: "fetch-server build metadata exposed as labels with a constant value of 1.",
			ConstLabels: prometheus.Labels{
				"version":    info.Version,
				"git_commit": info.GitCommit,
				"build_date": info.BuildDate,
				"go_version": info.GoVersion,
				"platform":   info.Platform,
			},
		},
		func() float64 { return 1 },
	)
}
