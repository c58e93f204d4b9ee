package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/d4l-data4life/go-chat-gateway/pkg/config"
	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// Metric definitions
// Ensure that this follows best practices for naming: https://prometheus.io/docs/practices/naming/
var (
	metricNamePrefix = "d4l_CHAT_GATEWAY"

	// RelayStreams counts relayed completion streams by outcome
	// (completed, upstream_error, stream_error, empty, canceled)
	RelayStreams = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamePrefix,
			Name:      "relay_streams_total",
			Help:      "Number of relayed completion streams, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	// TitleGenerations counts background title generation attempts by outcome
	TitleGenerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamePrefix,
			Name:      "title_generations_total",
			Help:      "Number of background conversation title generations, labeled by outcome.",
		},
		[]string{"outcome"},
	)
)

// AddBuildInfoMetric adds a static metric with the build information
func AddBuildInfoMetric() {
	err := prometheus.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricNamePrefix,
			Name:      "build_info",
			Help:      "A metric with a constant '1' value labeled by version, branch, commit, build date, and goversion.",
			ConstLabels: prometheus.Labels{
				"version":   config.Version,
				"branch":    config.Branch,
				"commit":    config.Commit,
				"goversion": config.GoVersion,
			},
		},
		func() float64 { return 1 },
	))
	if err != nil {
		logging.LogErrorf(err, "Error registering build info metric")
	}
}

// RegisterRelayMetrics registers the relay counters, tolerating re-registration in tests
func RegisterRelayMetrics() {
	for _, c := range []prometheus.Collector{RelayStreams, TitleGenerations} {
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				logging.LogErrorf(err, "Error registering relay metric")
			}
		}
	}
}
