// Package metrics exposes the sequencer's operational counters over the
// standard Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	TradesTotal     prometheus.Counter
	AutoReduceTotal prometheus.Counter

	QueueLastSeq        prometheus.Gauge
	CheckpointLastSeq   prometheus.Gauge
	CheckpointDuration  prometheus.Histogram
	OutboxPendingOnScan prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sequencer",
			Name:      "requests_total",
			Help:      "Applied requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		RequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sequencer",
			Name:      "request_duration_seconds",
			Help:      "Wall time spent applying one request.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		TradesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sequencer",
			Name:      "trades_total",
			Help:      "Executions produced by matching.",
		}),
		AutoReduceTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sequencer",
			Name:      "auto_reduce_total",
			Help:      "Orders trimmed or removed by auto-reduce.",
		}),
		QueueLastSeq: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sequencer",
			Name:      "queue_last_seq",
			Help:      "Highest sequence appended to the input queue.",
		}),
		CheckpointLastSeq: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sequencer",
			Name:      "checkpoint_last_seq",
			Help:      "Watermark of the newest checkpoint.",
		}),
		CheckpointDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sequencer",
			Name:      "checkpoint_duration_seconds",
			Help:      "Wall time spent writing a checkpoint.",
			Buckets:   prometheus.ExponentialBuckets(1e-3, 4, 10),
		}),
		OutboxPendingOnScan: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sequencer",
			Name:      "outbox_pending",
			Help:      "Unacked responses seen on the last broadcaster scan.",
		}),
	}
}

// Handler serves the registry over HTTP for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
