package metric

import "github.com/prometheus/client_golang/prometheus"

// PubSubStats is the view of the broker read at scrape time.
type PubSubStats interface {
	Topics() int
	Dropped() uint64
}

// PubSubCollector exports broker statistics without the broker importing
// Prometheus.
type PubSubCollector struct {
	stats PubSubStats

	topics  *prometheus.Desc
	dropped *prometheus.Desc
}

// NewPubSubCollector creates a collector for stats.
func NewPubSubCollector(stats PubSubStats) *PubSubCollector {
	return &PubSubCollector{
		stats: stats,
		topics: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pubsub", "topics"),
			"Channels with at least one subscriber.",
			nil, nil,
		),
		dropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pubsub", "dropped_messages_total"),
			"Messages discarded because a subscriber's buffer was full.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *PubSubCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.topics
	ch <- c.dropped
}

// Collect implements prometheus.Collector.
func (c *PubSubCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.topics, prometheus.GaugeValue, float64(c.stats.Topics()))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(c.stats.Dropped()))
}
