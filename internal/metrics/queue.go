package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// QueueStats is implemented by the event dispatch buffer.
type QueueStats interface {
	PendingCount() int
	RetryCount() int
}

type queueCollector struct {
	queue QueueStats

	pending *prometheus.Desc
	retry   *prometheus.Desc
}

// RegisterQueueMetrics registers Prometheus gauges that report live event
// buffer depths on every scrape.
func RegisterQueueMetrics(reg prometheus.Registerer, queue QueueStats) {
	reg.MustRegister(&queueCollector{
		queue: queue,
		pending: prometheus.NewDesc(
			"kestrel_buffer_pending_events",
			"Number of telemetry events awaiting their first flush.",
			nil, nil,
		),
		retry: prometheus.NewDesc(
			"kestrel_buffer_retry_events",
			"Number of telemetry events in the retry pool.",
			nil, nil,
		),
	})
}

func (c *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pending
	ch <- c.retry
}

func (c *queueCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(c.queue.PendingCount()))
	ch <- prometheus.MustNewConstMetric(c.retry, prometheus.GaugeValue, float64(c.queue.RetryCount()))
}
