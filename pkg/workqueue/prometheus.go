package workqueue

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	workQueueSubsystem         = "workqueue"
	depthKey                   = "depth"
	addsKey                    = "adds_total"
	queueLatencyKey            = "queue_duration_seconds"
	workDurationKey            = "work_duration_seconds"
	unfinishedWorkKey          = "unfinished_work_seconds"
	longestRunningProcessorKey = "longest_running_processor_seconds"
	retriesKey                 = "retries_total"
)

type prometheusMetricsProvider struct {
	depth                   *prometheus.GaugeVec
	adds                    *prometheus.CounterVec
	latency                 *prometheus.HistogramVec
	workDuration            *prometheus.HistogramVec
	unfinished              *prometheus.GaugeVec
	longestRunningProcessor *prometheus.GaugeVec
	retries                 *prometheus.CounterVec
}

// NewPrometheusMetricsProvider 在 reg 上注册队列指标，按队列名称区分
func NewPrometheusMetricsProvider(reg prometheus.Registerer) (MetricsProvider, error) {
	p := &prometheusMetricsProvider{
		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "watchcache",
			Subsystem: workQueueSubsystem,
			Name:      depthKey,
			Help:      "Current depth of workqueue",
		}, []string{"name"}),
		adds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchcache",
			Subsystem: workQueueSubsystem,
			Name:      addsKey,
			Help:      "Total number of adds handled by workqueue",
		}, []string{"name"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "watchcache",
			Subsystem: workQueueSubsystem,
			Name:      queueLatencyKey,
			Help:      "How long in seconds an item stays in workqueue before being requested.",
			Buckets:   prometheus.ExponentialBuckets(10e-9, 10, 10),
		}, []string{"name"}),
		workDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "watchcache",
			Subsystem: workQueueSubsystem,
			Name:      workDurationKey,
			Help:      "How long in seconds processing an item from workqueue takes.",
			Buckets:   prometheus.ExponentialBuckets(10e-9, 10, 10),
		}, []string{"name"}),
		unfinished: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "watchcache",
			Subsystem: workQueueSubsystem,
			Name:      unfinishedWorkKey,
			Help:      "How many seconds of work has been done that is in progress and hasn't been observed by work_duration.",
		}, []string{"name"}),
		longestRunningProcessor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "watchcache",
			Subsystem: workQueueSubsystem,
			Name:      longestRunningProcessorKey,
			Help:      "How many seconds has the longest running processor for workqueue been running.",
		}, []string{"name"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchcache",
			Subsystem: workQueueSubsystem,
			Name:      retriesKey,
			Help:      "Total number of retries handled by workqueue",
		}, []string{"name"}),
	}

	for _, c := range []prometheus.Collector{
		p.depth, p.adds, p.latency, p.workDuration, p.unfinished, p.longestRunningProcessor, p.retries,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *prometheusMetricsProvider) NewDepthMetric(name string) GaugeMetric {
	return p.depth.WithLabelValues(name)
}

func (p *prometheusMetricsProvider) NewAddsMetric(name string) CounterMetric {
	return p.adds.WithLabelValues(name)
}

func (p *prometheusMetricsProvider) NewLatencyMetric(name string) HistogramMetric {
	return p.latency.WithLabelValues(name)
}

func (p *prometheusMetricsProvider) NewWorkDurationMetric(name string) HistogramMetric {
	return p.workDuration.WithLabelValues(name)
}

func (p *prometheusMetricsProvider) NewUnfinishedWorkSecondsMetric(name string) SettableGaugeMetric {
	return p.unfinished.WithLabelValues(name)
}

func (p *prometheusMetricsProvider) NewLongestRunningProcessorSecondsMetric(name string) SettableGaugeMetric {
	return p.longestRunningProcessor.WithLabelValues(name)
}

func (p *prometheusMetricsProvider) NewRetriesMetric(name string) CounterMetric {
	return p.retries.WithLabelValues(name)
}
