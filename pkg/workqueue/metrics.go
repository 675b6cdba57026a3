package workqueue

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// GaugeMetric 可增减的指标
type GaugeMetric interface {
	Inc()
	Dec()
}

// SettableGaugeMetric 可直接设置的指标
type SettableGaugeMetric interface {
	Set(float64)
}

// CounterMetric 计数
type CounterMetric interface {
	Inc()
}

// HistogramMetric 观测值分布
type HistogramMetric interface {
	Observe(float64)
}

// MetricsProvider 为每个命名队列创建指标
type MetricsProvider interface {
	NewDepthMetric(name string) GaugeMetric
	NewAddsMetric(name string) CounterMetric
	NewLatencyMetric(name string) HistogramMetric
	NewWorkDurationMetric(name string) HistogramMetric
	NewUnfinishedWorkSecondsMetric(name string) SettableGaugeMetric
	NewLongestRunningProcessorSecondsMetric(name string) SettableGaugeMetric
	NewRetriesMetric(name string) CounterMetric
}

type noopMetric struct{}

func (noopMetric) Inc()            {}
func (noopMetric) Dec()            {}
func (noopMetric) Set(float64)     {}
func (noopMetric) Observe(float64) {}

type noopMetricsProvider struct{}

func (noopMetricsProvider) NewDepthMetric(string) GaugeMetric            { return noopMetric{} }
func (noopMetricsProvider) NewAddsMetric(string) CounterMetric           { return noopMetric{} }
func (noopMetricsProvider) NewLatencyMetric(string) HistogramMetric      { return noopMetric{} }
func (noopMetricsProvider) NewWorkDurationMetric(string) HistogramMetric { return noopMetric{} }
func (noopMetricsProvider) NewUnfinishedWorkSecondsMetric(string) SettableGaugeMetric {
	return noopMetric{}
}
func (noopMetricsProvider) NewLongestRunningProcessorSecondsMetric(string) SettableGaugeMetric {
	return noopMetric{}
}
func (noopMetricsProvider) NewRetriesMetric(string) CounterMetric { return noopMetric{} }

var (
	providerMu     sync.Mutex
	globalProvider MetricsProvider = noopMetricsProvider{}
	providerSet    bool
)

// SetProvider 设置默认的 MetricsProvider，只有第一次调用生效，必须在创建队列之前调用
func SetProvider(p MetricsProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	if providerSet {
		return
	}
	globalProvider = p
	providerSet = true
}

func globalMetricsProvider() MetricsProvider {
	providerMu.Lock()
	defer providerMu.Unlock()
	return globalProvider
}

// queueMetrics 队列内部使用的指标
type queueMetrics[T comparable] interface {
	add(item T)
	get(item T)
	done(item T)
	updateUnfinishedWork()
}

type noMetrics[T comparable] struct{}

func (noMetrics[T]) add(item T)            {}
func (noMetrics[T]) get(item T)            {}
func (noMetrics[T]) done(item T)           {}
func (noMetrics[T]) updateUnfinishedWork() {}

type defaultQueueMetrics[T comparable] struct {
	clock clock.Clock

	depth                   GaugeMetric
	adds                    CounterMetric
	latency                 HistogramMetric
	workDuration            HistogramMetric
	unfinishedWorkSeconds   SettableGaugeMetric
	longestRunningProcessor SettableGaugeMetric

	addTimes             map[T]time.Time
	processingStartTimes map[T]time.Time
}

func newQueueMetrics[T comparable](mp MetricsProvider, name string, clock clock.Clock) queueMetrics[T] {
	if len(name) == 0 {
		return noMetrics[T]{}
	}
	if _, ok := mp.(noopMetricsProvider); ok {
		return noMetrics[T]{}
	}
	return &defaultQueueMetrics[T]{
		clock:                   clock,
		depth:                   mp.NewDepthMetric(name),
		adds:                    mp.NewAddsMetric(name),
		latency:                 mp.NewLatencyMetric(name),
		workDuration:            mp.NewWorkDurationMetric(name),
		unfinishedWorkSeconds:   mp.NewUnfinishedWorkSecondsMetric(name),
		longestRunningProcessor: mp.NewLongestRunningProcessorSecondsMetric(name),
		addTimes:                map[T]time.Time{},
		processingStartTimes:    map[T]time.Time{},
	}
}

func (m *defaultQueueMetrics[T]) add(item T) {
	m.adds.Inc()
	m.depth.Inc()
	if _, exists := m.addTimes[item]; !exists {
		m.addTimes[item] = m.clock.Now()
	}
}

func (m *defaultQueueMetrics[T]) get(item T) {
	m.depth.Dec()
	m.processingStartTimes[item] = m.clock.Now()
	if startTime, exists := m.addTimes[item]; exists {
		m.latency.Observe(m.clock.Since(startTime).Seconds())
		delete(m.addTimes, item)
	}
}

func (m *defaultQueueMetrics[T]) done(item T) {
	if startTime, exists := m.processingStartTimes[item]; exists {
		m.workDuration.Observe(m.clock.Since(startTime).Seconds())
		delete(m.processingStartTimes, item)
	}
}

func (m *defaultQueueMetrics[T]) updateUnfinishedWork() {
	var total float64
	var oldest float64
	for _, t := range m.processingStartTimes {
		age := m.clock.Since(t).Seconds()
		total += age
		if age > oldest {
			oldest = age
		}
	}
	m.unfinishedWorkSeconds.Set(total)
	m.longestRunningProcessor.Set(oldest)
}

// retryMetrics AddAfter / AddRateLimited 的次数
type retryMetrics interface {
	retry()
}

type noRetryMetrics struct{}

func (noRetryMetrics) retry() {}

type defaultRetryMetrics struct {
	retries CounterMetric
}

func (m *defaultRetryMetrics) retry() {
	m.retries.Inc()
}

func newRetryMetrics(mp MetricsProvider, name string) retryMetrics {
	if len(name) == 0 {
		return noRetryMetrics{}
	}
	if _, ok := mp.(noopMetricsProvider); ok {
		return noRetryMetrics{}
	}
	return &defaultRetryMetrics{retries: mp.NewRetriesMetric(name)}
}
