package workqueue

import "sync"

type fakeMetric struct {
	mu  sync.Mutex
	val float64
	obs []float64
}

func (m *fakeMetric) Inc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.val++
}

func (m *fakeMetric) Dec() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.val--
}

func (m *fakeMetric) Set(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.val = v
}

func (m *fakeMetric) Observe(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obs = append(m.obs, v)
}

func (m *fakeMetric) value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.val
}

func (m *fakeMetric) observations() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.obs...)
}

type fakeProvider struct {
	depth      map[string]*fakeMetric
	adds       map[string]*fakeMetric
	latency    map[string]*fakeMetric
	duration   map[string]*fakeMetric
	unfinished map[string]*fakeMetric
	longest    map[string]*fakeMetric
	retries    map[string]*fakeMetric
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		depth:      map[string]*fakeMetric{},
		adds:       map[string]*fakeMetric{},
		latency:    map[string]*fakeMetric{},
		duration:   map[string]*fakeMetric{},
		unfinished: map[string]*fakeMetric{},
		longest:    map[string]*fakeMetric{},
		retries:    map[string]*fakeMetric{},
	}
}

func metricFor(m map[string]*fakeMetric, name string) *fakeMetric {
	metric := &fakeMetric{}
	m[name] = metric
	return metric
}

func (p *fakeProvider) NewDepthMetric(name string) GaugeMetric { return metricFor(p.depth, name) }
func (p *fakeProvider) NewAddsMetric(name string) CounterMetric { return metricFor(p.adds, name) }
func (p *fakeProvider) NewLatencyMetric(name string) HistogramMetric {
	return metricFor(p.latency, name)
}
func (p *fakeProvider) NewWorkDurationMetric(name string) HistogramMetric {
	return metricFor(p.duration, name)
}
func (p *fakeProvider) NewUnfinishedWorkSecondsMetric(name string) SettableGaugeMetric {
	return metricFor(p.unfinished, name)
}
func (p *fakeProvider) NewLongestRunningProcessorSecondsMetric(name string) SettableGaugeMetric {
	return metricFor(p.longest, name)
}
func (p *fakeProvider) NewRetriesMetric(name string) CounterMetric { return metricFor(p.retries, name) }
