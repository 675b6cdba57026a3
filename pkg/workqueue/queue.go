// Package workqueue 提供去重、限速、延迟重试的工作队列
package workqueue

import (
	"sync"
	"time"

	set "github.com/duke-git/lancet/v2/datastructure/set"
	"k8s.io/utils/clock"
)

// Interface 基础队列。
// 同一个 item 在 Get 之后、Done 之前不会再被任何 worker 取到；
// 期间的 Add 只做标记，Done 时重新入队
type Interface[T comparable] interface {
	Add(item T)
	Len() int
	Get() (item T, shutdown bool)
	Done(item T)
	ShutDown()
	ShutDownWithDrain()
	ShuttingDown() bool
}

// QueueConfig 队列配置
type QueueConfig struct {
	// Name 用作指标标签，为空时不上报指标
	Name            string
	MetricsProvider MetricsProvider
	Clock           clock.WithTicker
}

const defaultUnfinishedWorkUpdatePeriod = 500 * time.Millisecond

// New 创建队列
func New[T comparable](name string) *Type[T] {
	return NewWithConfig[T](QueueConfig{Name: name})
}

func NewWithConfig[T comparable](config QueueConfig) *Type[T] {
	if config.Clock == nil {
		config.Clock = clock.RealClock{}
	}
	if config.MetricsProvider == nil {
		config.MetricsProvider = globalMetricsProvider()
	}
	return newQueue[T](config.Clock, newQueueMetrics[T](config.MetricsProvider, config.Name, config.Clock), defaultUnfinishedWorkUpdatePeriod)
}

func newQueue[T comparable](c clock.WithTicker, metrics queueMetrics[T], updatePeriod time.Duration) *Type[T] {
	t := &Type[T]{
		clock:                      c,
		dirty:                      set.New[T](),
		processing:                 set.New[T](),
		cond:                       sync.NewCond(&sync.Mutex{}),
		metrics:                    metrics,
		unfinishedWorkUpdatePeriod: updatePeriod,
	}
	// 没有指标时不需要周期性更新
	if _, ok := metrics.(noMetrics[T]); !ok {
		go t.updateUnfinishedWorkLoop()
	}
	return t
}

// Type 队列实现
type Type[T comparable] struct {
	// queue 决定处理顺序，其中的元素都在 dirty 中且不在 processing 中
	queue []T
	// dirty 需要处理的元素
	dirty set.Set[T]
	// processing 正在处理的元素，可能同时在 dirty 中
	processing set.Set[T]

	cond *sync.Cond

	shuttingDown bool
	drain        bool

	metrics queueMetrics[T]

	unfinishedWorkUpdatePeriod time.Duration
	clock                      clock.WithTicker
}

// Add 标记 item 需要处理
func (q *Type[T]) Add(item T) {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	if q.shuttingDown {
		return
	}
	if q.dirty.Contain(item) {
		return
	}

	q.metrics.add(item)

	q.dirty.Add(item)
	if q.processing.Contain(item) {
		return
	}

	q.queue = append(q.queue, item)
	q.cond.Signal()
}

// Len 等待处理的元素数量，不包含正在处理的元素
func (q *Type[T]) Len() int {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	return len(q.queue)
}

// Get 阻塞直到有元素可以处理。shutdown 为 true 时调用方应退出
func (q *Type[T]) Get() (item T, shutdown bool) {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	for len(q.queue) == 0 && !q.shuttingDown {
		q.cond.Wait()
	}
	if len(q.queue) == 0 {
		return item, true
	}

	item = q.queue[0]
	var zero T
	q.queue[0] = zero
	q.queue = q.queue[1:]

	q.metrics.get(item)

	q.processing.Add(item)
	q.dirty.Delete(item)

	return item, false
}

// Done 结束处理。处理期间被再次 Add 的元素在此时重新入队
func (q *Type[T]) Done(item T) {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()

	q.metrics.done(item)

	q.processing.Delete(item)
	if q.dirty.Contain(item) {
		q.queue = append(q.queue, item)
		q.cond.Signal()
	} else if q.processing.Size() == 0 {
		q.cond.Broadcast()
	}
}

// ShutDown 关闭队列，不再接受新元素，Get 在队列为空后返回 shutdown
func (q *Type[T]) ShutDown() {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()

	q.drain = false
	q.shuttingDown = true
	q.cond.Broadcast()
}

// ShutDownWithDrain 关闭队列并等待所有正在处理的元素 Done
func (q *Type[T]) ShutDownWithDrain() {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()

	q.drain = true
	q.shuttingDown = true
	q.cond.Broadcast()

	for q.processing.Size() != 0 && q.drain {
		q.cond.Wait()
	}
}

func (q *Type[T]) ShuttingDown() bool {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	return q.shuttingDown
}

func (q *Type[T]) updateUnfinishedWorkLoop() {
	t := q.clock.NewTicker(q.unfinishedWorkUpdatePeriod)
	defer t.Stop()
	for range t.C() {
		if !func() bool {
			q.cond.L.Lock()
			defer q.cond.L.Unlock()
			if !q.shuttingDown {
				q.metrics.updateUnfinishedWork()
				return true
			}
			return false
		}() {
			return
		}
	}
}
