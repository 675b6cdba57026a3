package workqueue

import (
	"container/heap"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// DelayingInterface 支持延迟入队
type DelayingInterface[T comparable] interface {
	Interface[T]
	// AddAfter 在 duration 之后把 item 加入队列，duration <= 0 时立即加入
	AddAfter(item T, duration time.Duration)
}

// DelayingQueueConfig 延迟队列配置
type DelayingQueueConfig[T comparable] struct {
	Name            string
	MetricsProvider MetricsProvider
	Clock           clock.WithTicker
	// Queue 为空时创建新的基础队列
	Queue Interface[T]
}

// maxWait 等待循环的最长休眠时间
const maxWait = 10 * time.Second

func NewDelayingQueue[T comparable](name string) DelayingInterface[T] {
	return NewDelayingQueueWithConfig(DelayingQueueConfig[T]{Name: name})
}

func NewDelayingQueueWithConfig[T comparable](config DelayingQueueConfig[T]) DelayingInterface[T] {
	if config.Clock == nil {
		config.Clock = clock.RealClock{}
	}
	if config.MetricsProvider == nil {
		config.MetricsProvider = globalMetricsProvider()
	}
	if config.Queue == nil {
		config.Queue = NewWithConfig[T](QueueConfig{
			Name:            config.Name,
			MetricsProvider: config.MetricsProvider,
			Clock:           config.Clock,
		})
	}
	return newDelayingQueue(config.Clock, config.Queue, config.Name, config.MetricsProvider)
}

func newDelayingQueue[T comparable](c clock.WithTicker, q Interface[T], name string, provider MetricsProvider) *delayingType[T] {
	ret := &delayingType[T]{
		Interface:       q,
		clock:           c,
		heartbeat:       c.NewTicker(maxWait),
		stopCh:          make(chan struct{}),
		waitingForAddCh: make(chan *waitFor[T], 1000),
		metrics:         newRetryMetrics(provider, name),
	}
	go ret.waitingLoop()
	return ret
}

type delayingType[T comparable] struct {
	Interface[T]

	clock clock.Clock

	stopCh   chan struct{}
	stopOnce sync.Once

	// heartbeat 保证等待循环至少每 maxWait 醒来一次
	heartbeat clock.Ticker

	waitingForAddCh chan *waitFor[T]

	metrics retryMetrics
}

type waitFor[T comparable] struct {
	data    T
	readyAt time.Time
	index   int
}

// waitForPriorityQueue 按 readyAt 排序的最小堆
type waitForPriorityQueue[T comparable] []*waitFor[T]

func (pq waitForPriorityQueue[T]) Len() int { return len(pq) }

func (pq waitForPriorityQueue[T]) Less(i, j int) bool {
	return pq[i].readyAt.Before(pq[j].readyAt)
}

func (pq waitForPriorityQueue[T]) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *waitForPriorityQueue[T]) Push(x interface{}) {
	n := len(*pq)
	item := x.(*waitFor[T])
	item.index = n
	*pq = append(*pq, item)
}

func (pq *waitForPriorityQueue[T]) Pop() interface{} {
	n := len(*pq)
	item := (*pq)[n-1]
	item.index = -1
	*pq = (*pq)[0:(n - 1)]
	return item
}

func (pq waitForPriorityQueue[T]) Peek() *waitFor[T] {
	return pq[0]
}

func (q *delayingType[T]) ShutDown() {
	q.stopOnce.Do(func() {
		q.Interface.ShutDown()
		close(q.stopCh)
		q.heartbeat.Stop()
	})
}

func (q *delayingType[T]) ShutDownWithDrain() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
		q.heartbeat.Stop()
	})
	q.Interface.ShutDownWithDrain()
}

func (q *delayingType[T]) AddAfter(item T, duration time.Duration) {
	if q.ShuttingDown() {
		return
	}

	q.metrics.retry()

	if duration <= 0 {
		q.Add(item)
		return
	}

	select {
	case <-q.stopCh:
	case q.waitingForAddCh <- &waitFor[T]{data: item, readyAt: q.clock.Now().Add(duration)}:
	}
}

func (q *delayingType[T]) waitingLoop() {
	never := make(<-chan time.Time)

	var nextReadyAtTimer clock.Timer

	waitingForQueue := &waitForPriorityQueue[T]{}
	heap.Init(waitingForQueue)

	waitingEntryByData := map[T]*waitFor[T]{}

	for {
		if q.Interface.ShuttingDown() {
			return
		}

		now := q.clock.Now()

		for waitingForQueue.Len() > 0 {
			entry := waitingForQueue.Peek()
			if entry.readyAt.After(now) {
				break
			}

			entry = heap.Pop(waitingForQueue).(*waitFor[T])
			q.Add(entry.data)
			delete(waitingEntryByData, entry.data)
		}

		nextReadyAt := never
		if waitingForQueue.Len() > 0 {
			if nextReadyAtTimer != nil {
				nextReadyAtTimer.Stop()
			}
			entry := waitingForQueue.Peek()
			nextReadyAtTimer = q.clock.NewTimer(entry.readyAt.Sub(now))
			nextReadyAt = nextReadyAtTimer.C()
		}

		select {
		case <-q.stopCh:
			return

		case <-q.heartbeat.C():

		case <-nextReadyAt:

		case waitEntry := <-q.waitingForAddCh:
			if waitEntry.readyAt.After(q.clock.Now()) {
				insert(waitingForQueue, waitingEntryByData, waitEntry)
			} else {
				q.Add(waitEntry.data)
			}

			drained := false
			for !drained {
				select {
				case waitEntry := <-q.waitingForAddCh:
					if waitEntry.readyAt.After(q.clock.Now()) {
						insert(waitingForQueue, waitingEntryByData, waitEntry)
					} else {
						q.Add(waitEntry.data)
					}
				default:
					drained = true
				}
			}
		}
	}
}

// insert 加入等待堆，同一个 item 只保留最早的 readyAt
func insert[T comparable](q *waitForPriorityQueue[T], knownEntries map[T]*waitFor[T], entry *waitFor[T]) {
	existing, exists := knownEntries[entry.data]
	if exists {
		if existing.readyAt.After(entry.readyAt) {
			existing.readyAt = entry.readyAt
			heap.Fix(q, existing.index)
		}
		return
	}

	heap.Push(q, entry)
	knownEntries[entry.data] = entry
}
