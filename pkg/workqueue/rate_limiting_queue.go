package workqueue

import "k8s.io/utils/clock"

// RateLimitingInterface 按 RateLimiter 的节奏重新入队
type RateLimitingInterface[T comparable] interface {
	DelayingInterface[T]

	// AddRateLimited 在限速器允许时加入队列
	AddRateLimited(item T)

	// Forget 清除 item 的失败记录，处理成功后调用
	Forget(item T)

	// NumRequeues 返回 item 的重试次数
	NumRequeues(item T) int
}

type RateLimitingQueueConfig[T comparable] struct {
	Name            string
	MetricsProvider MetricsProvider
	Clock           clock.WithTicker
	// DelayingQueue 为空时创建新的延迟队列
	DelayingQueue DelayingInterface[T]
}

func NewRateLimitingQueue[T comparable](rateLimiter RateLimiter[T], name string) RateLimitingInterface[T] {
	return NewRateLimitingQueueWithConfig(rateLimiter, RateLimitingQueueConfig[T]{Name: name})
}

func NewRateLimitingQueueWithConfig[T comparable](rateLimiter RateLimiter[T], config RateLimitingQueueConfig[T]) RateLimitingInterface[T] {
	if config.Clock == nil {
		config.Clock = clock.RealClock{}
	}
	if config.DelayingQueue == nil {
		config.DelayingQueue = NewDelayingQueueWithConfig(DelayingQueueConfig[T]{
			Name:            config.Name,
			MetricsProvider: config.MetricsProvider,
			Clock:           config.Clock,
		})
	}
	return &rateLimitingType[T]{
		DelayingInterface: config.DelayingQueue,
		rateLimiter:       rateLimiter,
	}
}

type rateLimitingType[T comparable] struct {
	DelayingInterface[T]

	rateLimiter RateLimiter[T]
}

func (q *rateLimitingType[T]) AddRateLimited(item T) {
	q.DelayingInterface.AddAfter(item, q.rateLimiter.When(item))
}

func (q *rateLimitingType[T]) NumRequeues(item T) int {
	return q.rateLimiter.NumRequeues(item)
}

func (q *rateLimitingType[T]) Forget(item T) {
	q.rateLimiter.Forget(item)
}
