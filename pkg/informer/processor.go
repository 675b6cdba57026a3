package informer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/buffer"
	"k8s.io/utils/clock"

	"watchcache/pkg/log"
)

const (
	// minimumResyncPeriod listener 可以请求的最小 resync 周期
	minimumResyncPeriod = 1 * time.Second

	initialBufferSize = 1024
)

type addNotification struct {
	newObj          interface{}
	isInInitialList bool
}

type updateNotification struct {
	oldObj interface{}
	newObj interface{}
}

type deleteNotification struct {
	oldObj interface{}
}

// ResourceEventHandlerRegistration AddEventHandler 返回的句柄
type ResourceEventHandlerRegistration interface {
	// HasSynced informer 已同步，且初始列表中的对象都已交给 handler
	HasSynced() bool
}

// sharedProcessor 把通知分发给所有 listener。
// listeners 的值表示该 listener 本轮是否需要 resync，由 shouldResync 设置，新 listener 为 false
type sharedProcessor struct {
	listenersStarted bool
	// shutdown stop 之后不再接受新的 listener
	shutdown         bool
	listenersLock    sync.RWMutex
	listeners        map[*processorListener]bool
	clock            clock.Clock
	logger           *log.Logger
	wg               sync.WaitGroup
}

func newSharedProcessor(clk clock.Clock, logger *log.Logger) *sharedProcessor {
	return &sharedProcessor{
		listeners: map[*processorListener]bool{},
		clock:     clk,
		logger:    logger,
	}
}

func (p *sharedProcessor) getListener(registration ResourceEventHandlerRegistration) *processorListener {
	p.listenersLock.RLock()
	defer p.listenersLock.RUnlock()

	if result, ok := registration.(*processorListener); ok {
		if _, exists := p.listeners[result]; exists {
			return result
		}
	}
	return nil
}

// addListener 注册 listener，processor 已经 stop 时返回 false。
// listener 已启动时随后按顺序投递 replay 中的对象作为初始列表
func (p *sharedProcessor) addListener(listener *processorListener, replay ...interface{}) (ResourceEventHandlerRegistration, bool) {
	p.listenersLock.Lock()
	defer p.listenersLock.Unlock()

	if p.shutdown {
		return nil, false
	}
	p.listeners[listener] = false
	if p.listenersStarted {
		p.startListenerLocked(listener)
		for _, item := range replay {
			listener.add(addNotification{newObj: item, isInInitialList: true})
		}
	}
	return listener, true
}

func (p *sharedProcessor) removeListener(handle ResourceEventHandlerRegistration) error {
	p.listenersLock.Lock()
	defer p.listenersLock.Unlock()

	listener, ok := handle.(*processorListener)
	if !ok {
		return fmt.Errorf("invalid event handler registration type %T", handle)
	}
	if _, exists := p.listeners[listener]; !exists {
		return nil
	}
	delete(p.listeners, listener)
	if p.listenersStarted {
		close(listener.addCh)
	}
	return nil
}

func (p *sharedProcessor) startListenerLocked(listener *processorListener) {
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		listener.run()
	}()
	go func() {
		defer p.wg.Done()
		listener.pop()
	}()
}

// distribute 非 sync 通知发给所有 listener，sync 通知只发给本轮需要 resync 的 listener
func (p *sharedProcessor) distribute(obj interface{}, sync bool) {
	p.listenersLock.RLock()
	defer p.listenersLock.RUnlock()

	for listener, isSyncing := range p.listeners {
		switch {
		case !sync:
			listener.add(obj)
		case isSyncing:
			listener.add(obj)
		}
	}
}

// run 启动所有已注册的 listener，ctx 取消后关闭它们并等待退出
func (p *sharedProcessor) run(ctx context.Context) {
	p.start()
	<-ctx.Done()
	p.stop()
}

func (p *sharedProcessor) start() {
	p.listenersLock.Lock()
	defer p.listenersLock.Unlock()
	if p.shutdown {
		return
	}
	for listener := range p.listeners {
		p.startListenerLocked(listener)
	}
	p.listenersStarted = true
}

// stop 关闭所有 listener 的 addCh，pop 退出后 run 随之退出
func (p *sharedProcessor) stop() {
	p.listenersLock.Lock()
	defer p.listenersLock.Unlock()
	for listener := range p.listeners {
		close(listener.addCh)
	}
	p.listeners = map[*processorListener]bool{}
	p.listenersStarted = false
	p.shutdown = true

	p.wg.Wait()
}

// shouldResync 检查每个 listener 是否到期，并记录本轮参与 resync 的 listener
func (p *sharedProcessor) shouldResync() bool {
	p.listenersLock.Lock()
	defer p.listenersLock.Unlock()

	resyncNeeded := false
	now := p.clock.Now()
	for listener := range p.listeners {
		shouldResync := listener.shouldResync(now)
		p.listeners[listener] = shouldResync
		if shouldResync {
			resyncNeeded = true
			listener.determineNextResync(now)
		}
	}
	return resyncNeeded
}

func (p *sharedProcessor) resyncCheckPeriodChanged(resyncCheckPeriod time.Duration) {
	p.listenersLock.RLock()
	defer p.listenersLock.RUnlock()

	for listener := range p.listeners {
		listener.setResyncPeriod(determineResyncPeriod(listener.requestedResyncPeriod, resyncCheckPeriod))
	}
}

func (p *sharedProcessor) listenerCount() int {
	p.listenersLock.RLock()
	defer p.listenersLock.RUnlock()
	return len(p.listeners)
}

// processorListener 把通知转交给一个 handler。
// add 写入无缓冲的 addCh，pop 协程用可增长的环形缓冲暂存来不及处理的通知，
// run 协程按顺序调用 handler，慢 handler 只会让自己的缓冲变长
type processorListener struct {
	nextCh chan interface{}
	addCh  chan interface{}

	handler ResourceEventHandler
	logger  *log.Logger

	pendingNotifications *buffer.TypedRingGrowing[interface{}]

	upstreamHasSynced func() bool
	// pendingInitial 已分发但 handler 尚未处理完的初始列表通知
	pendingInitial atomic.Int64

	requestedResyncPeriod time.Duration
	resyncPeriod          time.Duration
	nextResync            time.Time
	resyncLock            sync.Mutex
}

func newProcessListener(handler ResourceEventHandler, requestedResyncPeriod, resyncPeriod time.Duration, now time.Time, bufferSize int, hasSynced func() bool, logger *log.Logger) *processorListener {
	ret := &processorListener{
		nextCh:                make(chan interface{}),
		addCh:                 make(chan interface{}),
		handler:               handler,
		logger:                logger,
		pendingNotifications:  buffer.NewTypedRingGrowing[interface{}](buffer.RingGrowingOptions{InitialSize: bufferSize}),
		upstreamHasSynced:     hasSynced,
		requestedResyncPeriod: requestedResyncPeriod,
		resyncPeriod:          resyncPeriod,
	}
	ret.determineNextResync(now)
	return ret
}

func (p *processorListener) HasSynced() bool {
	return p.upstreamHasSynced() && p.pendingInitial.Load() == 0
}

func (p *processorListener) add(notification interface{}) {
	if a, ok := notification.(addNotification); ok && a.isInInitialList {
		p.pendingInitial.Add(1)
	}
	p.addCh <- notification
}

func (p *processorListener) pop() {
	defer close(p.nextCh)

	var nextCh chan<- interface{}
	var notification interface{}
	for {
		select {
		case nextCh <- notification:
			var ok bool
			notification, ok = p.pendingNotifications.ReadOne()
			if !ok {
				nextCh = nil
			}
		case notificationToAdd, ok := <-p.addCh:
			if !ok {
				return
			}
			if notification == nil {
				notification = notificationToAdd
				nextCh = p.nextCh
			} else {
				p.pendingNotifications.WriteOne(notificationToAdd)
			}
		}
	}
}

func (p *processorListener) run() {
	for next := range p.nextCh {
		p.dispatch(next)
	}
}

// dispatch 调用 handler，handler panic 时跳过该通知
func (p *processorListener) dispatch(next interface{}) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("event handler panicked", zap.Any("panic", r), zap.String("notification", fmt.Sprintf("%T", next)))
		}
	}()

	switch notification := next.(type) {
	case updateNotification:
		p.handler.OnUpdate(notification.oldObj, notification.newObj)
	case addNotification:
		if notification.isInInitialList {
			defer p.pendingInitial.Add(-1)
		}
		p.handler.OnAdd(notification.newObj, notification.isInInitialList)
	case deleteNotification:
		p.handler.OnDelete(notification.oldObj)
	default:
		p.logger.Error("unrecognized notification", zap.String("type", fmt.Sprintf("%T", next)))
	}
}

func (p *processorListener) shouldResync(now time.Time) bool {
	p.resyncLock.Lock()
	defer p.resyncLock.Unlock()

	if p.resyncPeriod == 0 {
		return false
	}
	return now.After(p.nextResync) || now.Equal(p.nextResync)
}

func (p *processorListener) determineNextResync(now time.Time) {
	p.resyncLock.Lock()
	defer p.resyncLock.Unlock()
	p.nextResync = now.Add(p.resyncPeriod)
}

func (p *processorListener) setResyncPeriod(resyncPeriod time.Duration) {
	p.resyncLock.Lock()
	defer p.resyncLock.Unlock()
	p.resyncPeriod = resyncPeriod
}

// determineResyncPeriod listener 请求的周期不能小于 informer 的检查周期；任一为 0 表示不 resync
func determineResyncPeriod(desired, check time.Duration) time.Duration {
	if desired == 0 {
		return desired
	}
	if check == 0 {
		return 0
	}
	if desired < check {
		return check
	}
	return desired
}
