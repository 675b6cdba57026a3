package informer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"watchcache/pkg/log"
)

var (
	// ErrInformerStarted informer 启动后不能再添加索引
	ErrInformerStarted = errors.New("informer has already started")
	// ErrInformerStopped informer 因 ctx 取消而终止后不能再注册 handler
	ErrInformerStopped = errors.New("informer has already terminated")
)

// SharedInformer 一个数据源、一份缓存、多个 handler
type SharedInformer interface {
	// AddEventHandler 使用 informer 的默认 resync 周期注册 handler。
	// informer 已运行时，当前缓存中的对象会以 OnAdd(obj, true) 先回放给这个 handler
	AddEventHandler(handler ResourceEventHandler) (ResourceEventHandlerRegistration, error)
	AddEventHandlerWithResyncPeriod(handler ResourceEventHandler, resyncPeriod time.Duration) (ResourceEventHandlerRegistration, error)
	RemoveEventHandler(handle ResourceEventHandlerRegistration) error
	GetStore() Store
	// Run 阻塞直到 ctx 取消或 Stop 被调用
	Run(ctx context.Context)
	// Start 在后台运行
	Start(ctx context.Context)
	// Stop 优雅停止并等待所有协程退出
	Stop()
	HasSynced() bool
	HasStarted() bool
	IsStopped() bool
	LastSyncResourceVersion() string
}

// SharedIndexInformer 带索引缓存的 SharedInformer
type SharedIndexInformer interface {
	SharedInformer
	// AddIndexers 必须在启动前调用
	AddIndexers(indexers Indexers) error
	GetIndexer() Indexer
	Name() string
	ReflectorState() ReflectorState
}

// SharedIndexInformerOptions informer 的可选参数
type SharedIndexInformerOptions struct {
	// ResyncPeriod handler 的默认 resync 周期，0 表示不 resync
	ResyncPeriod time.Duration
	Indexers     Indexers
	// KeyFunc 默认 MetaNamespaceKeyFunc
	KeyFunc KeyFunc
	Clock   clock.Clock
	// EmitDeltaTypeReplaced 见 DeltaFIFOOptions
	EmitDeltaTypeReplaced bool

	MinWatchTimeout time.Duration
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
}

type sharedIndexInformer struct {
	name          string
	indexer       Indexer
	controller    Controller
	processor     *sharedProcessor
	listerWatcher ListerWatcher
	keyFunc       KeyFunc
	logger        *log.Logger
	clock         clock.Clock
	opts          SharedIndexInformerOptions

	// resyncCheckPeriod reflector 检查是否需要 resync 的周期
	resyncCheckPeriod               time.Duration
	defaultEventHandlerResyncPeriod time.Duration

	startedLock  sync.Mutex
	started      bool
	stopped      bool
	gracefulStop bool
	cancel       context.CancelFunc
	done         chan struct{}

	// blockDeltas 串行化 delta 处理和运行中注册 handler 的缓存回放
	blockDeltas sync.Mutex
}

func NewSharedIndexInformer(name string, lw ListerWatcher, logger *log.Logger, opts SharedIndexInformerOptions) SharedIndexInformer {
	if logger == nil {
		logger = log.NewNop()
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = MetaNamespaceKeyFunc
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Indexers == nil {
		opts.Indexers = Indexers{}
	}
	logger = logger.Named("informer").With(zap.String("informer", name))

	keyFunc := deletionHandlingKeyFunc(opts.KeyFunc)
	return &sharedIndexInformer{
		name:                            name,
		indexer:                         NewIndexer(keyFunc, opts.Indexers),
		processor:                       newSharedProcessor(opts.Clock, logger),
		listerWatcher:                   lw,
		keyFunc:                         keyFunc,
		logger:                          logger,
		clock:                           opts.Clock,
		opts:                            opts,
		resyncCheckPeriod:               opts.ResyncPeriod,
		defaultEventHandlerResyncPeriod: opts.ResyncPeriod,
		done:                            make(chan struct{}),
	}
}

func deletionHandlingKeyFunc(keyFunc KeyFunc) KeyFunc {
	return func(obj interface{}) (string, error) {
		if d, ok := obj.(DeletedFinalStateUnknown); ok {
			return d.Key, nil
		}
		return keyFunc(obj)
	}
}

func (s *sharedIndexInformer) Name() string {
	return s.name
}

func (s *sharedIndexInformer) Start(ctx context.Context) {
	go s.Run(ctx)
}

func (s *sharedIndexInformer) Run(ctx context.Context) {
	s.startedLock.Lock()
	if s.started {
		s.startedLock.Unlock()
		s.logger.Warn("informer has already started, run more than once is not allowed")
		return
	}
	if s.stopped {
		s.startedLock.Unlock()
		s.logger.Warn("informer has already stopped")
		return
	}

	fifo := NewDeltaFIFO(DeltaFIFOOptions{
		KeyFunction:           s.keyFunc,
		KnownObjects:          s.indexer,
		EmitDeltaTypeReplaced: s.opts.EmitDeltaTypeReplaced,
	})
	s.controller = NewController(Config{
		Name:          s.name,
		Queue:         fifo,
		ListerWatcher: s.listerWatcher,
		Process:       s.handleDeltas,
		ShouldResync:  s.processor.shouldResync,
		ReflectorOptions: ReflectorOptions{
			ResyncPeriod:    s.resyncCheckPeriod,
			MinWatchTimeout: s.opts.MinWatchTimeout,
			InitialBackoff:  s.opts.InitialBackoff,
			MaxBackoff:      s.opts.MaxBackoff,
			Clock:           s.clock,
		},
		Logger: s.logger,
	})
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	// listener 必须在第一次分发之前启动；started 为 true 时 processor 一定已启动或已停止
	s.processor.start()
	s.started = true
	s.startedLock.Unlock()

	s.logger.Info("informer started", zap.Duration("resyncCheckPeriod", s.resyncCheckPeriod))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-runCtx.Done()
		s.processor.stop()
	}()

	s.controller.Run(runCtx)
	cancel()
	wg.Wait()

	s.startedLock.Lock()
	s.stopped = true
	graceful := s.gracefulStop
	s.startedLock.Unlock()
	close(s.done)

	s.logger.Info("informer stopped", zap.Bool("graceful", graceful))
}

func (s *sharedIndexInformer) Stop() {
	s.startedLock.Lock()
	s.gracefulStop = true
	if !s.started {
		s.stopped = true
		s.startedLock.Unlock()
		return
	}
	cancel := s.cancel
	s.startedLock.Unlock()

	cancel()
	<-s.done
}

func (s *sharedIndexInformer) HasStarted() bool {
	s.startedLock.Lock()
	defer s.startedLock.Unlock()
	return s.started
}

func (s *sharedIndexInformer) IsStopped() bool {
	s.startedLock.Lock()
	defer s.startedLock.Unlock()
	return s.stopped
}

func (s *sharedIndexInformer) HasSynced() bool {
	s.startedLock.Lock()
	defer s.startedLock.Unlock()
	if s.controller == nil {
		return false
	}
	return s.controller.HasSynced()
}

func (s *sharedIndexInformer) LastSyncResourceVersion() string {
	s.startedLock.Lock()
	defer s.startedLock.Unlock()
	if s.controller == nil {
		return ""
	}
	return s.controller.LastSyncResourceVersion()
}

func (s *sharedIndexInformer) ReflectorState() ReflectorState {
	s.startedLock.Lock()
	defer s.startedLock.Unlock()
	if s.controller == nil {
		if s.stopped {
			return StateStopped
		}
		return StateIdle
	}
	return s.controller.ReflectorState()
}

func (s *sharedIndexInformer) GetStore() Store {
	return s.indexer
}

func (s *sharedIndexInformer) GetIndexer() Indexer {
	return s.indexer
}

func (s *sharedIndexInformer) AddIndexers(indexers Indexers) error {
	s.startedLock.Lock()
	defer s.startedLock.Unlock()
	if s.started {
		return ErrInformerStarted
	}
	return s.indexer.AddIndexers(indexers)
}

func (s *sharedIndexInformer) AddEventHandler(handler ResourceEventHandler) (ResourceEventHandlerRegistration, error) {
	return s.AddEventHandlerWithResyncPeriod(handler, s.defaultEventHandlerResyncPeriod)
}

func (s *sharedIndexInformer) AddEventHandlerWithResyncPeriod(handler ResourceEventHandler, resyncPeriod time.Duration) (ResourceEventHandlerRegistration, error) {
	s.startedLock.Lock()

	if s.gracefulStop {
		s.startedLock.Unlock()
		return s.stoppedRegistration()
	}
	if s.stopped {
		s.startedLock.Unlock()
		return nil, ErrInformerStopped
	}

	if resyncPeriod > 0 {
		if resyncPeriod < minimumResyncPeriod {
			s.logger.Warn("resyncPeriod is too small, changing it to the minimum allowed value",
				zap.Duration("resyncPeriod", resyncPeriod),
				zap.Duration("minimum", minimumResyncPeriod))
			resyncPeriod = minimumResyncPeriod
		}

		if resyncPeriod < s.resyncCheckPeriod {
			if s.started {
				s.logger.Warn("resyncPeriod is smaller than resyncCheckPeriod and the informer has already started, changing it to resyncCheckPeriod",
					zap.Duration("resyncPeriod", resyncPeriod),
					zap.Duration("resyncCheckPeriod", s.resyncCheckPeriod))
				resyncPeriod = s.resyncCheckPeriod
			} else {
				s.resyncCheckPeriod = resyncPeriod
				s.processor.resyncCheckPeriodChanged(resyncPeriod)
			}
		}
	}

	listener := newProcessListener(handler, resyncPeriod, determineResyncPeriod(resyncPeriod, s.resyncCheckPeriod),
		s.clock.Now(), initialBufferSize, s.HasSynced, s.logger)

	if !s.started {
		handle, _ := s.processor.addListener(listener)
		s.startedLock.Unlock()
		return handle, nil
	}
	s.startedLock.Unlock()

	// 运行中注册：回放缓存期间暂停 delta 处理，保证新 handler 不会漏掉或重复收到变化
	s.blockDeltas.Lock()
	handle, ok := s.processor.addListener(listener, s.indexer.List()...)
	s.blockDeltas.Unlock()
	if ok {
		return handle, nil
	}

	// processor 已停止而 Run 还没有退出
	s.startedLock.Lock()
	graceful := s.gracefulStop
	s.startedLock.Unlock()
	if graceful {
		return s.stoppedRegistration()
	}
	return nil, ErrInformerStopped
}

// stoppedRegistration 调用过 Stop 之后注册的 handler 不会收到任何通知
func (s *sharedIndexInformer) stoppedRegistration() (ResourceEventHandlerRegistration, error) {
	s.logger.Warn("handler was not added to shared informer because it has stopped already")
	return noopRegistration{}, nil
}

func (s *sharedIndexInformer) RemoveEventHandler(handle ResourceEventHandlerRegistration) error {
	s.startedLock.Lock()
	defer s.startedLock.Unlock()

	if _, ok := handle.(noopRegistration); ok {
		return nil
	}

	s.blockDeltas.Lock()
	defer s.blockDeltas.Unlock()
	return s.processor.removeListener(handle)
}

// handleDeltas 把一个 key 的 delta 依次应用到 indexer 并分发通知
func (s *sharedIndexInformer) handleDeltas(deltas Deltas, isInInitialList bool) error {
	s.blockDeltas.Lock()
	defer s.blockDeltas.Unlock()

	for _, d := range deltas {
		obj := d.Object
		switch d.Type {
		case Sync, Replaced, Added, Updated:
			old, exists, err := s.indexer.Get(obj)
			if err != nil {
				return err
			}
			if exists {
				if err := s.indexer.Update(obj); err != nil {
					return err
				}
				isSync := (d.Type == Sync || d.Type == Replaced) && sameResourceVersion(old, obj)
				s.processor.distribute(updateNotification{oldObj: old, newObj: obj}, isSync)
			} else {
				if err := s.indexer.Add(obj); err != nil {
					return err
				}
				s.processor.distribute(addNotification{newObj: obj, isInInitialList: isInInitialList}, false)
			}
		case Deleted:
			if err := s.indexer.Delete(obj); err != nil {
				return err
			}
			s.processor.distribute(deleteNotification{oldObj: obj}, false)
		}
	}
	return nil
}

func sameResourceVersion(a, b interface{}) bool {
	ao, ok := a.(Object)
	if !ok {
		return false
	}
	bo, ok := b.(Object)
	if !ok {
		return false
	}
	return ao.GetResourceVersion() == bo.GetResourceVersion()
}

type noopRegistration struct{}

func (noopRegistration) HasSynced() bool { return false }

// InformerSynced 报告 informer 或 handler 是否已同步
type InformerSynced func() bool

const syncedPollPeriod = 100 * time.Millisecond

// WaitForCacheSync 等待所有 cacheSyncs 返回 true，ctx 取消时返回 false
func WaitForCacheSync(ctx context.Context, cacheSyncs ...InformerSynced) bool {
	ticker := time.NewTicker(syncedPollPeriod)
	defer ticker.Stop()
	for {
		synced := true
		for _, syncFunc := range cacheSyncs {
			if !syncFunc() {
				synced = false
				break
			}
		}
		if synced {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// WaitForNamedCacheSync 带日志的 WaitForCacheSync
func WaitForNamedCacheSync(ctx context.Context, controllerName string, logger *log.Logger, cacheSyncs ...InformerSynced) bool {
	logger.Info("waiting for caches to sync", zap.String("controller", controllerName))
	if !WaitForCacheSync(ctx, cacheSyncs...) {
		logger.Error("unable to sync caches", zap.String("controller", controllerName))
		return false
	}
	logger.Info("caches are synced", zap.String("controller", controllerName))
	return true
}
