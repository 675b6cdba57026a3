package informer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/duke-git/lancet/v2/random"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"watchcache/pkg/log"
)

// ReflectorState reflector 的状态
type ReflectorState int32

const (
	StateIdle ReflectorState = iota
	StateListing
	StateSyncing
	StateWatching
	StateStopped
)

func (s ReflectorState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateListing:
		return "Listing"
	case StateSyncing:
		return "Syncing"
	case StateWatching:
		return "Watching"
	case StateStopped:
		return "Stopped"
	}
	return fmt.Sprintf("ReflectorState(%d)", int32(s))
}

const (
	defaultMinWatchTimeout = 5 * time.Minute
	defaultInitialBackoff  = 800 * time.Millisecond
	defaultMaxBackoff      = 30 * time.Second
)

// ReflectorStore reflector 写入的目标，通常是 DeltaFIFO
type ReflectorStore interface {
	Add(obj interface{}) error
	Update(obj interface{}) error
	Delete(obj interface{}) error
	Replace(list []interface{}, resourceVersion string) error
	Resync() error
}

// ReflectorOptions reflector 的可选参数
type ReflectorOptions struct {
	// ResyncPeriod 为 0 时不做周期性 resync
	ResyncPeriod time.Duration
	// MinWatchTimeout 单次 watch 的超时在 [MinWatchTimeout, 2*MinWatchTimeout] 之间随机
	MinWatchTimeout time.Duration
	// InitialBackoff / MaxBackoff list 或 watch 失败后的指数退避区间
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Clock          clock.Clock
}

// Reflector 通过 List + Watch 把数据源的状态同步到 store。
// watch 结束后总是重新 list，由 Replace 的比对补齐断开期间丢失的事件
type Reflector struct {
	name          string
	listerWatcher ListerWatcher
	store         ReflectorStore
	logger        *log.Logger
	clock         clock.Clock

	resyncPeriod    time.Duration
	minWatchTimeout time.Duration
	backoff         *backoff.ExponentialBackOff

	// ShouldResync 返回 false 时跳过本轮 resync，为 nil 表示总是 resync
	ShouldResync func() bool

	state atomic.Int32

	lastSyncResourceVersion      string
	lastSyncResourceVersionMutex sync.RWMutex
}

func NewReflector(name string, lw ListerWatcher, store ReflectorStore, logger *log.Logger, opts ReflectorOptions) *Reflector {
	if logger == nil {
		logger = log.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.MinWatchTimeout <= 0 {
		opts.MinWatchTimeout = defaultMinWatchTimeout
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.InitialBackoff
	b.MaxInterval = opts.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	return &Reflector{
		name:            name,
		listerWatcher:   lw,
		store:           store,
		logger:          logger,
		clock:           opts.Clock,
		resyncPeriod:    opts.ResyncPeriod,
		minWatchTimeout: opts.MinWatchTimeout,
		backoff:         b,
	}
}

func (r *Reflector) Name() string {
	return r.name
}

func (r *Reflector) State() ReflectorState {
	return ReflectorState(r.state.Load())
}

func (r *Reflector) setState(s ReflectorState) {
	r.state.Store(int32(s))
}

// LastSyncResourceVersion 最近一次 list 或 watch 事件观察到的资源版本
func (r *Reflector) LastSyncResourceVersion() string {
	r.lastSyncResourceVersionMutex.RLock()
	defer r.lastSyncResourceVersionMutex.RUnlock()
	return r.lastSyncResourceVersion
}

func (r *Reflector) setLastSyncResourceVersion(v string) {
	r.lastSyncResourceVersionMutex.Lock()
	defer r.lastSyncResourceVersionMutex.Unlock()
	r.lastSyncResourceVersion = v
}

// Run 循环执行 ListAndWatch 直到 ctx 取消。
// 版本过期和 watch 正常结束立即重新 list，其他错误按指数退避后重试
func (r *Reflector) Run(ctx context.Context) {
	r.logger.Info("reflector started", zap.String("name", r.name))
	defer func() {
		r.setState(StateStopped)
		r.logger.Info("reflector stopped", zap.String("name", r.name))
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.resyncLoop(ctx)
	}()

	for {
		err := r.ListAndWatch(ctx)
		if ctx.Err() != nil {
			return
		}

		switch {
		case err == nil:
			r.logger.Debug("watch closed, relisting", zap.String("name", r.name))
		case IsResourceExpired(err):
			reflectorExpiredTotal.WithLabelValues(r.name).Inc()
			r.logger.Info("resource version expired, relisting",
				zap.String("name", r.name),
				zap.String("resourceVersion", r.LastSyncResourceVersion()),
				zap.Error(err))
		default:
			delay := r.backoff.NextBackOff()
			r.logger.Warn("list and watch failed",
				zap.String("name", r.name),
				zap.Duration("backoff", delay),
				zap.Error(err))
			if !r.sleep(ctx, delay) {
				return
			}
		}
	}
}

// ListAndWatch 执行一次 list，随后 watch 直到流结束。
// 流被数据源关闭时返回 nil
func (r *Reflector) ListAndWatch(ctx context.Context) error {
	if err := r.list(ctx); err != nil {
		return err
	}
	return r.watch(ctx)
}

func (r *Reflector) list(ctx context.Context) error {
	r.setState(StateListing)
	reflectorListsTotal.WithLabelValues(r.name).Inc()

	start := r.clock.Now()
	result, err := r.listerWatcher.List(ctx, ListOptions{ResourceVersion: ""})
	if err != nil {
		reflectorListErrorsTotal.WithLabelValues(r.name).Inc()
		return fmt.Errorf("failed to list %s: %w", r.name, err)
	}
	if result == nil {
		result = &ListResult{}
	}

	r.setState(StateSyncing)
	items := make([]interface{}, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, item)
	}
	if err := r.store.Replace(items, result.ResourceVersion); err != nil {
		return fmt.Errorf("unable to sync list result for %s: %w", r.name, err)
	}
	r.setLastSyncResourceVersion(result.ResourceVersion)
	r.backoff.Reset()

	reflectorLastListItems.WithLabelValues(r.name).Set(float64(len(items)))
	r.logger.Info("reflector list completed",
		zap.String("name", r.name),
		zap.Int("count", len(items)),
		zap.String("resourceVersion", result.ResourceVersion),
		zap.Duration("duration", r.clock.Since(start)))
	return nil
}

func (r *Reflector) watch(ctx context.Context) error {
	r.setState(StateWatching)
	reflectorWatchesTotal.WithLabelValues(r.name).Inc()

	minSeconds := int(r.minWatchTimeout / time.Second)
	if minSeconds < 1 {
		minSeconds = 1
	}
	opts := ListOptions{
		ResourceVersion:     r.LastSyncResourceVersion(),
		TimeoutSeconds:      int64(random.RandInt(minSeconds, 2*minSeconds+1)),
		AllowWatchBookmarks: true,
		Watch:               true,
	}
	w, err := r.listerWatcher.Watch(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", r.name, err)
	}
	defer w.Stop()

	return r.watchHandler(ctx, w)
}

func (r *Reflector) watchHandler(ctx context.Context, w Watcher) error {
	start := r.clock.Now()
	eventCount := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.ResultChan():
			if !ok {
				r.logger.Debug("watch closed",
					zap.String("name", r.name),
					zap.Int("events", eventCount),
					zap.Duration("duration", r.clock.Since(start)))
				return nil
			}
			reflectorWatchEventsTotal.WithLabelValues(r.name, string(event.Type)).Inc()

			if event.Type == EventError {
				return statusToError(event.Object)
			}
			obj, ok := event.Object.(Object)
			if !ok {
				r.logger.Error("unexpected watch event object",
					zap.String("name", r.name),
					zap.String("type", string(event.Type)),
					zap.String("object", fmt.Sprintf("%T", event.Object)))
				continue
			}

			var err error
			switch event.Type {
			case EventAdded:
				err = r.store.Add(obj)
			case EventModified:
				err = r.store.Update(obj)
			case EventDeleted:
				err = r.store.Delete(obj)
			case EventBookmark:
			default:
				r.logger.Error("unknown watch event type",
					zap.String("name", r.name),
					zap.String("type", string(event.Type)))
				continue
			}
			if err != nil {
				r.logger.Error("unable to apply watch event",
					zap.String("name", r.name),
					zap.String("type", string(event.Type)),
					zap.Error(err))
			}
			r.setLastSyncResourceVersion(obj.GetResourceVersion())
			eventCount++
		}
	}
}

func (r *Reflector) resyncLoop(ctx context.Context) {
	if r.resyncPeriod <= 0 {
		return
	}
	timer := r.clock.NewTimer(r.resyncPeriod)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
		}
		if r.ShouldResync == nil || r.ShouldResync() {
			r.logger.Debug("forcing resync", zap.String("name", r.name))
			if err := r.store.Resync(); err != nil {
				r.logger.Error("resync failed", zap.String("name", r.name), zap.Error(err))
			}
		}
		timer.Reset(r.resyncPeriod)
	}
}

func (r *Reflector) sleep(ctx context.Context, d time.Duration) bool {
	t := r.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C():
		return true
	}
}

var errUnexpectedWatchError = errors.New("unexpected watch error event")

func statusToError(obj interface{}) error {
	switch s := obj.(type) {
	case *Status:
		return &StatusError{ErrStatus: *s}
	case Status:
		return &StatusError{ErrStatus: s}
	case error:
		return s
	}
	return fmt.Errorf("%w: %v", errUnexpectedWatchError, obj)
}
