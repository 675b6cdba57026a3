package source

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"watchcache/internal/model"
	"watchcache/pkg/hash"
	"watchcache/pkg/informer"
	"watchcache/pkg/log"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

const defaultPollInterval = 5 * time.Second

// PollSource 把只能 list 的 HTTP 接口适配为 ListerWatcher。
// 集合版本号是列表内容的 MD5，对象版本号是对象内容 hash 的前 16 位
type PollSource struct {
	client       *Client
	kind         string
	path         string
	pollInterval time.Duration
	logger       *log.Logger

	mu sync.Mutex
	// 最近一次 List 的快照，watch 从这里开始比对
	lastVersion  string
	lastSnapshot map[string]*model.Resource
}

var _ informer.ListerWatcher = &PollSource{}

func NewPollSource(client *Client, kind, path string, pollInterval time.Duration, logger *log.Logger) *PollSource {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &PollSource{
		client:       client,
		kind:         kind,
		path:         path,
		pollInterval: pollInterval,
		logger:       logger.Named("poll-source").With(zap.String("kind", kind)),
	}
}

func (s *PollSource) fetch(ctx context.Context) (string, map[string]*model.Resource, error) {
	var items []*model.Resource
	if err := s.client.Get(ctx, s.path, &items); err != nil {
		return "", nil, fmt.Errorf("list %s: %w", s.kind, err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Key() < items[j].Key() })
	snapshot := make(map[string]*model.Resource, len(items))
	for _, item := range items {
		if item.Kind == "" {
			item.Kind = s.kind
		}
		item.Metadata.ResourceVersion = ""
		h, err := hash.CalculateResourceHash(item, hash.DefaultExcludeFields...)
		if err != nil {
			return "", nil, err
		}
		item.Metadata.ResourceVersion = h[:16]
		key, err := informer.MetaNamespaceKeyFunc(item)
		if err != nil {
			s.logger.Warn("skip object without key", zap.Error(err))
			continue
		}
		snapshot[key] = item
	}

	version, err := hash.CalculateVersion(items)
	if err != nil {
		return "", nil, err
	}
	return version, snapshot, nil
}

func (s *PollSource) List(ctx context.Context, _ informer.ListOptions) (*informer.ListResult, error) {
	version, snapshot, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastVersion = version
	s.lastSnapshot = snapshot
	s.mu.Unlock()

	items := make([]informer.Object, 0, len(snapshot))
	for _, obj := range snapshot {
		items = append(items, obj)
	}
	return &informer.ListResult{Items: items, ResourceVersion: version}, nil
}

// Watch 周期性重新 list 并与上一次快照比对。
// 只能从最近一次 List 或 Bookmark 的版本开始，否则返回 Expired
func (s *PollSource) Watch(ctx context.Context, opts informer.ListOptions) (informer.Watcher, error) {
	s.mu.Lock()
	version, snapshot := s.lastVersion, s.lastSnapshot
	s.mu.Unlock()

	w := &pollWatcher{
		result: make(chan informer.Event),
		done:   make(chan struct{}),
		tick:   make(chan struct{}, 1),
	}
	w.ctx, w.cancel = context.WithCancel(ctx)

	if snapshot == nil || opts.ResourceVersion != version {
		go func() {
			defer close(w.done)
			defer close(w.result)
			w.send(informer.Event{
				Type:   informer.EventError,
				Object: informer.NewExpiredStatus(fmt.Sprintf("resource version %q is not the latest snapshot", opts.ResourceVersion)),
			})
		}()
		return w, nil
	}

	scheduler := gocron.NewScheduler(time.UTC)
	_, err := scheduler.Every(s.pollInterval).SingletonMode().WaitForSchedule().Do(func() {
		select {
		case w.tick <- struct{}{}:
		default:
		}
	})
	if err != nil {
		w.cancel()
		return nil, fmt.Errorf("schedule poll for %s: %w", s.kind, err)
	}
	scheduler.StartAsync()

	var timeout time.Duration
	if opts.TimeoutSeconds > 0 {
		timeout = time.Duration(opts.TimeoutSeconds) * time.Second
	}
	go w.run(s, scheduler, version, snapshot, timeout)
	return w, nil
}

type pollWatcher struct {
	ctx    context.Context
	cancel context.CancelFunc
	result chan informer.Event
	done   chan struct{}
	tick   chan struct{}
	once   sync.Once
}

func (w *pollWatcher) ResultChan() <-chan informer.Event {
	return w.result
}

func (w *pollWatcher) Stop() {
	w.once.Do(w.cancel)
	<-w.done
}

func (w *pollWatcher) send(ev informer.Event) bool {
	select {
	case <-w.ctx.Done():
		return false
	case w.result <- ev:
		return true
	}
}

func (w *pollWatcher) run(s *PollSource, scheduler *gocron.Scheduler, version string, snapshot map[string]*model.Resource, timeout time.Duration) {
	defer close(w.done)
	defer close(w.result)
	defer scheduler.Stop()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-timeoutCh:
			return
		case <-w.tick:
		}

		newVersion, newSnapshot, err := s.fetch(w.ctx)
		if err != nil {
			s.logger.Warn("poll failed", zap.Error(err))
			continue
		}
		if newVersion == version {
			continue
		}

		for _, ev := range diffSnapshots(snapshot, newSnapshot) {
			if !w.send(ev) {
				return
			}
		}

		s.mu.Lock()
		s.lastVersion = newVersion
		s.lastSnapshot = newSnapshot
		s.mu.Unlock()
		version, snapshot = newVersion, newSnapshot

		bookmark := &model.Resource{Kind: s.kind, Metadata: informer.ObjectMeta{ResourceVersion: version}}
		if !w.send(informer.Event{Type: informer.EventBookmark, Object: bookmark}) {
			return
		}
	}
}

// diffSnapshots 按 key 排序输出 Deleted / Added / Modified 事件
func diffSnapshots(oldSnapshot, newSnapshot map[string]*model.Resource) []informer.Event {
	keys := make([]string, 0, len(oldSnapshot)+len(newSnapshot))
	for key := range oldSnapshot {
		keys = append(keys, key)
	}
	for key := range newSnapshot {
		if _, ok := oldSnapshot[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var events []informer.Event
	for _, key := range keys {
		oldObj, existed := oldSnapshot[key]
		newObj, exists := newSnapshot[key]
		switch {
		case existed && !exists:
			events = append(events, informer.Event{Type: informer.EventDeleted, Object: oldObj})
		case !existed && exists:
			events = append(events, informer.Event{Type: informer.EventAdded, Object: newObj})
		case oldObj.Metadata.ResourceVersion != newObj.Metadata.ResourceVersion:
			events = append(events, informer.Event{Type: informer.EventModified, Object: newObj})
		}
	}
	return events
}
