// Package informertest 提供测试用的数据源
package informertest

import (
	"context"
	"sync"

	"watchcache/pkg/informer"
)

const defaultChanSize = 100

// FakeWatcher 由测试驱动的 Watcher
type FakeWatcher struct {
	result  chan informer.Event
	stopped bool
	sync.Mutex
}

func NewFakeWatcher() *FakeWatcher {
	return &FakeWatcher{result: make(chan informer.Event, defaultChanSize)}
}

func (f *FakeWatcher) ResultChan() <-chan informer.Event {
	return f.result
}

// Stop 关闭事件流，可重复调用
func (f *FakeWatcher) Stop() {
	f.Lock()
	defer f.Unlock()
	if !f.stopped {
		close(f.result)
		f.stopped = true
	}
}

func (f *FakeWatcher) IsStopped() bool {
	f.Lock()
	defer f.Unlock()
	return f.stopped
}

func (f *FakeWatcher) Add(obj informer.Object) {
	f.Action(informer.EventAdded, obj)
}

func (f *FakeWatcher) Modify(obj informer.Object) {
	f.Action(informer.EventModified, obj)
}

func (f *FakeWatcher) Delete(obj informer.Object) {
	f.Action(informer.EventDeleted, obj)
}

func (f *FakeWatcher) Bookmark(obj informer.Object) {
	f.Action(informer.EventBookmark, obj)
}

func (f *FakeWatcher) Error(status *informer.Status) {
	f.Action(informer.EventError, status)
}

// Action 发送任意事件，watcher 已停止时丢弃
func (f *FakeWatcher) Action(t informer.EventType, obj interface{}) {
	f.Lock()
	defer f.Unlock()
	if f.stopped {
		return
	}
	f.result <- informer.Event{Type: t, Object: obj}
}

// ListResponse 一次 List 调用的脚本化返回
type ListResponse struct {
	Result *informer.ListResult
	Err    error
}

// FakeListerWatcher 按脚本返回 List 结果，每次 Watch 创建新的 FakeWatcher 并通过 Watchers() 交给测试
type FakeListerWatcher struct {
	mu           sync.Mutex
	lists        []ListResponse
	listCalls    int
	watchErr     error
	listOptions  []informer.ListOptions
	watchOptions []informer.ListOptions
	watchers     chan *FakeWatcher
}

// NewFakeListerWatcher 脚本用完后重复最后一个返回
func NewFakeListerWatcher(lists ...ListResponse) *FakeListerWatcher {
	return &FakeListerWatcher{
		lists:    lists,
		watchers: make(chan *FakeWatcher, defaultChanSize),
	}
}

func (f *FakeListerWatcher) List(ctx context.Context, opts informer.ListOptions) (*informer.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listOptions = append(f.listOptions, opts)
	f.listCalls++
	if len(f.lists) == 0 {
		return &informer.ListResult{}, nil
	}
	resp := f.lists[0]
	if len(f.lists) > 1 {
		f.lists = f.lists[1:]
	}
	return resp.Result, resp.Err
}

func (f *FakeListerWatcher) Watch(ctx context.Context, opts informer.ListOptions) (informer.Watcher, error) {
	f.mu.Lock()
	f.watchOptions = append(f.watchOptions, opts)
	err := f.watchErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	w := NewFakeWatcher()
	f.watchers <- w
	return w, nil
}

// SetWatchError 之后的 Watch 调用都返回 err，传 nil 恢复
func (f *FakeListerWatcher) SetWatchError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchErr = err
}

// Watchers 每次 Watch 成功时发送新建的 watcher
func (f *FakeListerWatcher) Watchers() <-chan *FakeWatcher {
	return f.watchers
}

func (f *FakeListerWatcher) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *FakeListerWatcher) WatchOptions() []informer.ListOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]informer.ListOptions, len(f.watchOptions))
	copy(out, f.watchOptions)
	return out
}

// Pod 测试用的最小对象
type Pod struct {
	informer.ObjectMeta
	Phase string
}

func NewPod(namespace, name, resourceVersion string) *Pod {
	return &Pod{ObjectMeta: informer.ObjectMeta{Namespace: namespace, Name: name, ResourceVersion: resourceVersion}}
}

// ListOf 构造 ListResult
func ListOf(resourceVersion string, objs ...informer.Object) ListResponse {
	return ListResponse{Result: &informer.ListResult{Items: objs, ResourceVersion: resourceVersion}}
}
