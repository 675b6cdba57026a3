package informer

import (
	"errors"
	"sync"

	set "github.com/duke-git/lancet/v2/datastructure/set"
)

// ErrFIFOClosed 队列已关闭
var ErrFIFOClosed = errors.New("DeltaFIFO: manipulating with closed queue")

// KeyListerGetter 提供“已知对象”的查询，通常就是 informer 的 Indexer
type KeyListerGetter interface {
	ListKeys() []string
	GetByKey(key string) (value interface{}, exists bool, err error)
}

// PopProcessFunc 处理一个 key 的全部 delta。isInInitialList 表示这些 delta 属于第一次 Replace
type PopProcessFunc func(deltas Deltas, isInInitialList bool) error

// DeltaFIFOOptions DeltaFIFO 的构造参数
type DeltaFIFOOptions struct {
	// KeyFunction 默认 MetaNamespaceKeyFunc
	KeyFunction KeyFunc
	// KnownObjects 为 nil 时 Replace 不会生成删除，Delete 只对排队中的 key 生效
	KnownObjects KeyListerGetter
	// EmitDeltaTypeReplaced 为 true 时 Replace 对已知对象生成 Replaced 而不是 Sync
	EmitDeltaTypeReplaced bool
}

// DeltaFIFO 按 key 聚合变化的队列。
//
// 每个 key 在 queue 中最多出现一次，对应的 delta 按到达顺序保存在 items 中。
// Pop 一次取出一个 key 的全部 delta，调用方只能有一个 Pop 循环，否则同一 key 的顺序无法保证
type DeltaFIFO struct {
	lock sync.RWMutex
	cond sync.Cond

	items map[string]Deltas
	queue []string
	// processing 已被 Pop 取出、process 尚未返回的 delta。
	// 这段时间里对象可能还没写入 knownObjects，仍视为已知
	processing map[string]Deltas

	// populated 在第一次 Replace 或任意 Add/Update/Delete 之后为 true
	populated bool
	// initialPopulation 第一次 Replace 产生的、尚未处理完的 key
	initialPopulation set.Set[string]

	keyFunc               KeyFunc
	knownObjects          KeyListerGetter
	emitDeltaTypeReplaced bool

	closed bool
}

func NewDeltaFIFO(opts DeltaFIFOOptions) *DeltaFIFO {
	if opts.KeyFunction == nil {
		opts.KeyFunction = MetaNamespaceKeyFunc
	}
	f := &DeltaFIFO{
		items:                 map[string]Deltas{},
		queue:                 []string{},
		processing:            map[string]Deltas{},
		initialPopulation:     set.New[string](),
		keyFunc:               opts.KeyFunction,
		knownObjects:          opts.KnownObjects,
		emitDeltaTypeReplaced: opts.EmitDeltaTypeReplaced,
	}
	f.cond.L = &f.lock
	return f
}

// KeyOf 计算 key，支持 Deltas 和 DeletedFinalStateUnknown
func (f *DeltaFIFO) KeyOf(obj interface{}) (string, error) {
	if d, ok := obj.(Deltas); ok {
		if len(d) == 0 {
			return "", errors.New("0 length Deltas object; can't get key")
		}
		obj = d.Newest().Object
	}
	if d, ok := obj.(DeletedFinalStateUnknown); ok {
		return d.Key, nil
	}
	return f.keyFunc(obj)
}

// HasSynced 第一次 Replace 的所有 key 都已经被 Pop 并处理成功（或被合并掉）
func (f *DeltaFIFO) HasSynced() bool {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.populated && f.initialPopulation.Size() == 0
}

func (f *DeltaFIFO) Add(obj interface{}) error {
	id, err := f.KeyOf(obj)
	if err != nil {
		return KeyError{obj, err}
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.populated = true
	f.queueActionLocked(id, Delta{Type: Added, Object: obj})
	return nil
}

func (f *DeltaFIFO) Update(obj interface{}) error {
	id, err := f.KeyOf(obj)
	if err != nil {
		return KeyError{obj, err}
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.populated = true
	f.queueActionLocked(id, Delta{Type: Updated, Object: obj, OldObject: f.lastStateLocked(id)})
	return nil
}

// Delete 追加 Deleted delta。
// 既不在 knownObjects 中、也不在排队或处理中的 key 会被忽略；
// 只排着一个 Added 且尚未进入 knownObjects 的 key 直接从队列中移除
func (f *DeltaFIFO) Delete(obj interface{}) error {
	id, err := f.KeyOf(obj)
	if err != nil {
		return KeyError{obj, err}
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.populated = true

	pending, queued := f.items[id]
	known := f.isProcessingLiveLocked(id) || f.isKnownLocked(id)
	if !known && !queued {
		return nil
	}

	_, finalStateUnknown := obj.(DeletedFinalStateUnknown)
	if !known && !finalStateUnknown && len(pending) == 1 && pending[0].Type == Added {
		f.dropLocked(id)
		return nil
	}

	f.queueActionLocked(id, Delta{
		Type:                Deleted,
		Object:              obj,
		OldObject:           f.lastStateLocked(id),
		IsFinalStateUnknown: finalStateUnknown,
	})
	return nil
}

// Replace 用一次完整 list 的结果对齐队列：
// 列表中的 key 生成 Sync（已知）或 Added（新对象），
// 已知但不在列表中的 key 生成携带 DeletedFinalStateUnknown 的 Deleted
func (f *DeltaFIFO) Replace(list []interface{}, resourceVersion string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	action := Sync
	if f.emitDeltaTypeReplaced {
		action = Replaced
	}

	touched := set.New[string]()
	keys := set.New[string]()
	for _, item := range list {
		key, err := f.KeyOf(item)
		if err != nil {
			return KeyError{item, err}
		}
		keys.Add(key)

		t := action
		if !f.isKnownLocked(key) && !f.isPendingLiveLocked(key) && !f.isProcessingLiveLocked(key) {
			t = Added
		}
		f.queueActionLocked(key, Delta{Type: t, Object: item, Relist: true})
		touched.Add(key)
	}

	candidates := set.New[string]()
	for key := range f.items {
		candidates.Add(key)
	}
	for key := range f.processing {
		candidates.Add(key)
	}
	if f.knownObjects != nil {
		candidates.Add(f.knownObjects.ListKeys()...)
	}
	for key := range candidates {
		if keys.Contain(key) {
			continue
		}
		deletedObj, ok := f.liveStateLocked(key)
		if !ok {
			continue
		}
		f.queueActionLocked(key, Delta{
			Type:                Deleted,
			Object:              DeletedFinalStateUnknown{Key: key, Obj: deletedObj},
			IsFinalStateUnknown: true,
			Relist:              true,
		})
		touched.Add(key)
	}

	if !f.populated {
		f.populated = true
		f.initialPopulation = touched
	}
	return nil
}

// Resync 为所有没有排队 delta 的已知对象生成 Sync
func (f *DeltaFIFO) Resync() error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.knownObjects == nil {
		return nil
	}
	for _, key := range f.knownObjects.ListKeys() {
		if _, inFlight := f.processing[key]; inFlight || len(f.items[key]) > 0 {
			continue
		}
		obj, exists, err := f.knownObjects.GetByKey(key)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		f.queueActionLocked(key, Delta{Type: Sync, Object: obj})
	}
	return nil
}

// Pop 阻塞直到队列非空或关闭，取出最早的 key 及其全部 delta 并在锁外调用 process。
// process 返回错误时 delta 放回队首，并排在处理期间新到达的 delta 之前
func (f *DeltaFIFO) Pop(process PopProcessFunc) (Deltas, error) {
	f.lock.Lock()
	for len(f.queue) == 0 {
		if f.closed {
			f.lock.Unlock()
			return nil, ErrFIFOClosed
		}
		f.cond.Wait()
	}
	id := f.queue[0]
	f.queue = f.queue[1:]
	deltas := f.items[id]
	delete(f.items, id)
	isInInitialList := f.initialPopulation.Contain(id)
	f.processing[id] = deltas
	f.lock.Unlock()

	err := process(deltas, isInInitialList)

	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.processing, id)
	if err != nil {
		f.requeueLocked(id, deltas)
		return deltas, err
	}
	if isInInitialList {
		f.initialPopulation.Delete(id)
	}
	return deltas, nil
}

// Close 关闭队列，阻塞中的 Pop 返回 ErrFIFOClosed
func (f *DeltaFIFO) Close() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.closed = true
	f.cond.Broadcast()
}

func (f *DeltaFIFO) IsClosed() bool {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.closed
}

// List 返回每个排队 key 的最新对象
func (f *DeltaFIFO) List() []interface{} {
	f.lock.RLock()
	defer f.lock.RUnlock()
	list := make([]interface{}, 0, len(f.items))
	for _, deltas := range f.items {
		list = append(list, deltas.Newest().Object)
	}
	return list
}

// ListKeys 返回按出队顺序排列的 key
func (f *DeltaFIFO) ListKeys() []string {
	f.lock.RLock()
	defer f.lock.RUnlock()
	keys := make([]string, len(f.queue))
	copy(keys, f.queue)
	return keys
}

// GetByKey 返回 key 排队中的 delta 副本
func (f *DeltaFIFO) GetByKey(key string) (Deltas, bool) {
	f.lock.RLock()
	defer f.lock.RUnlock()
	d, exists := f.items[key]
	if !exists {
		return nil, false
	}
	return copyDeltas(d), true
}

// Len 排队中的 key 数量
func (f *DeltaFIFO) Len() int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return len(f.queue)
}

func (f *DeltaFIFO) queueActionLocked(id string, d Delta) {
	oldDeltas := f.items[id]
	newDeltas := make(Deltas, 0, len(oldDeltas)+1)
	newDeltas = append(newDeltas, oldDeltas...)
	newDeltas = append(newDeltas, d)
	newDeltas = dedupDeltas(newDeltas)

	if _, exists := f.items[id]; !exists {
		f.queue = append(f.queue, id)
	}
	f.items[id] = newDeltas
	f.cond.Broadcast()
}

func (f *DeltaFIFO) requeueLocked(id string, deltas Deltas) {
	arrived, exists := f.items[id]
	merged := make(Deltas, 0, len(deltas)+len(arrived))
	merged = append(merged, deltas...)
	merged = append(merged, arrived...)
	f.items[id] = dedupDeltas(merged)

	if exists {
		f.removeFromQueueLocked(id)
	}
	f.queue = append([]string{id}, f.queue...)
	f.cond.Broadcast()
}

// dropLocked 把 key 从队列中彻底移除
func (f *DeltaFIFO) dropLocked(id string) {
	delete(f.items, id)
	f.removeFromQueueLocked(id)
	f.initialPopulation.Delete(id)
}

func (f *DeltaFIFO) removeFromQueueLocked(id string) {
	for i, key := range f.queue {
		if key == id {
			f.queue = append(f.queue[:i], f.queue[i+1:]...)
			return
		}
	}
}

func (f *DeltaFIFO) isKnownLocked(id string) bool {
	if f.knownObjects == nil {
		return false
	}
	_, exists, err := f.knownObjects.GetByKey(id)
	return err == nil && exists
}

// isPendingLiveLocked key 有排队的 delta 且最新的一个不是删除
func (f *DeltaFIFO) isPendingLiveLocked(id string) bool {
	pending := f.items[id]
	return len(pending) > 0 && pending.Newest().Type != Deleted
}

// isProcessingLiveLocked key 正在被处理且最新的一个 delta 不是删除
func (f *DeltaFIFO) isProcessingLiveLocked(id string) bool {
	inFlight := f.processing[id]
	return len(inFlight) > 0 && inFlight.Newest().Type != Deleted
}

// liveStateLocked 返回 key 当前存活状态的对象：
// 依次取排队中的最新对象、正在处理的最新对象、knownObjects
func (f *DeltaFIFO) liveStateLocked(id string) (interface{}, bool) {
	for _, deltas := range []Deltas{f.items[id], f.processing[id]} {
		if len(deltas) == 0 {
			continue
		}
		newest := deltas.Newest()
		if newest.Type == Deleted {
			return nil, false
		}
		return newest.Object, true
	}
	if f.knownObjects == nil {
		return nil, false
	}
	obj, exists, err := f.knownObjects.GetByKey(id)
	if err != nil || !exists {
		return nil, false
	}
	return obj, true
}

// lastStateLocked 返回变化前的对象，无法确定时返回 nil
func (f *DeltaFIFO) lastStateLocked(id string) interface{} {
	obj, _ := f.liveStateLocked(id)
	return obj
}

// dedupDeltas 合并末尾两个连续的删除，优先保留显式删除
func dedupDeltas(deltas Deltas) Deltas {
	n := len(deltas)
	if n < 2 {
		return deltas
	}
	a := &deltas[n-1]
	b := &deltas[n-2]
	if out := isDeletionDup(a, b); out != nil {
		deltas[n-2] = *out
		return deltas[:n-1]
	}
	return deltas
}

func isDeletionDup(a, b *Delta) *Delta {
	if b.Type != Deleted || a.Type != Deleted {
		return nil
	}
	if a.IsFinalStateUnknown && !b.IsFinalStateUnknown {
		return b
	}
	return a
}
