package informer

// DeltaType 表示资源的变化类型
type DeltaType string

const (
	Added   DeltaType = "Added"
	Updated DeltaType = "Updated"
	Deleted DeltaType = "Deleted"
	// Sync 由周期性 resync 或 relist 时对已知对象生成
	Sync DeltaType = "Sync"
	// Replaced 仅在开启 EmitDeltaTypeReplaced 时代替 Replace 中的 Sync
	Replaced DeltaType = "Replaced"
	Bookmark DeltaType = "Bookmark"
)

// Delta 表示资源的一个变化
type Delta struct {
	Type   DeltaType
	Object interface{}
	// OldObject 在能确定时记录变化前的对象
	OldObject interface{}
	// IsFinalStateUnknown 为 true 表示删除是 relist 比对推断的，Object 为 DeletedFinalStateUnknown
	IsFinalStateUnknown bool
	// Relist 标记由 Replace 合成的 delta
	Relist bool
}

// Deltas 同一个 key 的变化列表，按到达顺序排列
type Deltas []Delta

// Oldest 返回最早的 delta，列表为空返回 nil
func (d Deltas) Oldest() *Delta {
	if len(d) > 0 {
		return &d[0]
	}
	return nil
}

// Newest 返回最新的 delta，列表为空返回 nil
func (d Deltas) Newest() *Delta {
	if n := len(d); n > 0 {
		return &d[n-1]
	}
	return nil
}

func copyDeltas(d Deltas) Deltas {
	d2 := make(Deltas, len(d))
	copy(d2, d)
	return d2
}

// DeletedFinalStateUnknown 在 relist 发现对象消失但没有收到删除事件时放入 Deleted delta，
// Obj 是最后一次观察到的状态，可能已过期
type DeletedFinalStateUnknown struct {
	Key string
	Obj interface{}
}

// ResourceEventHandler 处理资源变化通知。同一个 handler 的回调按顺序串行调用，
// 不应长时间阻塞，否则只会拖慢自己的队列
type ResourceEventHandler interface {
	OnAdd(obj interface{}, isInInitialList bool)
	OnUpdate(oldObj, newObj interface{})
	OnDelete(obj interface{})
}

// ResourceEventHandlerFuncs 按需实现部分回调的适配器
type ResourceEventHandlerFuncs struct {
	AddFunc    func(obj interface{})
	UpdateFunc func(oldObj, newObj interface{})
	DeleteFunc func(obj interface{})
}

func (r ResourceEventHandlerFuncs) OnAdd(obj interface{}, isInInitialList bool) {
	if r.AddFunc != nil {
		r.AddFunc(obj)
	}
}

func (r ResourceEventHandlerFuncs) OnUpdate(oldObj, newObj interface{}) {
	if r.UpdateFunc != nil {
		r.UpdateFunc(oldObj, newObj)
	}
}

func (r ResourceEventHandlerFuncs) OnDelete(obj interface{}) {
	if r.DeleteFunc != nil {
		r.DeleteFunc(obj)
	}
}

// FilteringResourceEventHandler 只把满足 FilterFunc 的对象交给 Handler。
// 更新时过滤结果变化会转换成 add / delete
type FilteringResourceEventHandler struct {
	FilterFunc func(obj interface{}) bool
	Handler    ResourceEventHandler
}

func (r FilteringResourceEventHandler) OnAdd(obj interface{}, isInInitialList bool) {
	if !r.FilterFunc(obj) {
		return
	}
	r.Handler.OnAdd(obj, isInInitialList)
}

func (r FilteringResourceEventHandler) OnUpdate(oldObj, newObj interface{}) {
	newer := r.FilterFunc(newObj)
	older := r.FilterFunc(oldObj)
	switch {
	case newer && older:
		r.Handler.OnUpdate(oldObj, newObj)
	case newer && !older:
		r.Handler.OnAdd(newObj, false)
	case !newer && older:
		r.Handler.OnDelete(oldObj)
	}
}

func (r FilteringResourceEventHandler) OnDelete(obj interface{}) {
	if !r.FilterFunc(obj) {
		return
	}
	r.Handler.OnDelete(obj)
}
