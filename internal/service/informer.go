package service

import (
	"context"
	"errors"
	"sort"

	v1 "watchcache/api/v1"
	"watchcache/pkg/informer"

	"go.uber.org/zap"
)

const watchBufferSize = 64

// InformerRegistry 按资源类型查找 informer，由 controller.MirrorController 实现
type InformerRegistry interface {
	Informer(kind string) (informer.SharedIndexInformer, bool)
	Kinds() []string
}

type InformerService interface {
	Healthz(ctx context.Context) *v1.HealthzData
	ListInformers(ctx context.Context) *v1.ListInformersData
	ListObjects(ctx context.Context, kind string, req *v1.ListObjectsRequest) (*v1.ListObjectsData, error)
	GetObject(ctx context.Context, kind, key string) (interface{}, error)
	// Watch 注册一个 handler，先回放缓存中的对象再推送后续变化，ctx 取消后注销
	Watch(ctx context.Context, kind string) (string, <-chan *v1.WatchEvent, error)
}

func NewInformerService(
	service *Service,
	registry InformerRegistry,
) InformerService {
	return &informerService{
		Service:  service,
		registry: registry,
	}
}

type informerService struct {
	*Service
	registry InformerRegistry
}

func (s *informerService) Healthz(ctx context.Context) *v1.HealthzData {
	data := &v1.HealthzData{Synced: true, Unsynced: []string{}}
	for _, kind := range s.registry.Kinds() {
		inf, ok := s.registry.Informer(kind)
		if !ok || !inf.HasSynced() {
			data.Synced = false
			data.Unsynced = append(data.Unsynced, kind)
		}
	}
	return data
}

func (s *informerService) ListInformers(ctx context.Context) *v1.ListInformersData {
	data := &v1.ListInformersData{Items: []v1.InformerStatus{}}
	for _, kind := range s.registry.Kinds() {
		inf, ok := s.registry.Informer(kind)
		if !ok {
			continue
		}
		indexes := make([]string, 0)
		for name := range inf.GetIndexer().GetIndexers() {
			indexes = append(indexes, name)
		}
		sort.Strings(indexes)
		data.Items = append(data.Items, v1.InformerStatus{
			Kind:                    kind,
			Synced:                  inf.HasSynced(),
			Stopped:                 inf.IsStopped(),
			ReflectorState:          inf.ReflectorState().String(),
			LastSyncResourceVersion: inf.LastSyncResourceVersion(),
			Count:                   len(inf.GetIndexer().ListKeys()),
			Indexes:                 indexes,
		})
	}
	return data
}

func (s *informerService) ListObjects(ctx context.Context, kind string, req *v1.ListObjectsRequest) (*v1.ListObjectsData, error) {
	inf, ok := s.registry.Informer(kind)
	if !ok {
		return nil, v1.ErrKindNotFound
	}
	indexer := inf.GetIndexer()

	var objs []interface{}
	if req.Index == "" {
		objs = indexer.List()
	} else {
		if _, exists := indexer.GetIndexers()[req.Index]; !exists {
			return nil, v1.ErrIndexNotFound
		}
		var err error
		objs, err = indexer.ByIndex(req.Index, req.Value)
		if err != nil {
			s.logger.WithContext(ctx).Error("indexer.ByIndex error", zap.String("kind", kind), zap.String("index", req.Index), zap.Error(err))
			return nil, v1.ErrInternalServerError
		}
	}

	sortByKey(objs)
	if objs == nil {
		objs = []interface{}{}
	}
	return &v1.ListObjectsData{Kind: kind, Total: len(objs), Items: objs}, nil
}

func (s *informerService) GetObject(ctx context.Context, kind, key string) (interface{}, error) {
	inf, ok := s.registry.Informer(kind)
	if !ok {
		return nil, v1.ErrKindNotFound
	}
	obj, exists, err := inf.GetIndexer().GetByKey(key)
	if err != nil {
		s.logger.WithContext(ctx).Error("indexer.GetByKey error", zap.String("kind", kind), zap.String("key", key), zap.Error(err))
		return nil, v1.ErrInternalServerError
	}
	if !exists {
		return nil, v1.ErrObjectNotFound
	}
	return obj, nil
}

func (s *informerService) Watch(ctx context.Context, kind string) (string, <-chan *v1.WatchEvent, error) {
	inf, ok := s.registry.Informer(kind)
	if !ok {
		return "", nil, v1.ErrKindNotFound
	}
	if inf.IsStopped() {
		return "", nil, v1.ErrServiceUnavailable
	}
	session, err := s.sid.GenString()
	if err != nil {
		return "", nil, err
	}

	events := make(chan *v1.WatchEvent, watchBufferSize)
	h := &watchHandler{session: session, events: events, done: ctx.Done()}
	reg, err := inf.AddEventHandler(h)
	if err != nil {
		if errors.Is(err, informer.ErrInformerStopped) {
			return "", nil, v1.ErrServiceUnavailable
		}
		return "", nil, err
	}
	logger := s.logger.WithContext(ctx).With(zap.String("kind", kind), zap.String("session", session))
	logger.Info("watch session started")

	go func() {
		<-ctx.Done()
		if err := inf.RemoveEventHandler(reg); err != nil {
			logger.Warn("remove watch handler failed", zap.Error(err))
			return
		}
		logger.Info("watch session closed")
	}()
	return session, events, nil
}

// watchHandler 把通知转换为 WatchEvent，消费方断开后丢弃
type watchHandler struct {
	session string
	events  chan<- *v1.WatchEvent
	done    <-chan struct{}
}

func (h *watchHandler) send(eventType string, obj interface{}, initial bool) {
	if d, ok := obj.(informer.DeletedFinalStateUnknown); ok {
		obj = d.Obj
	}
	key, _ := informer.DeletionHandlingMetaNamespaceKeyFunc(obj)
	select {
	case h.events <- &v1.WatchEvent{
		Session:       h.session,
		Type:          eventType,
		InInitialList: initial,
		Key:           key,
		Object:        obj,
	}:
	case <-h.done:
	}
}

func (h *watchHandler) OnAdd(obj interface{}, isInInitialList bool) {
	h.send(v1.WatchEventAdded, obj, isInInitialList)
}

func (h *watchHandler) OnUpdate(_, newObj interface{}) {
	h.send(v1.WatchEventModified, newObj, false)
}

func (h *watchHandler) OnDelete(obj interface{}) {
	h.send(v1.WatchEventDeleted, obj, false)
}

func sortByKey(objs []interface{}) {
	sort.Slice(objs, func(i, j int) bool {
		ki, _ := informer.MetaNamespaceKeyFunc(objs[i])
		kj, _ := informer.MetaNamespaceKeyFunc(objs[j])
		return ki < kj
	})
}
