package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"watchcache/internal/model"
	"watchcache/internal/repository"
	"watchcache/internal/source"
	"watchcache/pkg/hash"
	"watchcache/pkg/informer"
	"watchcache/pkg/log"
	"watchcache/pkg/workqueue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	defaultWorkers    = 2
	defaultMaxRetries = 5
	// LabelIndexPrefix 按 label 建立的索引名前缀，例如 label:app
	LabelIndexPrefix = "label:"
)

// KindConfig 一种资源的数据源配置
type KindConfig struct {
	Name         string        `mapstructure:"name"`
	Source       string        `mapstructure:"source"` // redis / poll
	ResyncPeriod time.Duration `mapstructure:"resync_period"`
	URL          string        `mapstructure:"url"`
	Token        string        `mapstructure:"token"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// IndexLabels 为每个 label 建立一个 label:<name> 索引
	IndexLabels []string `mapstructure:"index_labels"`
}

// Options 控制器参数
type Options struct {
	Workers      int
	MaxRetries   int
	ResyncPeriod time.Duration
	RateLimiter  workqueue.RateLimiter[string]
	Registerer   prometheus.Registerer
}

// MirrorController 为每种资源运行一个 informer，把缓存的变化通过限速队列同步到数据库
type MirrorController struct {
	logger     *log.Logger
	recordRepo repository.ResourceRecordRepository
	queue      workqueue.RateLimitingInterface[string]
	informers  map[string]informer.SharedIndexInformer
	lock       sync.RWMutex
	workers    int
	maxRetries int
	wg         sync.WaitGroup
	cancel     context.CancelFunc
}

// NewMirrorController 根据 informer.kinds 配置创建数据源和 informer
func NewMirrorController(
	conf *viper.Viper,
	logger *log.Logger,
	recordRepo repository.ResourceRecordRepository,
	registerer prometheus.Registerer,
) (*MirrorController, error) {
	var kinds []KindConfig
	if err := conf.UnmarshalKey("informer.kinds", &kinds); err != nil {
		return nil, fmt.Errorf("parse informer.kinds: %w", err)
	}
	if len(kinds) == 0 {
		return nil, errors.New("no informer kinds configured")
	}

	var rdb *redis.Client
	sources := make(map[string]informer.ListerWatcher, len(kinds))
	for _, kind := range kinds {
		switch kind.Source {
		case "redis":
			if rdb == nil {
				var err error
				if rdb, err = repository.NewRedis(conf); err != nil {
					return nil, err
				}
			}
			sources[kind.Name] = source.NewRedisSource(rdb, conf.GetString("data.redis.prefix"), kind.Name,
				conf.GetDuration("informer.bookmark_interval"), logger)
		case "poll":
			client, err := source.NewClient(kind.URL, kind.Token, conf.GetDuration("informer.poll_timeout"))
			if err != nil {
				return nil, fmt.Errorf("kind %s: %w", kind.Name, err)
			}
			sources[kind.Name] = source.NewPollSource(client, kind.Name, "", kind.PollInterval, logger)
		default:
			return nil, fmt.Errorf("kind %s: unknown source %q", kind.Name, kind.Source)
		}
	}

	return NewMirrorControllerWithSources(logger, recordRepo, kinds, sources, Options{
		Workers:      conf.GetInt("informer.workers"),
		MaxRetries:   conf.GetInt("informer.max_retries"),
		ResyncPeriod: conf.GetDuration("informer.resync_period"),
		Registerer:   registerer,
	})
}

// NewMirrorControllerWithSources 使用给定的数据源创建控制器
func NewMirrorControllerWithSources(
	logger *log.Logger,
	recordRepo repository.ResourceRecordRepository,
	kinds []KindConfig,
	sources map[string]informer.ListerWatcher,
	opts Options,
) (*MirrorController, error) {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RateLimiter == nil {
		opts.RateLimiter = workqueue.DefaultControllerRateLimiter[string]()
	}

	queueConfig := workqueue.RateLimitingQueueConfig[string]{Name: "mirror"}
	if opts.Registerer != nil {
		provider, err := workqueue.NewPrometheusMetricsProvider(opts.Registerer)
		if err != nil {
			return nil, fmt.Errorf("register workqueue metrics: %w", err)
		}
		queueConfig.MetricsProvider = provider
		if err := informer.RegisterMetrics(opts.Registerer); err != nil {
			return nil, fmt.Errorf("register informer metrics: %w", err)
		}
	}

	c := &MirrorController{
		logger:     logger.Named("mirror"),
		recordRepo: recordRepo,
		queue:      workqueue.NewRateLimitingQueueWithConfig(opts.RateLimiter, queueConfig),
		informers:  make(map[string]informer.SharedIndexInformer, len(kinds)),
		workers:    opts.Workers,
		maxRetries: opts.MaxRetries,
	}

	for _, kind := range kinds {
		lw, ok := sources[kind.Name]
		if !ok {
			return nil, fmt.Errorf("no source for kind %s", kind.Name)
		}
		if _, exists := c.informers[kind.Name]; exists {
			return nil, fmt.Errorf("duplicate kind %s", kind.Name)
		}
		resync := kind.ResyncPeriod
		if resync == 0 {
			resync = opts.ResyncPeriod
		}
		indexers := informer.Indexers{informer.NamespaceIndex: informer.MetaNamespaceIndexFunc}
		for _, label := range kind.IndexLabels {
			indexers[LabelIndexPrefix+label] = model.LabelIndexFunc(label)
		}

		inf := informer.NewSharedIndexInformer(kind.Name, lw, logger, informer.SharedIndexInformerOptions{
			ResyncPeriod: resync,
			Indexers:     indexers,
		})
		if _, err := inf.AddEventHandler(c.eventHandler(kind.Name)); err != nil {
			return nil, err
		}
		c.informers[kind.Name] = inf
	}
	return c, nil
}

func (c *MirrorController) eventHandler(kind string) informer.ResourceEventHandler {
	enqueue := func(obj interface{}) {
		key, err := informer.DeletionHandlingMetaNamespaceKeyFunc(obj)
		if err != nil {
			c.logger.Error("failed to compute key", zap.String("kind", kind), zap.Error(err))
			return
		}
		c.queue.Add(kind + "/" + key)
	}
	return informer.ResourceEventHandlerFuncs{
		AddFunc:    enqueue,
		UpdateFunc: func(_, newObj interface{}) { enqueue(newObj) },
		DeleteFunc: enqueue,
	}
}

// Start 启动所有 informer，缓存同步后启动 worker，阻塞直到 ctx 取消
func (c *MirrorController) Start(ctx context.Context) error {
	c.logger.Info("starting mirror controller", zap.Strings("kinds", c.Kinds()), zap.Int("workers", c.workers))

	ctx, cancel := context.WithCancel(ctx)
	c.lock.Lock()
	c.cancel = cancel
	c.lock.Unlock()
	defer cancel()

	synced := make([]informer.InformerSynced, 0, len(c.informers))
	for _, inf := range c.snapshot() {
		inf.Start(ctx)
		synced = append(synced, inf.HasSynced)
	}

	if !informer.WaitForNamedCacheSync(ctx, "mirror", c.logger, synced...) {
		return ctx.Err()
	}

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for c.processNextWorkItem(ctx) {
			}
		}()
	}

	<-ctx.Done()
	return nil
}

// Stop 停止 informer，等待正在处理的 key 完成
func (c *MirrorController) Stop(ctx context.Context) error {
	c.logger.Info("stopping mirror controller")

	c.lock.RLock()
	cancel := c.cancel
	c.lock.RUnlock()
	if cancel != nil {
		cancel()
	}

	for _, inf := range c.snapshot() {
		inf.Stop()
	}
	c.queue.ShutDownWithDrain()
	c.wg.Wait()
	return nil
}

func (c *MirrorController) snapshot() []informer.SharedIndexInformer {
	c.lock.RLock()
	defer c.lock.RUnlock()
	infs := make([]informer.SharedIndexInformer, 0, len(c.informers))
	for _, inf := range c.informers {
		infs = append(infs, inf)
	}
	return infs
}

// Informer 返回 kind 对应的 informer
func (c *MirrorController) Informer(kind string) (informer.SharedIndexInformer, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	inf, ok := c.informers[kind]
	return inf, ok
}

// Kinds 返回排序后的资源类型
func (c *MirrorController) Kinds() []string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	kinds := make([]string, 0, len(c.informers))
	for kind := range c.informers {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func (c *MirrorController) processNextWorkItem(ctx context.Context) bool {
	item, shutdown := c.queue.Get()
	if shutdown {
		return false
	}
	defer c.queue.Done(item)

	err := c.reconcile(ctx, item)
	c.handleErr(item, err)
	return true
}

func (c *MirrorController) handleErr(item string, err error) {
	if err == nil {
		c.queue.Forget(item)
		return
	}
	if c.queue.NumRequeues(item) < c.maxRetries {
		c.logger.Warn("reconcile failed, requeue", zap.String("item", item), zap.Error(err))
		c.queue.AddRateLimited(item)
		return
	}
	c.queue.Forget(item)
	c.logger.Error("dropping item out of the queue", zap.String("item", item), zap.Error(err))
}

// reconcile 把缓存中的对象写入数据库，对象不存在时删除记录
func (c *MirrorController) reconcile(ctx context.Context, item string) error {
	kind, key, ok := strings.Cut(item, "/")
	if !ok {
		return fmt.Errorf("invalid work item %q", item)
	}
	inf, ok := c.Informer(kind)
	if !ok {
		return fmt.Errorf("unknown kind %q", kind)
	}

	obj, exists, err := inf.GetIndexer().GetByKey(key)
	if err != nil {
		return err
	}
	if !exists {
		if err := c.recordRepo.DeleteByKey(ctx, kind, key); err != nil {
			return fmt.Errorf("delete record %s: %w", item, err)
		}
		c.logger.Debug("record deleted", zap.String("kind", kind), zap.String("key", key))
		return nil
	}

	res, ok := obj.(*model.Resource)
	if !ok {
		return fmt.Errorf("unexpected object type %T for %s", obj, item)
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	resourceHash, err := hash.CalculateResourceHash(res, hash.DefaultExcludeFields...)
	if err != nil {
		return fmt.Errorf("calculate resource hash: %w", err)
	}

	changed, err := c.recordRepo.Upsert(ctx, &model.ResourceRecord{
		Kind:            kind,
		Key:             key,
		Namespace:       res.GetNamespace(),
		Name:            res.GetName(),
		ResourceVersion: res.GetResourceVersion(),
		ResourceHash:    resourceHash,
		Data:            string(data),
	})
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", item, err)
	}
	if changed {
		c.logger.Debug("record synced", zap.String("kind", kind), zap.String("key", key))
	}
	return nil
}
