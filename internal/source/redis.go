package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"watchcache/internal/model"
	"watchcache/pkg/informer"
	"watchcache/pkg/log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotFound 删除不存在的对象
var ErrNotFound = errors.New("resource not found")

const defaultLogSize = 1000

// applyScript 原子地递增版本号、写入对象、追加事件日志并广播。
// KEYS: objects, rv, log, events
// ARGV: APPLY|DELETED, key, object json, log size
var applyScript = redis.NewScript(`
local exists = redis.call('HEXISTS', KEYS[1], ARGV[2])
if ARGV[1] == 'DELETED' and exists == 0 then
	return 0
end
local t = 'DELETED'
if ARGV[1] ~= 'DELETED' then
	if exists == 1 then t = 'MODIFIED' else t = 'ADDED' end
end
local rv = redis.call('INCR', KEYS[2])
local env = '{"type":"' .. t .. '","resourceVersion":"' .. rv .. '","object":' .. ARGV[3] .. '}'
if t == 'DELETED' then
	redis.call('HDEL', KEYS[1], ARGV[2])
else
	redis.call('HSET', KEYS[1], ARGV[2], env)
end
redis.call('LPUSH', KEYS[3], env)
redis.call('LTRIM', KEYS[3], 0, tonumber(ARGV[4]) - 1)
redis.call('PUBLISH', KEYS[4], env)
return rv
`)

type redisKeys struct {
	objects string
	rv      string
	log     string
	events  string
}

func keysFor(prefix, kind string) redisKeys {
	base := prefix + ":" + kind
	return redisKeys{
		objects: base + ":objects",
		rv:      base + ":rv",
		log:     base + ":log",
		events:  base + ":events",
	}
}

func (k redisKeys) list() []string {
	return []string{k.objects, k.rv, k.log, k.events}
}

// envelope 哈希、日志和频道中保存的内容，对象的 resourceVersion 以 envelope 为准
type envelope struct {
	Type            informer.EventType `json:"type"`
	ResourceVersion string             `json:"resourceVersion"`
	Object          json.RawMessage    `json:"object"`
}

func decodeEnvelope(data string) (*envelope, *model.Resource, error) {
	env := new(envelope)
	if err := json.Unmarshal([]byte(data), env); err != nil {
		return nil, nil, fmt.Errorf("decode envelope: %w", err)
	}
	obj := new(model.Resource)
	if err := json.Unmarshal(env.Object, obj); err != nil {
		return nil, nil, fmt.Errorf("decode object: %w", err)
	}
	obj.Metadata.ResourceVersion = env.ResourceVersion
	return env, obj, nil
}

func parseRV(rv string) (uint64, error) {
	if rv == "" {
		return 0, nil
	}
	return strconv.ParseUint(rv, 10, 64)
}

// Publisher 向 redis 写入资源变化
type Publisher struct {
	rdb     *redis.Client
	prefix  string
	logSize int64
}

func NewPublisher(rdb *redis.Client, prefix string, logSize int64) *Publisher {
	if logSize <= 0 {
		logSize = defaultLogSize
	}
	return &Publisher{rdb: rdb, prefix: prefix, logSize: logSize}
}

// Apply 新增或更新对象，返回新的 resourceVersion
func (p *Publisher) Apply(ctx context.Context, obj *model.Resource) (string, error) {
	return p.run(ctx, "APPLY", obj)
}

// Remove 删除对象，对象不存在时返回 ErrNotFound
func (p *Publisher) Remove(ctx context.Context, obj *model.Resource) (string, error) {
	return p.run(ctx, string(informer.EventDeleted), obj)
}

func (p *Publisher) run(ctx context.Context, op string, obj *model.Resource) (string, error) {
	if obj.Kind == "" {
		return "", errors.New("resource kind is required")
	}
	key, err := informer.MetaNamespaceKeyFunc(obj)
	if err != nil {
		return "", err
	}
	o := obj.DeepCopy()
	o.Metadata.ResourceVersion = ""
	// 没有 UID 的新对象在写入时分配，更新时调用方应带上原有 UID
	if op == "APPLY" && o.Metadata.UID == "" {
		o.Metadata.UID = uuid.NewString()
	}
	data, err := json.Marshal(o)
	if err != nil {
		return "", err
	}

	rv, err := applyScript.Run(ctx, p.rdb, keysFor(p.prefix, obj.Kind).list(), op, key, string(data), p.logSize).Int64()
	if err != nil {
		return "", fmt.Errorf("apply %s %s: %w", obj.Kind, key, err)
	}
	if rv == 0 {
		return "", ErrNotFound
	}
	return strconv.FormatInt(rv, 10), nil
}

// RedisSource 以 redis 为数据源的 ListerWatcher
type RedisSource struct {
	rdb              *redis.Client
	kind             string
	keys             redisKeys
	bookmarkInterval time.Duration
	logger           *log.Logger
}

var _ informer.ListerWatcher = &RedisSource{}

func NewRedisSource(rdb *redis.Client, prefix, kind string, bookmarkInterval time.Duration, logger *log.Logger) *RedisSource {
	return &RedisSource{
		rdb:              rdb,
		kind:             kind,
		keys:             keysFor(prefix, kind),
		bookmarkInterval: bookmarkInterval,
		logger:           logger.Named("redis-source").With(zap.String("kind", kind)),
	}
}

// List 在一个 MULTI 中读取全部对象和当前版本号
func (s *RedisSource) List(ctx context.Context, _ informer.ListOptions) (*informer.ListResult, error) {
	var (
		all *redis.MapStringStringCmd
		rv  *redis.StringCmd
	)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		all = pipe.HGetAll(ctx, s.keys.objects)
		rv = pipe.Get(ctx, s.keys.rv)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list %s: %w", s.kind, err)
	}

	version, err := rv.Result()
	if errors.Is(err, redis.Nil) {
		version = "0"
	} else if err != nil {
		return nil, err
	}

	items := make([]informer.Object, 0, len(all.Val()))
	for key, data := range all.Val() {
		_, obj, err := decodeEnvelope(data)
		if err != nil {
			s.logger.Warn("skip undecodable object", zap.String("key", key), zap.Error(err))
			continue
		}
		items = append(items, obj)
	}
	return &informer.ListResult{Items: items, ResourceVersion: version}, nil
}

// Watch 先订阅频道，再从日志中补发 opts.ResourceVersion 之后的事件。
// 日志无法覆盖时发送 Expired 错误事件
func (s *RedisSource) Watch(ctx context.Context, opts informer.ListOptions) (informer.Watcher, error) {
	since, err := parseRV(opts.ResourceVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid resource version %q: %w", opts.ResourceVersion, err)
	}

	sub := s.rdb.Subscribe(ctx, s.keys.events)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.keys.events, err)
	}

	var (
		logCmd *redis.StringSliceCmd
		rvCmd  *redis.StringCmd
	)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		logCmd = pipe.LRange(ctx, s.keys.log, 0, -1)
		rvCmd = pipe.Get(ctx, s.keys.rv)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		_ = sub.Close()
		return nil, fmt.Errorf("read event log %s: %w", s.kind, err)
	}
	current, _ := parseRV(rvCmd.Val())

	w := newRedisWatcher(ctx)
	if opts.ResourceVersion == "" || opts.ResourceVersion == "0" {
		since = current
	}

	replay, expired := s.replayFrom(since, current, logCmd.Val())
	if expired {
		s.logger.Info("resource version too old",
			zap.Uint64("since", since),
			zap.Uint64("current", current))
		go w.fail(sub, informer.NewExpiredStatus(fmt.Sprintf("too old resource version: %d (%d)", since, current)))
		return w, nil
	}

	var timeout time.Duration
	if opts.TimeoutSeconds > 0 {
		timeout = time.Duration(opts.TimeoutSeconds) * time.Second
	}
	var bookmarkInterval time.Duration
	if opts.AllowWatchBookmarks {
		bookmarkInterval = s.bookmarkInterval
	}
	go w.run(sub, replay, since, timeout, bookmarkInterval, s.logger)
	return w, nil
}

// replayFrom 返回版本号大于 since 的日志事件，按版本号升序
func (s *RedisSource) replayFrom(since, current uint64, entries []string) ([]redisEvent, bool) {
	if since > current {
		return nil, true
	}
	if since == current {
		return nil, false
	}

	events := make([]redisEvent, 0, len(entries))
	// LPUSH 写入，最新的在前
	for i := len(entries) - 1; i >= 0; i-- {
		ev, err := toRedisEvent(entries[i])
		if err != nil {
			s.logger.Warn("skip undecodable log entry", zap.Error(err))
			continue
		}
		if ev.rv > since {
			events = append(events, ev)
		}
	}
	if len(events) == 0 || events[0].rv != since+1 {
		return nil, true
	}
	return events, false
}

type redisEvent struct {
	rv    uint64
	event informer.Event
}

func toRedisEvent(data string) (redisEvent, error) {
	env, obj, err := decodeEnvelope(data)
	if err != nil {
		return redisEvent{}, err
	}
	rv, err := parseRV(env.ResourceVersion)
	if err != nil {
		return redisEvent{}, err
	}
	return redisEvent{rv: rv, event: informer.Event{Type: env.Type, Object: obj}}, nil
}

type redisWatcher struct {
	ctx    context.Context
	cancel context.CancelFunc
	result chan informer.Event
	done   chan struct{}
	once   sync.Once
}

func newRedisWatcher(parent context.Context) *redisWatcher {
	ctx, cancel := context.WithCancel(parent)
	return &redisWatcher{
		ctx:    ctx,
		cancel: cancel,
		result: make(chan informer.Event),
		done:   make(chan struct{}),
	}
}

func (w *redisWatcher) ResultChan() <-chan informer.Event {
	return w.result
}

// Stop 结束事件流并等待后台 goroutine 退出
func (w *redisWatcher) Stop() {
	w.once.Do(w.cancel)
	<-w.done
}

func (w *redisWatcher) send(ev informer.Event) bool {
	select {
	case <-w.ctx.Done():
		return false
	case w.result <- ev:
		return true
	}
}

func (w *redisWatcher) fail(sub *redis.PubSub, status *informer.Status) {
	defer close(w.done)
	defer close(w.result)
	defer sub.Close()
	w.send(informer.Event{Type: informer.EventError, Object: status})
}

func (w *redisWatcher) run(sub *redis.PubSub, replay []redisEvent, lastRV uint64, timeout, bookmarkInterval time.Duration, logger *log.Logger) {
	defer close(w.done)
	defer close(w.result)
	defer sub.Close()

	for _, ev := range replay {
		if !w.send(ev.event) {
			return
		}
		lastRV = ev.rv
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	var bookmarkCh <-chan time.Time
	if bookmarkInterval > 0 {
		ticker := time.NewTicker(bookmarkInterval)
		defer ticker.Stop()
		bookmarkCh = ticker.C
	}

	messages := sub.Channel()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-timeoutCh:
			return
		case <-bookmarkCh:
			bookmark := &model.Resource{Metadata: informer.ObjectMeta{ResourceVersion: strconv.FormatUint(lastRV, 10)}}
			if !w.send(informer.Event{Type: informer.EventBookmark, Object: bookmark}) {
				return
			}
		case msg, ok := <-messages:
			if !ok {
				return
			}
			ev, err := toRedisEvent(msg.Payload)
			if err != nil {
				logger.Warn("skip undecodable message", zap.Error(err))
				continue
			}
			// 补发阶段已经发送过
			if ev.rv <= lastRV {
				continue
			}
			// 订阅端处理不及时时 go-redis 会丢弃消息，出现空洞只能让调用方 relist
			if ev.rv != lastRV+1 {
				logger.Warn("event stream has a gap",
					zap.Uint64("lastResourceVersion", lastRV),
					zap.Uint64("resourceVersion", ev.rv))
				w.send(informer.Event{
					Type:   informer.EventError,
					Object: informer.NewExpiredStatus(fmt.Sprintf("missed events between resource version %d and %d", lastRV, ev.rv)),
				})
				return
			}
			if !w.send(ev.event) {
				return
			}
			lastRV = ev.rv
		}
	}
}
