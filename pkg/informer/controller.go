package informer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"watchcache/pkg/log"
)

// Config controller 的配置
type Config struct {
	Name          string
	Queue         *DeltaFIFO
	ListerWatcher ListerWatcher
	// Process 处理 Pop 出的 delta，返回错误时 delta 会被放回队首
	Process PopProcessFunc
	// ShouldResync 由 reflector 在每个 resync 周期调用
	ShouldResync func() bool

	ReflectorOptions ReflectorOptions
	Logger           *log.Logger
}

// Controller 驱动 reflector 和单个 Pop 循环
type Controller interface {
	Run(ctx context.Context)
	HasSynced() bool
	LastSyncResourceVersion() string
	ReflectorState() ReflectorState
}

type controller struct {
	config         Config
	clock          clock.Clock
	reflector      *Reflector
	reflectorMutex sync.RWMutex
}

func NewController(c Config) Controller {
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	clk := c.ReflectorOptions.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &controller{
		config: c,
		clock:  clk,
	}
}

// Run 阻塞直到 ctx 取消。取消时关闭队列，等待 reflector 和处理循环退出
func (c *controller) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		c.config.Queue.Close()
	}()

	r := NewReflector(c.config.Name, c.config.ListerWatcher, c.config.Queue, c.config.Logger, c.config.ReflectorOptions)
	r.ShouldResync = c.config.ShouldResync

	c.reflectorMutex.Lock()
	c.reflector = r
	c.reflectorMutex.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Run(ctx)
	}()

	c.processLoop(ctx)
	wg.Wait()
}

func (c *controller) HasSynced() bool {
	return c.config.Queue.HasSynced()
}

func (c *controller) LastSyncResourceVersion() string {
	c.reflectorMutex.RLock()
	defer c.reflectorMutex.RUnlock()
	if c.reflector == nil {
		return ""
	}
	return c.reflector.LastSyncResourceVersion()
}

func (c *controller) ReflectorState() ReflectorState {
	c.reflectorMutex.RLock()
	defer c.reflectorMutex.RUnlock()
	if c.reflector == nil {
		return StateIdle
	}
	return c.reflector.State()
}

func (c *controller) processLoop(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		if ctx.Err() != nil {
			return
		}
		_, err := c.config.Queue.Pop(c.config.Process)
		if err == nil {
			b.Reset()
			continue
		}
		if errors.Is(err, ErrFIFOClosed) {
			return
		}

		delay := b.NextBackOff()
		c.config.Logger.Error("process deltas failed",
			zap.String("name", c.config.Name),
			zap.Duration("backoff", delay),
			zap.Error(err))
		t := c.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C():
		}
	}
}
