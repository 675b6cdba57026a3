package workqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestQueueDedupesDirtyItems(t *testing.T) {
	q := New[string]("")
	defer q.ShutDown()

	q.Add("a")
	q.Add("b")
	q.Add("a")
	assert.Equal(t, 2, q.Len())

	item, shutdown := q.Get()
	require.False(t, shutdown)
	assert.Equal(t, "a", item)
	q.Done(item)

	item, _ = q.Get()
	assert.Equal(t, "b", item)
	q.Done(item)
	assert.Equal(t, 0, q.Len())
}

func TestQueueReAddWhileProcessing(t *testing.T) {
	q := New[string]("")
	defer q.ShutDown()

	q.Add("a")
	item, _ := q.Get()
	require.Equal(t, "a", item)

	// 处理中的元素只标记 dirty，不会被其他 worker 取到
	q.Add("a")
	assert.Equal(t, 0, q.Len())

	q.Done("a")
	assert.Equal(t, 1, q.Len())

	item, _ = q.Get()
	assert.Equal(t, "a", item)
	q.Done(item)
	assert.Equal(t, 0, q.Len())
}

func TestQueueAtMostOneWorkerPerItem(t *testing.T) {
	q := New[int]("")

	const workers = 8
	var (
		mu       sync.Mutex
		inFlight = map[int]bool{}
		overlap  bool
		wg       sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, shutdown := q.Get()
				if shutdown {
					return
				}
				mu.Lock()
				if inFlight[item] {
					overlap = true
				}
				inFlight[item] = true
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inFlight[item] = false
				mu.Unlock()
				q.Done(item)
			}
		}()
	}

	for i := 0; i < 200; i++ {
		q.Add(i % 5)
	}
	q.ShutDownWithDrain()
	wg.Wait()

	assert.False(t, overlap)
}

func TestQueueShutDownUnblocksGet(t *testing.T) {
	q := New[string]("")

	done := make(chan bool)
	go func() {
		_, shutdown := q.Get()
		done <- shutdown
	}()

	q.ShutDown()
	select {
	case shutdown := <-done:
		assert.True(t, shutdown)
	case <-time.After(5 * time.Second):
		t.Fatal("Get did not return after ShutDown")
	}

	q.Add("ignored")
	assert.Equal(t, 0, q.Len())
	assert.True(t, q.ShuttingDown())
}

func TestQueueShutDownKeepsQueuedItems(t *testing.T) {
	q := New[string]("")
	q.Add("a")
	q.ShutDown()

	item, shutdown := q.Get()
	assert.False(t, shutdown)
	assert.Equal(t, "a", item)
	q.Done(item)

	_, shutdown = q.Get()
	assert.True(t, shutdown)
}

func TestQueueShutDownWithDrainWaitsForDone(t *testing.T) {
	q := New[string]("")
	q.Add("a")
	item, _ := q.Get()

	drained := make(chan struct{})
	go func() {
		q.ShutDownWithDrain()
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("ShutDownWithDrain returned while an item was processing")
	case <-time.After(50 * time.Millisecond):
	}

	q.Done(item)
	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("ShutDownWithDrain did not return after Done")
	}
}

func TestQueueMetrics(t *testing.T) {
	provider := newFakeProvider()
	fakeClock := clocktesting.NewFakeClock(time.Now())
	q := newQueue[string](fakeClock, newQueueMetrics[string](provider, "test", fakeClock), time.Millisecond)
	defer q.ShutDown()

	q.Add("a")
	q.Add("b")
	q.Add("a")
	assert.Equal(t, float64(2), provider.adds["test"].value())
	assert.Equal(t, float64(2), provider.depth["test"].value())

	fakeClock.Step(50 * time.Millisecond)
	item, _ := q.Get()
	assert.Equal(t, float64(1), provider.depth["test"].value())
	assert.Equal(t, []float64{0.05}, provider.latency["test"].observations())

	fakeClock.Step(25 * time.Millisecond)
	q.Done(item)
	assert.Equal(t, []float64{0.025}, provider.duration["test"].observations())
}

func TestQueueWithoutNameHasNoMetrics(t *testing.T) {
	m := newQueueMetrics[string](newFakeProvider(), "", clocktesting.NewFakeClock(time.Now()))
	_, ok := m.(noMetrics[string])
	assert.True(t, ok)

	m = newQueueMetrics[string](noopMetricsProvider{}, "named", clocktesting.NewFakeClock(time.Now()))
	_, ok = m.(noMetrics[string])
	assert.True(t, ok)
}
