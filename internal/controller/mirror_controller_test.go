package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"watchcache/internal/model"
	mock_repository "watchcache/internal/repository/mocks"
	"watchcache/pkg/informer"
	"watchcache/pkg/informer/informertest"
	"watchcache/pkg/log"
	"watchcache/pkg/workqueue"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResource(ns, name, rv string) *model.Resource {
	return &model.Resource{
		Kind:     "pods",
		Metadata: informer.ObjectMeta{Namespace: ns, Name: name, ResourceVersion: rv},
		Spec:     map[string]interface{}{"image": "nginx"},
	}
}

func startController(t *testing.T, c *MirrorController) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = c.Stop(context.Background())
	})
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func fastOptions() Options {
	return Options{
		Workers:     1,
		MaxRetries:  2,
		RateLimiter: workqueue.NewItemExponentialFailureRateLimiter[string](time.Millisecond, 10*time.Millisecond),
		Registerer:  prometheus.NewRegistry(),
	}
}

func TestMirrorControllerMirrorsCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mock_repository.NewMockResourceRecordRepository(ctrl)

	upserted := make(chan *model.ResourceRecord, 10)
	deleted := make(chan string, 10)
	repo.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, r *model.ResourceRecord) (bool, error) {
			upserted <- r
			return true, nil
		}).AnyTimes()
	repo.EXPECT().DeleteByKey(gomock.Any(), "pods", gomock.Any()).DoAndReturn(
		func(_ context.Context, _, key string) error {
			deleted <- key
			return nil
		}).AnyTimes()

	lw := informertest.NewFakeListerWatcher(informertest.ListOf("1", newResource("ns", "a", "1")))
	c, err := NewMirrorControllerWithSources(log.NewNop(), repo,
		[]KindConfig{{Name: "pods"}},
		map[string]informer.ListerWatcher{"pods": lw},
		fastOptions())
	require.NoError(t, err)
	startController(t, c)

	r := receive(t, upserted)
	assert.Equal(t, "pods", r.Kind)
	assert.Equal(t, "ns/a", r.Key)
	assert.Equal(t, "1", r.ResourceVersion)
	assert.Len(t, r.ResourceHash, 64)
	assert.Contains(t, r.Data, `"image":"nginx"`)

	w := receive(t, lw.Watchers())
	w.Add(newResource("ns", "b", "2"))
	assert.Equal(t, "ns/b", receive(t, upserted).Key)

	w.Delete(newResource("ns", "a", "3"))
	assert.Equal(t, "ns/a", receive(t, deleted))
}

func TestMirrorControllerRetriesFailedItems(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mock_repository.NewMockResourceRecordRepository(ctrl)

	synced := make(chan struct{}, 1)
	gomock.InOrder(
		repo.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(false, errors.New("db down")),
		repo.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, *model.ResourceRecord) (bool, error) {
				synced <- struct{}{}
				return true, nil
			}),
	)

	lw := informertest.NewFakeListerWatcher(informertest.ListOf("1", newResource("ns", "a", "1")))
	c, err := NewMirrorControllerWithSources(log.NewNop(), repo,
		[]KindConfig{{Name: "pods"}},
		map[string]informer.ListerWatcher{"pods": lw},
		fastOptions())
	require.NoError(t, err)
	startController(t, c)

	receive(t, synced)
	require.Eventually(t, func() bool {
		return c.queue.NumRequeues("pods/ns/a") == 0
	}, 5*time.Second, 5*time.Millisecond)
}

func TestMirrorControllerDropsAfterMaxRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mock_repository.NewMockResourceRecordRepository(ctrl)

	calls := make(chan struct{}, 10)
	// 第一次处理加两次重试
	repo.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, *model.ResourceRecord) (bool, error) {
			calls <- struct{}{}
			return false, errors.New("constraint violation")
		}).Times(3)

	lw := informertest.NewFakeListerWatcher(informertest.ListOf("1", newResource("ns", "a", "1")))
	c, err := NewMirrorControllerWithSources(log.NewNop(), repo,
		[]KindConfig{{Name: "pods"}},
		map[string]informer.ListerWatcher{"pods": lw},
		fastOptions())
	require.NoError(t, err)
	startController(t, c)

	for i := 0; i < 3; i++ {
		receive(t, calls)
	}
	require.Eventually(t, func() bool {
		return c.queue.NumRequeues("pods/ns/a") == 0 && c.queue.Len() == 0
	}, 5*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, calls)
}

func TestMirrorControllerLabelIndex(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mock_repository.NewMockResourceRecordRepository(ctrl)
	repo.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()

	a := newResource("ns", "a", "1")
	a.Metadata.Labels = map[string]string{"app": "web"}
	b := newResource("ns", "b", "1")
	lw := informertest.NewFakeListerWatcher(informertest.ListOf("1", a, b))

	c, err := NewMirrorControllerWithSources(log.NewNop(), repo,
		[]KindConfig{{Name: "pods", IndexLabels: []string{"app"}}},
		map[string]informer.ListerWatcher{"pods": lw},
		fastOptions())
	require.NoError(t, err)
	startController(t, c)

	inf, ok := c.Informer("pods")
	require.True(t, ok)
	require.Eventually(t, inf.HasSynced, 5*time.Second, 5*time.Millisecond)

	objs, err := inf.GetIndexer().ByIndex(LabelIndexPrefix+"app", "web")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "a", objs[0].(*model.Resource).GetName())
}

func TestNewMirrorControllerValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mock_repository.NewMockResourceRecordRepository(ctrl)
	lw := informertest.NewFakeListerWatcher()

	_, err := NewMirrorControllerWithSources(log.NewNop(), repo,
		[]KindConfig{{Name: "pods"}, {Name: "nodes"}},
		map[string]informer.ListerWatcher{"pods": lw},
		Options{})
	assert.Error(t, err)

	_, err = NewMirrorControllerWithSources(log.NewNop(), repo,
		[]KindConfig{{Name: "pods"}, {Name: "pods"}},
		map[string]informer.ListerWatcher{"pods": lw},
		Options{})
	assert.Error(t, err)

	c, err := NewMirrorControllerWithSources(log.NewNop(), repo,
		[]KindConfig{{Name: "pods"}, {Name: "configs"}},
		map[string]informer.ListerWatcher{"pods": lw, "configs": lw},
		Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"configs", "pods"}, c.Kinds())
	_, ok := c.Informer("nodes")
	assert.False(t, ok)
}
