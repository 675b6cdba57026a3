package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"watchcache/internal/model"
	"watchcache/pkg/informer"
	"watchcache/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listServer 返回可修改的资源列表
type listServer struct {
	mu       sync.Mutex
	items    []*model.Resource
	envelope bool
}

func (s *listServer) set(items ...*model.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
}

func (s *listServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer secret" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"unauthorized"}`))
		return
	}
	var body interface{} = s.items
	if s.envelope {
		body = map[string]interface{}{"data": s.items}
	}
	_ = json.NewEncoder(w).Encode(body)
}

func newPollSource(t *testing.T, srv *listServer, token string) *PollSource {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	client, err := NewClient(ts.URL, token, time.Second)
	require.NoError(t, err)
	return NewPollSource(client, "configs", "/api/configs", 20*time.Millisecond, log.NewNop())
}

func TestPollSourceList(t *testing.T) {
	srv := &listServer{envelope: true}
	srv.set(newResource("", "b", "x"), newResource("", "a", "y"))
	src := newPollSource(t, srv, "secret")

	res, err := src.List(context.Background(), informer.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
	assert.Len(t, res.ResourceVersion, 32)

	again, err := src.List(context.Background(), informer.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, res.ResourceVersion, again.ResourceVersion)

	for _, item := range res.Items {
		assert.Len(t, item.GetResourceVersion(), 16)
	}
}

func TestPollSourceListError(t *testing.T) {
	src := newPollSource(t, &listServer{}, "wrong")

	_, err := src.List(context.Background(), informer.ListOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestPollSourceWatchEmitsDiff(t *testing.T) {
	srv := &listServer{}
	srv.set(newResource("", "a", "x"), newResource("", "b", "x"))
	src := newPollSource(t, srv, "secret")
	ctx := context.Background()

	res, err := src.List(ctx, informer.ListOptions{})
	require.NoError(t, err)

	w, err := src.Watch(ctx, informer.ListOptions{ResourceVersion: res.ResourceVersion})
	require.NoError(t, err)
	defer w.Stop()

	srv.set(newResource("", "a", "changed"), newResource("", "c", "x"))

	ev := nextEvent(t, w)
	assert.Equal(t, informer.EventModified, ev.Type)
	assert.Equal(t, "a", ev.Object.(*model.Resource).GetName())

	ev = nextEvent(t, w)
	assert.Equal(t, informer.EventDeleted, ev.Type)
	assert.Equal(t, "b", ev.Object.(*model.Resource).GetName())

	ev = nextEvent(t, w)
	assert.Equal(t, informer.EventAdded, ev.Type)
	assert.Equal(t, "c", ev.Object.(*model.Resource).GetName())

	ev = nextEvent(t, w)
	assert.Equal(t, informer.EventBookmark, ev.Type)
	assert.NotEqual(t, res.ResourceVersion, ev.Object.(informer.Object).GetResourceVersion())
}

func TestPollSourceWatchUnknownVersionExpires(t *testing.T) {
	srv := &listServer{}
	src := newPollSource(t, srv, "secret")

	w, err := src.Watch(context.Background(), informer.ListOptions{ResourceVersion: "stale"})
	require.NoError(t, err)
	defer w.Stop()

	ev := nextEvent(t, w)
	require.Equal(t, informer.EventError, ev.Type)
	assert.Equal(t, informer.StatusReasonExpired, ev.Object.(*informer.Status).Reason)
}

func TestDiffSnapshots(t *testing.T) {
	a := newResource("", "a", "x")
	a.Metadata.ResourceVersion = "1"
	a2 := newResource("", "a", "y")
	a2.Metadata.ResourceVersion = "2"
	b := newResource("", "b", "x")
	b.Metadata.ResourceVersion = "1"

	events := diffSnapshots(
		map[string]*model.Resource{"a": a, "b": b},
		map[string]*model.Resource{"a": a2, "b": b},
	)
	require.Len(t, events, 1)
	assert.Equal(t, informer.EventModified, events[0].Type)

	assert.Empty(t, diffSnapshots(map[string]*model.Resource{"b": b}, map[string]*model.Resource{"b": b}))
}
