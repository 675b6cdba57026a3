package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	v1 "watchcache/api/v1"
	"watchcache/internal/model"
	mock_repository "watchcache/internal/repository/mocks"
	"watchcache/internal/service"
	"watchcache/pkg/informer"
	"watchcache/pkg/informer/informertest"
	"watchcache/pkg/log"
	"watchcache/pkg/sid"

	"github.com/gavv/httpexpect/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registry map[string]informer.SharedIndexInformer

func (r registry) Informer(kind string) (informer.SharedIndexInformer, bool) {
	inf, ok := r[kind]
	return inf, ok
}

func (r registry) Kinds() []string {
	kinds := make([]string, 0, len(r))
	for kind := range r {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func newPod(ns, name, rv string) *model.Resource {
	return &model.Resource{
		Kind:     "pods",
		Metadata: informer.ObjectMeta{Namespace: ns, Name: name, ResourceVersion: rv},
		Spec:     map[string]interface{}{"image": "nginx"},
	}
}

type fixture struct {
	router  *gin.Engine
	lw      *informertest.FakeListerWatcher
	records *mock_repository.MockResourceRecordRepository
}

func newFixture(t *testing.T, withPending bool) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	lw := informertest.NewFakeListerWatcher(informertest.ListOf("5",
		newPod("default", "web", "4"),
		newPod("kube-system", "dns", "5"),
	))
	pods := informer.NewSharedIndexInformer("pods", lw, log.NewNop(), informer.SharedIndexInformerOptions{
		Indexers: informer.Indexers{informer.NamespaceIndex: informer.MetaNamespaceIndexFunc},
	})
	ctx, cancel := context.WithCancel(context.Background())
	pods.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pods.Stop()
	})
	require.Eventually(t, pods.HasSynced, 5*time.Second, 5*time.Millisecond)

	reg := registry{"pods": pods}
	if withPending {
		reg["nodes"] = informer.NewSharedIndexInformer("nodes", informertest.NewFakeListerWatcher(), log.NewNop(),
			informer.SharedIndexInformerOptions{})
	}

	logger := log.NewNop()
	svc := service.NewService(nil, logger, sid.NewSid())
	records := mock_repository.NewMockResourceRecordRepository(gomock.NewController(t))
	h := NewHandler(logger)
	informerHandler := NewInformerHandler(h, service.NewInformerService(svc, reg))
	recordHandler := NewRecordHandler(h, service.NewRecordService(svc, records))

	r := gin.New()
	r.GET("/healthz", informerHandler.Healthz)
	api := r.Group("/api/v1")
	api.GET("/informers", informerHandler.ListInformers)
	api.GET("/informers/:kind/objects", informerHandler.ListObjects)
	api.GET("/informers/:kind/object", informerHandler.GetObject)
	api.GET("/informers/:kind/watch", informerHandler.Watch)
	api.GET("/records", recordHandler.ListRecords)
	api.GET("/records/summary", recordHandler.Summary)

	return &fixture{router: r, lw: lw, records: records}
}

func newHttpExpect(t *testing.T, router *gin.Engine) *httpexpect.Expect {
	return httpexpect.WithConfig(httpexpect.Config{
		BaseURL: "http://localhost",
		Client: &http.Client{
			Transport: httpexpect.NewBinder(router),
			Jar:       httpexpect.NewCookieJar(),
		},
		Reporter: httpexpect.NewAssertReporter(t),
		Printers: []httpexpect.Printer{
			httpexpect.NewDebugPrinter(t, true),
		},
	})
}

func TestHealthz(t *testing.T) {
	e := newHttpExpect(t, newFixture(t, true).router)
	obj := e.GET("/healthz").Expect().Status(http.StatusServiceUnavailable).JSON().Object()
	obj.Value("code").Number().IsEqual(3004)
	obj.Value("data").Object().Value("unsynced").Array().Value(0).String().IsEqual("nodes")

	e = newHttpExpect(t, newFixture(t, false).router)
	obj = e.GET("/healthz").Expect().Status(http.StatusOK).JSON().Object()
	obj.Value("code").Number().IsEqual(0)
	obj.Value("data").Object().Value("synced").Boolean().IsTrue()
}

func TestInformerHandlerQueries(t *testing.T) {
	e := newHttpExpect(t, newFixture(t, false).router)

	items := e.GET("/api/v1/informers").Expect().Status(http.StatusOK).
		JSON().Object().Value("data").Object().Value("items").Array()
	items.Length().IsEqual(1)
	pods := items.Value(0).Object()
	pods.Value("kind").String().IsEqual("pods")
	pods.Value("count").Number().IsEqual(2)
	pods.Value("last_sync_resource_version").String().IsEqual("5")

	data := e.GET("/api/v1/informers/pods/objects").Expect().Status(http.StatusOK).
		JSON().Object().Value("data").Object()
	data.Value("total").Number().IsEqual(2)
	data.Value("items").Array().Value(0).Object().
		Value("metadata").Object().Value("name").String().IsEqual("web")

	data = e.GET("/api/v1/informers/pods/objects").
		WithQuery("index", "namespace").WithQuery("value", "kube-system").
		Expect().Status(http.StatusOK).JSON().Object().Value("data").Object()
	data.Value("total").Number().IsEqual(1)

	e.GET("/api/v1/informers/pods/objects").WithQuery("index", "label:app").
		Expect().Status(http.StatusBadRequest).JSON().Object().Value("code").Number().IsEqual(3003)
	e.GET("/api/v1/informers/nodes/objects").
		Expect().Status(http.StatusNotFound).JSON().Object().Value("code").Number().IsEqual(3001)

	e.GET("/api/v1/informers/pods/object").WithQuery("key", "default/web").
		Expect().Status(http.StatusOK).JSON().Object().Value("data").Object().
		Value("spec").Object().Value("image").String().IsEqual("nginx")
	e.GET("/api/v1/informers/pods/object").WithQuery("key", "default/api").
		Expect().Status(http.StatusNotFound).JSON().Object().Value("code").Number().IsEqual(3002)
	e.GET("/api/v1/informers/pods/object").
		Expect().Status(http.StatusBadRequest)
}

func TestRecordHandler(t *testing.T) {
	f := newFixture(t, false)
	e := newHttpExpect(t, f.router)

	f.records.EXPECT().ListByKind(gomock.Any(), "pods").Return([]*model.ResourceRecord{
		{Kind: "pods", Key: "default/web", Name: "web", Namespace: "default", Data: `{"kind":"pods"}`},
	}, nil)
	data := e.GET("/api/v1/records").WithQuery("kind", "pods").
		Expect().Status(http.StatusOK).JSON().Object().Value("data").Object()
	data.Value("total").Number().IsEqual(1)
	data.Value("items").Array().Value(0).Object().Value("key").String().IsEqual("default/web")

	f.records.EXPECT().CountByKind(gomock.Any()).Return(nil, errors.New("db down"))
	e.GET("/api/v1/records/summary").Expect().Status(http.StatusInternalServerError).
		JSON().Object().Value("code").Number().IsEqual(500)
}

func TestInformerHandlerWatch(t *testing.T) {
	f := newFixture(t, false)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/informers/pods/watch"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	initial := map[string]bool{}
	for i := 0; i < 2; i++ {
		var ev v1.WatchEvent
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, v1.WatchEventAdded, ev.Type)
		assert.True(t, ev.InInitialList)
		assert.NotEmpty(t, ev.Session)
		initial[ev.Key] = true
	}
	assert.Equal(t, map[string]bool{"default/web": true, "kube-system/dns": true}, initial)

	w := <-f.lw.Watchers()
	w.Delete(newPod("default", "web", "6"))
	var ev v1.WatchEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, v1.WatchEventDeleted, ev.Type)
	assert.Equal(t, "default/web", ev.Key)

	resp, err := http.Get(srv.URL + "/api/v1/informers/nodes/watch")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
