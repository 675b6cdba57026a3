package informer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keyLister 以 map 实现 KeyListerGetter
type keyLister map[string]interface{}

func (k keyLister) ListKeys() []string {
	keys := make([]string, 0, len(k))
	for key := range k {
		keys = append(keys, key)
	}
	return keys
}

func (k keyLister) GetByKey(key string) (interface{}, bool, error) {
	obj, ok := k[key]
	return obj, ok, nil
}

func pop(t *testing.T, f *DeltaFIFO) Deltas {
	t.Helper()
	deltas, err := f.Pop(func(Deltas, bool) error { return nil })
	require.NoError(t, err)
	return deltas
}

func deltaTypes(d Deltas) []DeltaType {
	types := make([]DeltaType, 0, len(d))
	for _, delta := range d {
		types = append(types, delta.Type)
	}
	return types
}

func TestDeltaFIFOAccumulatesPerKey(t *testing.T) {
	f := NewDeltaFIFO(DeltaFIFOOptions{})

	require.NoError(t, f.Add(newTestObj("ns", "a", "1")))
	require.NoError(t, f.Add(newTestObj("ns", "b", "1")))
	require.NoError(t, f.Update(newTestObj("ns", "a", "2")))

	assert.Equal(t, []string{"ns/a", "ns/b"}, f.ListKeys())

	d := pop(t, f)
	assert.Equal(t, []DeltaType{Added, Updated}, deltaTypes(d))
	assert.Equal(t, "2", d.Newest().Object.(*testObj).ResourceVersion)
	assert.Equal(t, "1", d.Newest().OldObject.(*testObj).ResourceVersion)

	d = pop(t, f)
	assert.Equal(t, []DeltaType{Added}, deltaTypes(d))
	assert.Equal(t, 0, f.Len())
}

func TestDeltaFIFORejectsObjectsWithoutKey(t *testing.T) {
	f := NewDeltaFIFO(DeltaFIFOOptions{})

	err := f.Add(newTestObj("ns", "", "1"))
	var keyErr KeyError
	assert.True(t, errors.As(err, &keyErr))
	assert.Equal(t, 0, f.Len())
}

func TestDeltaFIFOAddThenDeleteCoalesces(t *testing.T) {
	f := NewDeltaFIFO(DeltaFIFOOptions{KnownObjects: keyLister{}})

	obj := newTestObj("ns", "a", "1")
	require.NoError(t, f.Add(obj))
	require.NoError(t, f.Delete(obj))

	_, exists := f.GetByKey("ns/a")
	assert.False(t, exists)
	assert.Equal(t, 0, f.Len())
}

func TestDeltaFIFODeleteAfterOtherDeltasAppends(t *testing.T) {
	obj := newTestObj("ns", "a", "1")
	f := NewDeltaFIFO(DeltaFIFOOptions{KnownObjects: keyLister{"ns/a": obj}})

	require.NoError(t, f.Resync())
	require.NoError(t, f.Delete(obj))

	d, exists := f.GetByKey("ns/a")
	require.True(t, exists)
	assert.Equal(t, []DeltaType{Sync, Deleted}, deltaTypes(d))
}

func TestDeltaFIFODeleteOfKnownAddedKeyAppends(t *testing.T) {
	obj := newTestObj("ns", "a", "1")
	f := NewDeltaFIFO(DeltaFIFOOptions{KnownObjects: keyLister{"ns/a": obj}})

	require.NoError(t, f.Add(obj))
	require.NoError(t, f.Delete(obj))

	d, exists := f.GetByKey("ns/a")
	require.True(t, exists)
	assert.Equal(t, []DeltaType{Added, Deleted}, deltaTypes(d))
}

func TestDeltaFIFODeleteDuringProcessIsQueued(t *testing.T) {
	known := keyLister{}
	var mu sync.Mutex
	f := NewDeltaFIFO(DeltaFIFOOptions{KnownObjects: lockedLister{&mu, known}})

	obj := newTestObj("default", "x", "1")
	require.NoError(t, f.Add(obj))

	entered := make(chan struct{})
	release := make(chan struct{})
	popped := make(chan error, 1)
	go func() {
		_, err := f.Pop(func(d Deltas, _ bool) error {
			close(entered)
			<-release
			mu.Lock()
			known["default/x"] = d.Newest().Object
			mu.Unlock()
			return nil
		})
		popped <- err
	}()

	<-entered
	// 对象已出队但还没写入 knownObjects
	require.NoError(t, f.Delete(obj))
	close(release)
	require.NoError(t, <-popped)

	d, exists := f.GetByKey("default/x")
	require.True(t, exists)
	assert.Equal(t, []DeltaType{Deleted}, deltaTypes(d))
	assert.Equal(t, obj, d[0].OldObject)
	assert.Equal(t, 1, f.Len())
}

func TestDeltaFIFOReplaceDuringProcessTombstonesInFlightKey(t *testing.T) {
	f := NewDeltaFIFO(DeltaFIFOOptions{KnownObjects: keyLister{}})
	obj := newTestObj("", "a", "1")
	require.NoError(t, f.Add(obj))

	_, err := f.Pop(func(Deltas, bool) error {
		return f.Replace(nil, "2")
	})
	require.NoError(t, err)

	d, exists := f.GetByKey("a")
	require.True(t, exists)
	require.Equal(t, []DeltaType{Deleted}, deltaTypes(d))
	assert.Equal(t, DeletedFinalStateUnknown{Key: "a", Obj: obj}, d[0].Object)
}

// lockedLister 让测试可以在 process 中并发修改 keyLister
type lockedLister struct {
	mu *sync.Mutex
	keyLister
}

func (l lockedLister) ListKeys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keyLister.ListKeys()
}

func (l lockedLister) GetByKey(key string) (interface{}, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keyLister.GetByKey(key)
}

func TestDeltaFIFODeleteOfUnknownKeyIsIgnored(t *testing.T) {
	f := NewDeltaFIFO(DeltaFIFOOptions{KnownObjects: keyLister{}})

	require.NoError(t, f.Delete(newTestObj("ns", "ghost", "1")))
	assert.Equal(t, 0, f.Len())
}

func TestDeltaFIFODedupsConsecutiveDeletes(t *testing.T) {
	obj := newTestObj("ns", "a", "1")
	f := NewDeltaFIFO(DeltaFIFOOptions{KnownObjects: keyLister{"ns/a": obj}})

	require.NoError(t, f.Delete(DeletedFinalStateUnknown{Key: "ns/a", Obj: obj}))
	require.NoError(t, f.Delete(obj))

	d, exists := f.GetByKey("ns/a")
	require.True(t, exists)
	require.Len(t, d, 1)
	assert.False(t, d[0].IsFinalStateUnknown)
	assert.Equal(t, obj, d[0].Object)
}

func TestDeltaFIFOReplaceReconcilesAgainstKnownObjects(t *testing.T) {
	known := keyLister{
		"A": newTestObj("", "A", "1"),
		"B": newTestObj("", "B", "1"),
		"C": newTestObj("", "C", "1"),
	}
	f := NewDeltaFIFO(DeltaFIFOOptions{KnownObjects: known})

	require.NoError(t, f.Replace([]interface{}{
		newTestObj("", "B", "2"),
		newTestObj("", "C", "2"),
		newTestObj("", "D", "2"),
	}, "2"))

	got := map[string][]DeltaType{}
	for _, key := range []string{"A", "B", "C", "D"} {
		d, exists := f.GetByKey(key)
		require.True(t, exists, key)
		got[key] = deltaTypes(d)
		for _, delta := range d {
			assert.True(t, delta.Relist, key)
		}
	}
	assert.Equal(t, map[string][]DeltaType{
		"A": {Deleted},
		"B": {Sync},
		"C": {Sync},
		"D": {Added},
	}, got)
	assert.Equal(t, 4, f.Len())

	a, _ := f.GetByKey("A")
	assert.True(t, a[0].IsFinalStateUnknown)
	tombstone, ok := a[0].Object.(DeletedFinalStateUnknown)
	require.True(t, ok)
	assert.Equal(t, "A", tombstone.Key)
	assert.Equal(t, known["A"], tombstone.Obj)
}

func TestDeltaFIFOReplaceEmitsReplacedWhenConfigured(t *testing.T) {
	f := NewDeltaFIFO(DeltaFIFOOptions{
		KnownObjects:          keyLister{"A": newTestObj("", "A", "1")},
		EmitDeltaTypeReplaced: true,
	})
	require.NoError(t, f.Replace([]interface{}{newTestObj("", "A", "1")}, "1"))

	d, _ := f.GetByKey("A")
	assert.Equal(t, []DeltaType{Replaced}, deltaTypes(d))
}

func TestDeltaFIFOAddThenVanishOnRelistIsPreserved(t *testing.T) {
	f := NewDeltaFIFO(DeltaFIFOOptions{KnownObjects: keyLister{}})

	require.NoError(t, f.Add(newTestObj("", "x", "1")))
	require.NoError(t, f.Replace([]interface{}{}, "2"))

	d, exists := f.GetByKey("x")
	require.True(t, exists)
	assert.Equal(t, []DeltaType{Added, Deleted}, deltaTypes(d))
	assert.True(t, d.Newest().IsFinalStateUnknown)
}

func TestDeltaFIFOPendingKeyIsSyncOnRelist(t *testing.T) {
	f := NewDeltaFIFO(DeltaFIFOOptions{KnownObjects: keyLister{}})

	require.NoError(t, f.Add(newTestObj("", "x", "1")))
	require.NoError(t, f.Replace([]interface{}{newTestObj("", "x", "1")}, "1"))

	d, _ := f.GetByKey("x")
	assert.Equal(t, []DeltaType{Added, Sync}, deltaTypes(d))
}

func TestDeltaFIFOHasSynced(t *testing.T) {
	f := NewDeltaFIFO(DeltaFIFOOptions{KnownObjects: keyLister{}})
	assert.False(t, f.HasSynced())

	require.NoError(t, f.Replace([]interface{}{newTestObj("", "a", "1"), newTestObj("", "b", "1")}, "1"))
	assert.False(t, f.HasSynced())

	_, err := f.Pop(func(d Deltas, isInInitialList bool) error {
		assert.True(t, isInInitialList)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, f.HasSynced())

	// 初始 key 被合并掉同样算处理完成
	require.NoError(t, f.Delete(newTestObj("", "b", "1")))
	assert.True(t, f.HasSynced())

	require.NoError(t, f.Add(newTestObj("", "c", "1")))
	_, err = f.Pop(func(d Deltas, isInInitialList bool) error {
		assert.False(t, isInInitialList)
		return nil
	})
	require.NoError(t, err)
}

func TestDeltaFIFOHasSyncedAfterEmptyReplace(t *testing.T) {
	f := NewDeltaFIFO(DeltaFIFOOptions{KnownObjects: keyLister{}})
	require.NoError(t, f.Replace(nil, "0"))
	assert.True(t, f.HasSynced())
}

func TestDeltaFIFOPopErrorRequeuesAtFront(t *testing.T) {
	f := NewDeltaFIFO(DeltaFIFOOptions{})
	require.NoError(t, f.Add(newTestObj("", "a", "1")))
	require.NoError(t, f.Add(newTestObj("", "b", "1")))

	failure := errors.New("indexer failed")
	_, err := f.Pop(func(d Deltas, _ bool) error {
		// 处理期间同一个 key 又有新的变化
		require.NoError(t, f.Update(newTestObj("", "a", "2")))
		return failure
	})
	assert.ErrorIs(t, err, failure)

	assert.Equal(t, []string{"a", "b"}, f.ListKeys())
	d := pop(t, f)
	assert.Equal(t, []DeltaType{Added, Updated}, deltaTypes(d))
	assert.Equal(t, "1", d.Oldest().Object.(*testObj).ResourceVersion)
}

func TestDeltaFIFOResyncSkipsPendingKeys(t *testing.T) {
	a := newTestObj("", "a", "1")
	b := newTestObj("", "b", "1")
	f := NewDeltaFIFO(DeltaFIFOOptions{KnownObjects: keyLister{"a": a, "b": b}})

	require.NoError(t, f.Update(newTestObj("", "a", "2")))
	require.NoError(t, f.Resync())

	da, _ := f.GetByKey("a")
	assert.Equal(t, []DeltaType{Updated}, deltaTypes(da))
	db, _ := f.GetByKey("b")
	assert.Equal(t, []DeltaType{Sync}, deltaTypes(db))
}

func TestDeltaFIFOPopBlocksUntilAddOrClose(t *testing.T) {
	f := NewDeltaFIFO(DeltaFIFOOptions{})

	got := make(chan Deltas, 1)
	go func() {
		d, err := f.Pop(func(Deltas, bool) error { return nil })
		if err == nil {
			got <- d
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before anything was queued")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, f.Add(newTestObj("", "a", "1")))
	select {
	case d := <-got:
		assert.Equal(t, "a", d.Newest().Object.(*testObj).Name)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Add")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.Pop(func(Deltas, bool) error { return nil })
		assert.ErrorIs(t, err, ErrFIFOClosed)
	}()
	f.Close()
	wg.Wait()
	assert.True(t, f.IsClosed())
}

func TestDeltaFIFOPreservesPerKeyOrder(t *testing.T) {
	f := NewDeltaFIFO(DeltaFIFOOptions{})
	for i := 1; i <= 5; i++ {
		require.NoError(t, f.Update(newTestObj("", "a", string(rune('0'+i)))))
	}
	d := pop(t, f)
	require.Len(t, d, 5)
	for i, delta := range d {
		assert.Equal(t, string(rune('1'+i)), delta.Object.(*testObj).ResourceVersion)
	}
}
