package informer

import (
	"fmt"
	"sync"
)

// Store 本地缓存，按 KeyFunc 计算的 key 保存对象
type Store interface {
	Add(obj interface{}) error
	Update(obj interface{}) error
	Delete(obj interface{}) error
	List() []interface{}
	ListKeys() []string
	Get(obj interface{}) (item interface{}, exists bool, err error)
	GetByKey(key string) (item interface{}, exists bool, err error)
	// Replace 用 list 整体替换缓存内容
	Replace(list []interface{}, resourceVersion string) error
	Resync() error
}

// ThreadSafeStore 线程安全的 key -> object 存储，带二级索引。
// 每个实例持有自己的锁，不同 informer 之间不共享
type ThreadSafeStore interface {
	Add(key string, obj interface{}) error
	Update(key string, obj interface{}) error
	Delete(key string) error
	Get(key string) (item interface{}, exists bool)
	List() []interface{}
	ListKeys() []string
	Replace(items map[string]interface{}, resourceVersion string) error
	Index(indexName string, obj interface{}) ([]interface{}, error)
	IndexKeys(indexName, indexedValue string) ([]string, error)
	ListIndexFuncValues(name string) []string
	ByIndex(indexName, indexedValue string) ([]interface{}, error)
	GetIndexers() Indexers
	AddIndexers(newIndexers Indexers) error
	Resync() error
}

// threadSafeMap 线程安全的本地缓存
type threadSafeMap struct {
	lock  sync.RWMutex
	items map[string]interface{}
	index *storeIndex
}

func NewThreadSafeStore(indexers Indexers) ThreadSafeStore {
	return &threadSafeMap{
		items: make(map[string]interface{}),
		index: newStoreIndex(indexers),
	}
}

func (c *threadSafeMap) Add(key string, obj interface{}) error {
	return c.Update(key, obj)
}

func (c *threadSafeMap) Update(key string, obj interface{}) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	oldObject := c.items[key]
	if err := c.index.updateIndices(oldObject, obj, key); err != nil {
		return err
	}
	c.items[key] = obj
	return nil
}

func (c *threadSafeMap) Delete(key string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	obj, exists := c.items[key]
	if !exists {
		return nil
	}
	if err := c.index.updateIndices(obj, nil, key); err != nil {
		return err
	}
	delete(c.items, key)
	return nil
}

func (c *threadSafeMap) Get(key string) (interface{}, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	item, exists := c.items[key]
	return item, exists
}

func (c *threadSafeMap) List() []interface{} {
	c.lock.RLock()
	defer c.lock.RUnlock()
	list := make([]interface{}, 0, len(c.items))
	for _, item := range c.items {
		list = append(list, item)
	}
	return list
}

func (c *threadSafeMap) ListKeys() []string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	keys := make([]string, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	return keys
}

func (c *threadSafeMap) Replace(items map[string]interface{}, resourceVersion string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	// 先在新索引上构建，全部成功后再替换
	index := newStoreIndex(c.index.indexers)
	for key, item := range items {
		if err := index.updateIndices(nil, item, key); err != nil {
			return err
		}
	}
	c.items = items
	c.index = index
	return nil
}

func (c *threadSafeMap) Index(indexName string, obj interface{}) ([]interface{}, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	storeKeySet, err := c.index.getKeysFromIndex(indexName, obj)
	if err != nil {
		return nil, err
	}

	list := make([]interface{}, 0, len(storeKeySet))
	for storeKey := range storeKeySet {
		list = append(list, c.items[storeKey])
	}
	return list, nil
}

func (c *threadSafeMap) ByIndex(indexName, indexedValue string) ([]interface{}, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	set, err := c.index.getKeysByIndex(indexName, indexedValue)
	if err != nil {
		return nil, err
	}
	list := make([]interface{}, 0, len(set))
	for key := range set {
		list = append(list, c.items[key])
	}
	return list, nil
}

func (c *threadSafeMap) IndexKeys(indexName, indexedValue string) ([]string, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	set, err := c.index.getKeysByIndex(indexName, indexedValue)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	return keys, nil
}

func (c *threadSafeMap) ListIndexFuncValues(indexName string) []string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.index.getIndexValues(indexName)
}

func (c *threadSafeMap) GetIndexers() Indexers {
	c.lock.RLock()
	defer c.lock.RUnlock()
	indexers := make(Indexers, len(c.index.indexers))
	for k, v := range c.index.indexers {
		indexers[k] = v
	}
	return indexers
}

func (c *threadSafeMap) AddIndexers(newIndexers Indexers) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if len(c.items) > 0 {
		return fmt.Errorf("cannot add indexers to running index")
	}
	return c.index.addIndexers(newIndexers)
}

func (c *threadSafeMap) Resync() error {
	// 本地缓存不需要 resync
	return nil
}

// cache 在 ThreadSafeStore 之上实现 Store / Indexer
type cache struct {
	cacheStorage ThreadSafeStore
	keyFunc      KeyFunc
}

var _ Store = &cache{}

// NewStore 返回不带索引的 Store
func NewStore(keyFunc KeyFunc) Store {
	return &cache{
		cacheStorage: NewThreadSafeStore(Indexers{}),
		keyFunc:      keyFunc,
	}
}

// NewIndexer 返回带索引的 Store
func NewIndexer(keyFunc KeyFunc, indexers Indexers) Indexer {
	return &cache{
		cacheStorage: NewThreadSafeStore(indexers),
		keyFunc:      keyFunc,
	}
}

func (c *cache) Add(obj interface{}) error {
	key, err := c.keyFunc(obj)
	if err != nil {
		return KeyError{obj, err}
	}
	return c.cacheStorage.Add(key, obj)
}

func (c *cache) Update(obj interface{}) error {
	key, err := c.keyFunc(obj)
	if err != nil {
		return KeyError{obj, err}
	}
	return c.cacheStorage.Update(key, obj)
}

func (c *cache) Delete(obj interface{}) error {
	key, err := c.keyFunc(obj)
	if err != nil {
		return KeyError{obj, err}
	}
	return c.cacheStorage.Delete(key)
}

func (c *cache) List() []interface{} {
	return c.cacheStorage.List()
}

func (c *cache) ListKeys() []string {
	return c.cacheStorage.ListKeys()
}

func (c *cache) GetIndexers() Indexers {
	return c.cacheStorage.GetIndexers()
}

func (c *cache) Index(indexName string, obj interface{}) ([]interface{}, error) {
	return c.cacheStorage.Index(indexName, obj)
}

func (c *cache) IndexKeys(indexName, indexedValue string) ([]string, error) {
	return c.cacheStorage.IndexKeys(indexName, indexedValue)
}

func (c *cache) ListIndexFuncValues(indexName string) []string {
	return c.cacheStorage.ListIndexFuncValues(indexName)
}

func (c *cache) ByIndex(indexName, indexedValue string) ([]interface{}, error) {
	return c.cacheStorage.ByIndex(indexName, indexedValue)
}

func (c *cache) AddIndexers(newIndexers Indexers) error {
	return c.cacheStorage.AddIndexers(newIndexers)
}

func (c *cache) Get(obj interface{}) (item interface{}, exists bool, err error) {
	key, err := c.keyFunc(obj)
	if err != nil {
		return nil, false, KeyError{obj, err}
	}
	return c.GetByKey(key)
}

func (c *cache) GetByKey(key string) (item interface{}, exists bool, err error) {
	item, exists = c.cacheStorage.Get(key)
	return item, exists, nil
}

func (c *cache) Replace(list []interface{}, resourceVersion string) error {
	items := make(map[string]interface{}, len(list))
	for _, item := range list {
		key, err := c.keyFunc(item)
		if err != nil {
			return KeyError{item, err}
		}
		items[key] = item
	}
	return c.cacheStorage.Replace(items, resourceVersion)
}

func (c *cache) Resync() error {
	return nil
}
