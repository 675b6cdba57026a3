package informer

import (
	"fmt"

	set "github.com/duke-git/lancet/v2/datastructure/set"
)

// Indexer 在 Store 的基础上增加命名的二级索引
type Indexer interface {
	Store
	// Index 返回与 obj 在 indexName 索引上有相同索引值的对象
	Index(indexName string, obj interface{}) ([]interface{}, error)
	// IndexKeys 返回索引值为 indexedValue 的对象 key
	IndexKeys(indexName, indexedValue string) ([]string, error)
	// ListIndexFuncValues 返回索引上的所有索引值
	ListIndexFuncValues(indexName string) []string
	// ByIndex 返回索引值为 indexedValue 的对象
	ByIndex(indexName, indexedValue string) ([]interface{}, error)
	GetIndexers() Indexers
	// AddIndexers 必须在对象写入之前调用
	AddIndexers(newIndexers Indexers) error
}

// IndexFunc 计算对象的索引值
type IndexFunc func(obj interface{}) ([]string, error)

// Index 索引值 -> key 集合
type Index map[string]set.Set[string]

// Indexers 索引名 -> IndexFunc
type Indexers map[string]IndexFunc

// Indices 索引名 -> Index
type Indices map[string]Index

const NamespaceIndex = "namespace"

// MetaNamespaceIndexFunc 按命名空间索引
func MetaNamespaceIndexFunc(obj interface{}) ([]string, error) {
	o, ok := obj.(Object)
	if !ok {
		return []string{""}, fmt.Errorf("object has no meta: %T does not implement Object", obj)
	}
	return []string{o.GetNamespace()}, nil
}

// storeIndex 维护索引，调用方负责加锁
type storeIndex struct {
	indexers Indexers
	indices  Indices
}

func newStoreIndex(indexers Indexers) *storeIndex {
	if indexers == nil {
		indexers = Indexers{}
	}
	return &storeIndex{
		indexers: indexers,
		indices:  Indices{},
	}
}

func (i *storeIndex) getKeysFromIndex(indexName string, obj interface{}) (set.Set[string], error) {
	indexFunc := i.indexers[indexName]
	if indexFunc == nil {
		return nil, fmt.Errorf("index with name %s does not exist", indexName)
	}

	indexedValues, err := indexFunc(obj)
	if err != nil {
		return nil, err
	}
	index := i.indices[indexName]

	storeKeySet := set.New[string]()
	for _, indexedValue := range indexedValues {
		for key := range index[indexedValue] {
			storeKeySet.Add(key)
		}
	}
	return storeKeySet, nil
}

func (i *storeIndex) getKeysByIndex(indexName, indexedValue string) (set.Set[string], error) {
	if i.indexers[indexName] == nil {
		return nil, fmt.Errorf("index with name %s does not exist", indexName)
	}
	return i.indices[indexName][indexedValue], nil
}

func (i *storeIndex) getIndexValues(indexName string) []string {
	index := i.indices[indexName]
	names := make([]string, 0, len(index))
	for key := range index {
		names = append(names, key)
	}
	return names
}

func (i *storeIndex) addIndexers(newIndexers Indexers) error {
	for name := range newIndexers {
		if _, exists := i.indexers[name]; exists {
			return fmt.Errorf("indexer conflict: %s", name)
		}
	}
	for k, v := range newIndexers {
		i.indexers[k] = v
	}
	return nil
}

// updateIndices 先删除旧对象的索引值再写入新对象的索引值。
// oldObj 为 nil 表示新增，newObj 为 nil 表示删除。
// 所有索引值先计算完成再修改，IndexFunc 出错时索引保持不变
func (i *storeIndex) updateIndices(oldObj, newObj interface{}, key string) error {
	type change struct {
		name      string
		oldValues []string
		newValues []string
	}
	changes := make([]change, 0, len(i.indexers))
	for name, indexFunc := range i.indexers {
		c := change{name: name}
		if oldObj != nil {
			values, err := indexFunc(oldObj)
			if err != nil {
				return fmt.Errorf("unable to calculate an index entry for key %q on index %q: %w", key, name, err)
			}
			c.oldValues = values
		}
		if newObj != nil {
			values, err := indexFunc(newObj)
			if err != nil {
				return fmt.Errorf("unable to calculate an index entry for key %q on index %q: %w", key, name, err)
			}
			c.newValues = values
		}
		changes = append(changes, c)
	}

	for _, c := range changes {
		index := i.indices[c.name]
		if index == nil {
			index = Index{}
			i.indices[c.name] = index
		}
		// 常见情况：索引值没有变化
		if len(c.newValues) == 1 && len(c.oldValues) == 1 && c.newValues[0] == c.oldValues[0] {
			continue
		}
		for _, value := range c.oldValues {
			i.deleteKeyFromIndex(key, value, index)
		}
		for _, value := range c.newValues {
			i.addKeyToIndex(key, value, index)
		}
	}
	return nil
}

func (i *storeIndex) addKeyToIndex(key, indexValue string, index Index) {
	keys := index[indexValue]
	if keys == nil {
		keys = set.New[string]()
		index[indexValue] = keys
	}
	keys.Add(key)
}

func (i *storeIndex) deleteKeyFromIndex(key, indexValue string, index Index) {
	keys := index[indexValue]
	if keys == nil {
		return
	}
	keys.Delete(key)
	// 删除空桶
	if len(keys) == 0 {
		delete(index, indexValue)
	}
}
