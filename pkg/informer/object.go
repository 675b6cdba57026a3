package informer

import (
	"errors"
	"fmt"
	"strings"
)

// Object 是缓存中对象必须满足的能力：提供命名空间、名称和资源版本
type Object interface {
	GetNamespace() string
	GetName() string
	GetResourceVersion() string
}

// ObjectMeta 可嵌入到资源结构体中以实现 Object
type ObjectMeta struct {
	Namespace       string            `json:"namespace,omitempty"`
	Name            string            `json:"name"`
	UID             string            `json:"uid,omitempty"`
	ResourceVersion string            `json:"resourceVersion,omitempty"`
	Labels          map[string]string `json:"labels,omitempty"`
}

func (m *ObjectMeta) GetNamespace() string       { return m.Namespace }
func (m *ObjectMeta) GetName() string            { return m.Name }
func (m *ObjectMeta) GetResourceVersion() string { return m.ResourceVersion }
func (m *ObjectMeta) GetLabels() map[string]string {
	return m.Labels
}

// ErrMissingName 对象缺少计算 key 所需的名称
var ErrMissingName = errors.New("object has no name")

// KeyFunc 计算对象的 key
type KeyFunc func(obj interface{}) (string, error)

// KeyError 在无法计算对象 key 时返回
type KeyError struct {
	Obj interface{}
	Err error
}

func (k KeyError) Error() string {
	return fmt.Sprintf("couldn't create key for object %+v: %v", k.Obj, k.Err)
}

func (k KeyError) Unwrap() error {
	return k.Err
}

// ExplicitKey 可直接作为 key 使用
type ExplicitKey string

// MetaNamespaceKeyFunc 默认 key 函数：<namespace>/<name>，命名空间为空时只有 <name>
func MetaNamespaceKeyFunc(obj interface{}) (string, error) {
	if key, ok := obj.(ExplicitKey); ok {
		return string(key), nil
	}
	o, ok := obj.(Object)
	if !ok {
		return "", fmt.Errorf("object has no meta: %T does not implement Object", obj)
	}
	if o.GetName() == "" {
		return "", ErrMissingName
	}
	if len(o.GetNamespace()) > 0 {
		return o.GetNamespace() + "/" + o.GetName(), nil
	}
	return o.GetName(), nil
}

// DeletionHandlingMetaNamespaceKeyFunc 在 MetaNamespaceKeyFunc 基础上识别 DeletedFinalStateUnknown
func DeletionHandlingMetaNamespaceKeyFunc(obj interface{}) (string, error) {
	if d, ok := obj.(DeletedFinalStateUnknown); ok {
		return d.Key, nil
	}
	return MetaNamespaceKeyFunc(obj)
}

// SplitMetaNamespaceKey 将 key 拆分为 namespace 和 name
func SplitMetaNamespaceKey(key string) (namespace, name string, err error) {
	parts := strings.Split(key, "/")
	switch len(parts) {
	case 1:
		return "", parts[0], nil
	case 2:
		return parts[0], parts[1], nil
	}
	return "", "", fmt.Errorf("unexpected key format: %q", key)
}
