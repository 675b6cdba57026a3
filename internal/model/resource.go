package model

import (
	"fmt"

	"watchcache/pkg/informer"

	"github.com/mohae/deepcopy"
)

// Resource informer 缓存的通用资源对象
type Resource struct {
	APIVersion string                 `json:"apiVersion,omitempty"`
	Kind       string                 `json:"kind"`
	Metadata   informer.ObjectMeta    `json:"metadata"`
	Spec       map[string]interface{} `json:"spec,omitempty"`
	Status     map[string]interface{} `json:"status,omitempty"`
}

var _ informer.Object = &Resource{}

func (r *Resource) GetNamespace() string       { return r.Metadata.Namespace }
func (r *Resource) GetName() string            { return r.Metadata.Name }
func (r *Resource) GetResourceVersion() string { return r.Metadata.ResourceVersion }

// DeepCopy 缓存中的对象是共享的，修改前必须复制
func (r *Resource) DeepCopy() *Resource {
	if r == nil {
		return nil
	}
	return deepcopy.Copy(r).(*Resource)
}

// Key 与 informer.MetaNamespaceKeyFunc 一致
func (r *Resource) Key() string {
	if r.Metadata.Namespace == "" {
		return r.Metadata.Name
	}
	return r.Metadata.Namespace + "/" + r.Metadata.Name
}

// LabelIndexFunc 按 label 的值建立索引，没有该 label 的对象不进入索引
func LabelIndexFunc(label string) informer.IndexFunc {
	return func(obj interface{}) ([]string, error) {
		r, ok := obj.(*Resource)
		if !ok {
			return nil, fmt.Errorf("unexpected object type %T", obj)
		}
		if v, ok := r.Metadata.Labels[label]; ok {
			return []string{v}, nil
		}
		return nil, nil
	}
}
