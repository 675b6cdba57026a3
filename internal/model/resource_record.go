package model

import (
	"time"
)

// ResourceRecord 镜像到数据库中的资源
type ResourceRecord struct {
	Id              int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Kind            string    `json:"kind" gorm:"column:kind;size:64;uniqueIndex:idx_kind_key"`
	Key             string    `json:"key" gorm:"column:resource_key;size:255;uniqueIndex:idx_kind_key"`
	Namespace       string    `json:"namespace" gorm:"column:namespace;size:128"`
	Name            string    `json:"name" gorm:"column:name;size:128"`
	ResourceVersion string    `json:"resource_version" gorm:"column:resource_version;size:64"`
	ResourceHash    string    `json:"resource_hash" gorm:"column:resource_hash;size:64"` // 资源内容 hash，未变化时跳过更新
	Data            string    `json:"data" gorm:"column:data;type:text"`
	LastSyncTime    time.Time `json:"last_sync_time" gorm:"column:last_sync_time"`
	CreateTime      time.Time `json:"create_time" gorm:"column:gmt_create"`
	UpdateTime      time.Time `json:"update_time" gorm:"column:gmt_modified"`
}

func (ResourceRecord) TableName() string {
	return "resource_record"
}
