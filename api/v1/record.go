package v1

import "time"

// ListRecordsRequest 查询数据库镜像记录
type ListRecordsRequest struct {
	Kind string `form:"kind" example:"pods"`
}

// ListRecordsResponse 镜像记录列表响应
type ListRecordsResponse struct {
	Response
	Data ListRecordsData `json:"data"`
}

type ListRecordsData struct {
	Total int          `json:"total" example:"1"`
	Items []RecordItem `json:"items"`
}

type RecordItem struct {
	Kind            string      `json:"kind" example:"pods"`
	Key             string      `json:"key" example:"default/nginx"`
	Namespace       string      `json:"namespace" example:"default"`
	Name            string      `json:"name" example:"nginx"`
	ResourceVersion string      `json:"resource_version" example:"42"`
	ResourceHash    string      `json:"resource_hash"`
	Object          interface{} `json:"object"`
	LastSyncTime    time.Time   `json:"last_sync_time"`
	UpdateTime      time.Time   `json:"update_time"`
}

// RecordSummaryResponse 每种资源的记录数量
type RecordSummaryResponse struct {
	Response
	Data RecordSummaryData `json:"data"`
}

type RecordSummaryData struct {
	Counts map[string]int64 `json:"counts"`
}
