package v1

// Informer 相关 API 定义

// ==================== Healthz ====================

// HealthzResponse 健康检查响应
type HealthzResponse struct {
	Response
	Data HealthzData `json:"data"`
}

type HealthzData struct {
	Synced   bool     `json:"synced" example:"false"`
	Unsynced []string `json:"unsynced" example:"pods"` // 尚未完成首次同步的资源类型
}

// ==================== Informers ====================

// ListInformersResponse informer 状态列表响应
type ListInformersResponse struct {
	Response
	Data ListInformersData `json:"data"`
}

type ListInformersData struct {
	Items []InformerStatus `json:"items"`
}

type InformerStatus struct {
	Kind                    string   `json:"kind" example:"pods"`
	Synced                  bool     `json:"synced" example:"true"`
	Stopped                 bool     `json:"stopped" example:"false"`
	ReflectorState          string   `json:"reflector_state" example:"Watching"`
	LastSyncResourceVersion string   `json:"last_sync_resource_version" example:"42"`
	Count                   int      `json:"count" example:"10"`
	Indexes                 []string `json:"indexes"`
}

// ==================== Objects ====================

// ListObjectsRequest 查询缓存对象，指定 index 时按索引值过滤
type ListObjectsRequest struct {
	Index string `form:"index" example:"namespace"`
	Value string `form:"value" example:"default"`
}

// ListObjectsResponse 缓存对象列表响应
type ListObjectsResponse struct {
	Response
	Data ListObjectsData `json:"data"`
}

type ListObjectsData struct {
	Kind  string        `json:"kind" example:"pods"`
	Total int           `json:"total" example:"1"`
	Items []interface{} `json:"items"`
}

// GetObjectRequest 按 key 查询单个对象
type GetObjectRequest struct {
	Key string `form:"key" binding:"required" example:"default/nginx"`
}

// GetObjectResponse 单个对象响应
type GetObjectResponse struct {
	Response
	Data interface{} `json:"data"`
}

// ==================== Watch ====================

const (
	WatchEventAdded    = "ADDED"
	WatchEventModified = "MODIFIED"
	WatchEventDeleted  = "DELETED"
)

// WatchEvent websocket 推送的事件
type WatchEvent struct {
	Session       string      `json:"session"`
	Type          string      `json:"type" example:"ADDED"`
	InInitialList bool        `json:"in_initial_list"`
	Key           string      `json:"key" example:"default/nginx"`
	Object        interface{} `json:"object"`
}
