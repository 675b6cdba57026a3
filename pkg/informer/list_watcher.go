package informer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ListOptions List / Watch 的参数
type ListOptions struct {
	// ResourceVersion 为空表示从最新状态开始
	ResourceVersion string
	// TimeoutSeconds watch 的服务端超时，0 表示不限制
	TimeoutSeconds int64
	// AllowWatchBookmarks 允许数据源发送 Bookmark 事件
	AllowWatchBookmarks bool
	Watch               bool
}

// ListResult 一次 List 的结果
type ListResult struct {
	Items           []Object
	ResourceVersion string
}

// EventType watch 事件类型
type EventType string

const (
	EventAdded    EventType = "ADDED"
	EventModified EventType = "MODIFIED"
	EventDeleted  EventType = "DELETED"
	EventError    EventType = "ERROR"
	EventBookmark EventType = "BOOKMARK"
)

// Event watch 流中的一个事件。
// Error 事件的 Object 为 *Status，Bookmark 事件的 Object 只携带 ResourceVersion
type Event struct {
	Type   EventType
	Object interface{}
}

// Watcher 不可重启的事件流，数据源在流结束时关闭 ResultChan
type Watcher interface {
	ResultChan() <-chan Event
	Stop()
}

// ListerWatcher informer 的数据源
type ListerWatcher interface {
	List(ctx context.Context, opts ListOptions) (*ListResult, error)
	Watch(ctx context.Context, opts ListOptions) (Watcher, error)
}

// ListFunc 列出所有资源
type ListFunc func(ctx context.Context, opts ListOptions) (*ListResult, error)

// WatchFunc 从给定版本开始监听资源变化
type WatchFunc func(ctx context.Context, opts ListOptions) (Watcher, error)

// ListWatch 用两个函数实现 ListerWatcher
type ListWatch struct {
	ListFunc  ListFunc
	WatchFunc WatchFunc
}

func (lw *ListWatch) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	return lw.ListFunc(ctx, opts)
}

func (lw *ListWatch) Watch(ctx context.Context, opts ListOptions) (Watcher, error) {
	return lw.WatchFunc(ctx, opts)
}

// StatusReason 数据源返回的错误原因
type StatusReason string

const (
	StatusReasonExpired         StatusReason = "Expired"
	StatusReasonGone            StatusReason = "Gone"
	StatusReasonTimeout         StatusReason = "Timeout"
	StatusReasonInternalError   StatusReason = "InternalError"
	StatusReasonTooManyRequests StatusReason = "TooManyRequests"
)

// Status 数据源在 Error 事件中携带的状态
type Status struct {
	Code    int32        `json:"code"`
	Reason  StatusReason `json:"reason"`
	Message string       `json:"message"`
}

// StatusError 把 Status 包装为 error
type StatusError struct {
	ErrStatus Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (code %d): %s", e.ErrStatus.Reason, e.ErrStatus.Code, e.ErrStatus.Message)
}

// NewExpiredStatus 资源版本过旧，无法继续 watch
func NewExpiredStatus(message string) *Status {
	return &Status{Code: http.StatusGone, Reason: StatusReasonExpired, Message: message}
}

// IsResourceExpired 判断错误是否表示资源版本过旧
func IsResourceExpired(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.ErrStatus.Reason == StatusReasonExpired ||
		se.ErrStatus.Reason == StatusReasonGone ||
		se.ErrStatus.Code == http.StatusGone
}

// IsTooManyRequests 数据源要求限流
func IsTooManyRequests(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.ErrStatus.Reason == StatusReasonTooManyRequests || se.ErrStatus.Code == http.StatusTooManyRequests
}
