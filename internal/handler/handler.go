package handler

import (
	"errors"
	"net/http"

	v1 "watchcache/api/v1"
	"watchcache/pkg/log"
)

type Handler struct {
	logger *log.Logger
}

func NewHandler(
	logger *log.Logger,
) *Handler {
	return &Handler{
		logger: logger,
	}
}

// httpStatus 业务错误对应的 HTTP 状态码
func httpStatus(err error) int {
	switch {
	case errors.Is(err, v1.ErrBadRequest), errors.Is(err, v1.ErrIndexNotFound):
		return http.StatusBadRequest
	case errors.Is(err, v1.ErrNotFound), errors.Is(err, v1.ErrKindNotFound), errors.Is(err, v1.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, v1.ErrServiceUnavailable), errors.Is(err, v1.ErrCacheNotSynced):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
