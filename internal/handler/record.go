package handler

import (
	"net/http"

	v1 "watchcache/api/v1"
	"watchcache/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RecordHandler struct {
	*Handler
	recordService service.RecordService
}

func NewRecordHandler(handler *Handler, recordService service.RecordService) *RecordHandler {
	return &RecordHandler{
		Handler:       handler,
		recordService: recordService,
	}
}

// ListRecords godoc
// @Summary 获取数据库中的镜像记录
// @Tags 镜像记录模块
// @Produce json
// @Param kind query string false "资源类型，为空返回全部"
// @Success 200 {object} v1.ListRecordsResponse
// @Router /api/v1/records [get]
func (h *RecordHandler) ListRecords(ctx *gin.Context) {
	req := new(v1.ListRecordsRequest)
	if err := ctx.ShouldBindQuery(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.recordService.ListRecords(ctx, req)
	if err != nil {
		h.logger.WithContext(ctx).Error("recordService.ListRecords error", zap.Error(err))
		v1.HandleError(ctx, httpStatus(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, data)
}

// Summary godoc
// @Summary 每种资源的镜像记录数量
// @Tags 镜像记录模块
// @Produce json
// @Success 200 {object} v1.RecordSummaryResponse
// @Router /api/v1/records/summary [get]
func (h *RecordHandler) Summary(ctx *gin.Context) {
	data, err := h.recordService.Summary(ctx)
	if err != nil {
		h.logger.WithContext(ctx).Error("recordService.Summary error", zap.Error(err))
		v1.HandleError(ctx, httpStatus(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, data)
}
