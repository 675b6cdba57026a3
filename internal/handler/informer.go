package handler

import (
	"context"
	"net/http"

	v1 "watchcache/api/v1"
	"watchcache/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type InformerHandler struct {
	*Handler
	informerService service.InformerService
}

func NewInformerHandler(handler *Handler, informerService service.InformerService) *InformerHandler {
	return &InformerHandler{
		Handler:         handler,
		informerService: informerService,
	}
}

// Healthz godoc
// @Summary 健康检查，所有 informer 完成首次同步后返回 200
// @Tags Informer模块
// @Produce json
// @Success 200 {object} v1.HealthzResponse
// @Failure 503 {object} v1.HealthzResponse
// @Router /healthz [get]
func (h *InformerHandler) Healthz(ctx *gin.Context) {
	data := h.informerService.Healthz(ctx)
	if !data.Synced {
		v1.HandleError(ctx, http.StatusServiceUnavailable, v1.ErrCacheNotSynced, data)
		return
	}
	v1.HandleSuccess(ctx, data)
}

// ListInformers godoc
// @Summary 获取 informer 状态
// @Tags Informer模块
// @Produce json
// @Success 200 {object} v1.ListInformersResponse
// @Router /api/v1/informers [get]
func (h *InformerHandler) ListInformers(ctx *gin.Context) {
	v1.HandleSuccess(ctx, h.informerService.ListInformers(ctx))
}

// ListObjects godoc
// @Summary 查询缓存中的对象
// @Tags Informer模块
// @Produce json
// @Param kind path string true "资源类型"
// @Param index query string false "索引名，例如 namespace"
// @Param value query string false "索引值"
// @Success 200 {object} v1.ListObjectsResponse
// @Router /api/v1/informers/{kind}/objects [get]
func (h *InformerHandler) ListObjects(ctx *gin.Context) {
	req := new(v1.ListObjectsRequest)
	if err := ctx.ShouldBindQuery(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.informerService.ListObjects(ctx, ctx.Param("kind"), req)
	if err != nil {
		h.logger.WithContext(ctx).Warn("informerService.ListObjects error", zap.Error(err))
		v1.HandleError(ctx, httpStatus(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, data)
}

// GetObject godoc
// @Summary 按 key 查询缓存中的对象
// @Tags Informer模块
// @Produce json
// @Param kind path string true "资源类型"
// @Param key query string true "namespace/name"
// @Success 200 {object} v1.GetObjectResponse
// @Router /api/v1/informers/{kind}/object [get]
func (h *InformerHandler) GetObject(ctx *gin.Context) {
	req := new(v1.GetObjectRequest)
	if err := ctx.ShouldBindQuery(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	obj, err := h.informerService.GetObject(ctx, ctx.Param("kind"), req.Key)
	if err != nil {
		v1.HandleError(ctx, httpStatus(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, obj)
}

// Watch godoc
// @Summary 订阅缓存变化（WebSocket），先回放当前对象再推送后续事件
// @Tags Informer模块
// @Param kind path string true "资源类型"
// @Router /api/v1/informers/{kind}/watch [get]
func (h *InformerHandler) Watch(ctx *gin.Context) {
	watchCtx, cancel := context.WithCancel(ctx.Request.Context())
	defer cancel()

	session, events, err := h.informerService.Watch(watchCtx, ctx.Param("kind"))
	if err != nil {
		v1.HandleError(ctx, httpStatus(err), err, nil)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.logger.WithContext(ctx).Warn("websocket upgrade failed", zap.String("session", session), zap.Error(err))
		return
	}
	defer conn.Close()

	// 客户端只读，读失败即认为断开
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-watchCtx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case ev := <-events:
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.WithContext(ctx).Info("websocket write failed", zap.String("session", session), zap.Error(err))
				return
			}
		}
	}
}
