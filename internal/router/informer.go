package router

import (
	"github.com/gin-gonic/gin"
)

// InitInformerRouter 配置缓存查询路由
func InitInformerRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	informerRouter := r.Group("/informers")
	{
		// informer 状态
		informerRouter.GET("", deps.InformerHandler.ListInformers)

		// List / ByIndex
		informerRouter.GET("/:kind/objects", deps.InformerHandler.ListObjects)

		// 按 key 查询
		informerRouter.GET("/:kind/object", deps.InformerHandler.GetObject)

		// WebSocket 订阅
		informerRouter.GET("/:kind/watch", deps.InformerHandler.Watch)
	}
}
