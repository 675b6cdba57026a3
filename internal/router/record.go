package router

import (
	"github.com/gin-gonic/gin"
)

// InitRecordRouter 配置镜像记录路由
func InitRecordRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	recordRouter := r.Group("/records")
	{
		recordRouter.GET("", deps.RecordHandler.ListRecords)
		recordRouter.GET("/summary", deps.RecordHandler.Summary)
	}
}
