package server

import (
	apiV1 "watchcache/api/v1"
	"watchcache/internal/middleware"
	"watchcache/internal/router"
	"watchcache/pkg/server/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewHTTPServer(
	deps router.RouterDeps,
) (*http.Server, error) {
	if deps.Config.GetString("env") == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	s := http.NewServer(
		gin.Default(),
		deps.Logger,
		http.WithServerHost(deps.Config.GetString("http.host")),
		http.WithServerPort(deps.Config.GetInt("http.port")),
	)

	metrics, err := middleware.MetricsMiddleware(deps.Registerer)
	if err != nil {
		return nil, err
	}
	s.Use(
		middleware.CORSMiddleware(),
		metrics,
		middleware.ResponseLogMiddleware(deps.Logger),
		middleware.RequestLogMiddleware(deps.Logger),
	)
	s.GET("/", func(ctx *gin.Context) {
		apiV1.HandleSuccess(ctx, map[string]interface{}{
			":)": "Thank you for using watchcache!",
		})
	})
	s.GET("/healthz", deps.InformerHandler.Healthz)
	s.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	apiV1 := s.Group("/api/v1")
	router.InitInformerRouter(deps, apiV1)
	router.InitRecordRouter(deps, apiV1)

	return s, nil
}
