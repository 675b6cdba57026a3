package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsMiddleware 按路由模板统计请求数和耗时
func MetricsMiddleware(reg prometheus.Registerer) (gin.HandlerFunc, error) {
	requests, err := registerOrExisting(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchcache",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by method, route and status code.",
	}, []string{"method", "route", "code"}))
	if err != nil {
		return nil, err
	}
	duration, err := registerOrExisting(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "watchcache",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"}))
	if err != nil {
		return nil, err
	}

	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requests.WithLabelValues(ctx.Request.Method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		duration.WithLabelValues(ctx.Request.Method, route).Observe(time.Since(start).Seconds())
	}, nil
}

func registerOrExisting[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}
