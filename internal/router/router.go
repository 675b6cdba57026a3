package router

import (
	"watchcache/internal/handler"
	"watchcache/pkg/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

type RouterDeps struct {
	Logger          *log.Logger
	Config          *viper.Viper
	Registerer      prometheus.Registerer
	Gatherer        prometheus.Gatherer
	InformerHandler *handler.InformerHandler
	RecordHandler   *handler.RecordHandler
}
