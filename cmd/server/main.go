package main

import (
	"context"
	"flag"
	"fmt"

	"watchcache/cmd/server/wire"
	"watchcache/pkg/config"
	"watchcache/pkg/log"

	"go.uber.org/zap"
)

// @title           watchcache API
// @version         1.0.0
// @description     Read-only inspection API over the informer caches and their database mirror.
// @host      localhost:8000
func main() {
	var envConf = flag.String("conf", "config/local.yml", "config path, eg: -conf ./config/local.yml")
	flag.Parse()
	conf := config.NewConfig(*envConf)

	logger := log.NewLog(conf)

	app, cleanup, err := wire.NewWire(conf, logger)
	defer cleanup()
	if err != nil {
		panic(err)
	}
	logger.Info("server start", zap.String("host", fmt.Sprintf("http://%s:%d", conf.GetString("http.host"), conf.GetInt("http.port"))))
	logger.Info("metrics addr", zap.String("addr", fmt.Sprintf("http://%s:%d/metrics", conf.GetString("http.host"), conf.GetInt("http.port"))))
	if err = app.Run(context.Background()); err != nil {
		panic(err)
	}
}
