package main

import (
	"context"
	"flag"

	"watchcache/cmd/controller/wire"
	"watchcache/pkg/config"
	"watchcache/pkg/log"
)

// 只运行镜像控制器，不提供查询接口
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
	if err = app.Run(context.Background()); err != nil {
		panic(err)
	}
}
