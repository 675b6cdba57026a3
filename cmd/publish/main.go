package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"strings"

	"watchcache/internal/model"
	"watchcache/internal/repository"
	"watchcache/internal/source"
	"watchcache/pkg/config"
	"watchcache/pkg/log"

	"go.uber.org/zap"
)

// 把 JSON 文件中的资源写入 redis 数据源，文件内容可以是单个对象或数组
func main() {
	var (
		envConf = flag.String("conf", "config/local.yml", "config path, eg: -conf ./config/local.yml")
		file    = flag.String("f", "", "resource file (json)")
		remove  = flag.Bool("delete", false, "delete the resources instead of applying them")
	)
	flag.Parse()
	conf := config.NewConfig(*envConf)
	logger := log.NewLog(conf)

	if *file == "" {
		logger.Fatal("-f is required")
	}
	resources, err := readResources(*file)
	if err != nil {
		logger.Fatal("read resources failed", zap.String("file", *file), zap.Error(err))
	}

	rdb, err := repository.NewRedis(conf)
	if err != nil {
		logger.Fatal("connect redis failed", zap.Error(err))
	}
	defer rdb.Close()
	pub := source.NewPublisher(rdb, conf.GetString("data.redis.prefix"), conf.GetInt64("data.redis.log_size"))

	ctx := context.Background()
	for _, r := range resources {
		var rv string
		if *remove {
			rv, err = pub.Remove(ctx, r)
		} else {
			rv, err = pub.Apply(ctx, r)
		}
		if err != nil {
			logger.Error("publish failed", zap.String("kind", r.Kind), zap.String("key", r.Key()), zap.Error(err))
			continue
		}
		logger.Info("published", zap.String("kind", r.Kind), zap.String("key", r.Key()),
			zap.String("resourceVersion", rv), zap.Bool("delete", *remove))
	}
}

func readResources(path string) ([]*model.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		var list []*model.Resource
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	r := new(model.Resource)
	if err := json.Unmarshal(data, r); err != nil {
		return nil, err
	}
	return []*model.Resource{r}, nil
}
