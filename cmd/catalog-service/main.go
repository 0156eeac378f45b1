package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/carbase/carbase/internal/catalog"
	"github.com/carbase/carbase/internal/common/config"
	"github.com/carbase/carbase/internal/common/db"
	"github.com/carbase/carbase/internal/common/logger"
	"github.com/carbase/carbase/internal/common/tracing"
	"github.com/carbase/carbase/internal/httpapi"
	"github.com/carbase/carbase/internal/user"
)

var (
	configPath   = flag.String("config", "configs/catalog-service.json", "配置文件路径")
	consulHost   = flag.String("consul-host", "", "从 Consul KV 拉配置时的 Consul 地址")
	consulPort   = flag.Int("consul-port", 8500, "Consul 端口")
	consulKVName = flag.String("consul-kv-key", "", "Consul KV 配置 key（设置后优先于本地文件）")
)

func main() {
	flag.Parse()

	// 加载配置：优先 Consul KV，其次本地文件（缺失则内置默认值）
	var cfg *config.Config
	var err error
	if *consulKVName != "" {
		cfg, err = config.LoadConfigFromConsulKV(*consulHost, *consulPort, *consulKVName)
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	tracer, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	// 初始化数据库
	gormDB, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}
	models := append(catalog.Models(), &user.User{})
	if err := gormDB.AutoMigrate(models...); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	svc := catalog.NewService(catalog.NewRepo(gormDB), log, catalog.ServiceOptions{
		MinYear:         cfg.Catalog.MinYear,
		MaxYear:         cfg.Catalog.MaxYear,
		DefaultPageSize: cfg.Catalog.DefaultPageSize,
		MaxPageSize:     cfg.Catalog.MaxPageSize,
		Retry: catalog.RetryPolicy{
			Attempts: cfg.Retry.Attempts,
			Backoff:  time.Duration(cfg.Retry.BackoffMS) * time.Millisecond,
		},
	})
	users := user.NewRepo(gormDB)

	handler := httpapi.NewRouter(cfg, log, svc, users)
	if err := httpapi.RunHTTPServer(cfg, log, handler); err != nil {
		log.Fatalf("catalog-service exited with error: %v", err)
	}
}
