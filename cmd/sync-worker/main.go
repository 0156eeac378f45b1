package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carbase/carbase/internal/catalog"
	"github.com/carbase/carbase/internal/common/config"
	"github.com/carbase/carbase/internal/common/db"
	"github.com/carbase/carbase/internal/common/logger"
	"github.com/carbase/carbase/internal/common/tracing"
	syncer "github.com/carbase/carbase/internal/sync"
)

var (
	configPath = flag.String("config", "configs/sync-worker.json", "配置文件路径")
)

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	_, closer, err := tracing.InitTracer(cfg.Server.Name, cfg.Jaeger.Endpoint, cfg.Jaeger.Sampler)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}

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
	if err := gormDB.AutoMigrate(catalog.Models()...); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	repo := catalog.NewRepo(gormDB)
	resolver := catalog.NewResolver(repo, log, cfg.Catalog.MinYear, cfg.Catalog.MaxYear)
	feed := syncer.NewFeedClient(cfg.Feed)
	orch := syncer.NewOrchestrator(feed, repo, resolver, log, cfg.Sync.VINDedup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go orch.Run(ctx, time.Duration(cfg.Sync.IntervalMinutes)*time.Minute)

	// 管理端口：健康检查 + 手动触发 + 状态查询
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		orch.TriggerNow()
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("triggered\n"))
	})
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]string{"state": string(orch.State())})
	})

	adminAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Sync.AdminPort)
	srv := &http.Server{
		Addr:              adminAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("sync-worker admin listening on %s", adminAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("admin server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Infof("received signal %v, shutting down...", sig)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
