package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carbase/carbase/internal/catalog"
	"github.com/carbase/carbase/internal/common/config"
	"github.com/carbase/carbase/internal/common/discovery"
	"github.com/carbase/carbase/internal/common/logger"
	"github.com/carbase/carbase/internal/common/middleware"
	"github.com/carbase/carbase/internal/user"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// NewRouter 组装路由与 middleware 链。
func NewRouter(cfg *config.Config, log logger.Logger, svc *catalog.Service, users *user.Repo) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	cars := NewCarHandler(svc, log)
	r.HandleFunc("/cars", cars.Create).Methods(http.MethodPost)
	r.HandleFunc("/cars", cars.List).Methods(http.MethodGet)
	r.HandleFunc("/cars/{id}", cars.Get).Methods(http.MethodGet)
	r.HandleFunc("/cars/{id}", cars.Patch).Methods(http.MethodPatch)
	r.HandleFunc("/cars/{id}", cars.Put).Methods(http.MethodPut)
	r.HandleFunc("/cars/{id}", cars.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/makes/{id}", cars.DeleteMake).Methods(http.MethodDelete)

	authH := NewAuthHandler(users, cfg.Auth, log)
	r.HandleFunc("/auth/register", authH.Register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", authH.Login).Methods(http.MethodPost)

	var limiter middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewTokenBucket(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate)
	}

	chain := Chain(
		RecoveryMiddleware(log),            // 异常恢复，避免服务崩溃
		RequestIDMiddleware(),              // 请求 id 生成/透传
		TracingMiddleware(cfg.Server.Name), // 链路追踪
		AccessLogMiddleware(log),           // 访问日志
		RateLimitMiddleware(limiter),       // 限流
		JWTAuthMiddleware(cfg.Auth, log),   // 鉴权
	)
	return chain(r)
}

type RunHTTPOptions struct {
	ShutdownTimeout time.Duration
}

func defaultRunHTTPOptions() RunHTTPOptions {
	return RunHTTPOptions{
		ShutdownTimeout: 5 * time.Second,
	}
}

// WithShutdownTimeout 修改优雅退出等待时间。
func WithShutdownTimeout(d time.Duration) func(*RunHTTPOptions) {
	return func(o *RunHTTPOptions) {
		if d > 0 {
			o.ShutdownTimeout = d
		}
	}
}

// RunHTTPServer 统一的 HTTP 服务启动模板：
// - 初始化 http server
// - 注册到 Consul（HTTP check，失败不阻塞启动）
// - 监听退出信号，优雅关闭
func RunHTTPServer(cfg *config.Config, log logger.Logger, handler http.Handler, opts ...func(*RunHTTPOptions)) error {
	if cfg == nil {
		return fmt.Errorf("cfg is nil")
	}
	if log == nil {
		return fmt.Errorf("log is nil")
	}
	if handler == nil {
		return fmt.Errorf("handler is nil")
	}

	o := defaultRunHTTPOptions()
	for _, apply := range opts {
		if apply != nil {
			apply(&o)
		}
	}

	// 初始化 Consul 客户端（失败不阻塞服务启动）
	consulClient, err := discovery.NewConsulClient(cfg.Consul.Host, cfg.Consul.Port)
	if err != nil {
		log.Warnf("failed to connect to Consul: %v", err)
		consulClient = nil
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 注册到 Consul（成功才 defer 注销）
	if consulClient != nil {
		serviceID := fmt.Sprintf("%s-%s", cfg.Server.Name, uuid.New().String())
		registry := discovery.NewServiceRegistry(
			consulClient,
			serviceID,
			cfg.Server.Name,
			cfg.Server.Host,
			cfg.Server.HTTPPort,
			[]string{"http"},
		)
		if err := registry.Register(); err != nil {
			log.Warnf("failed to register service to Consul: %v", err)
		} else {
			log.Infof("Service registered to Consul: %s", serviceID)
			defer func() {
				if err := registry.Deregister(); err != nil {
					log.Warnf("failed to deregister service from Consul: %v", err)
				}
			}()
		}
	}

	log.Infof("%s starting on %s", cfg.Server.Name, srv.Addr)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("received signal %v, shutting down...", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http serve failed: %w", err)
		}
		return nil
	}

	// 优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), o.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("http shutdown timeout, forcing close: %v", err)
		_ = srv.Close()
		return nil
	}
	log.Info("http server stopped gracefully")
	return nil
}
