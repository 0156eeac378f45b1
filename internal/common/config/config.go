package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Auth      AuthConfig      `json:"auth"`
	Feed      FeedConfig      `json:"feed"`
	Sync      SyncConfig      `json:"sync"`
	Catalog   CatalogConfig   `json:"catalog"`
	Retry     RetryConfig     `json:"retry"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Consul    ConsulConfig    `json:"consul"`
	Jaeger    JaegerConfig    `json:"jaeger"`
	Log       LogConfig       `json:"log"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name     string `json:"name"`      // 服务名称
	Host     string `json:"host"`      // 服务地址
	HTTPPort int    `json:"http_port"` // HTTP端口
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `json:"driver"`   // 数据库驱动
	Host     string `json:"host"`     // 数据库地址
	Port     int    `json:"port"`     // 数据库端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Database string `json:"database"` // 数据库名
	MaxIdle  int    `json:"max_idle"` // 最大空闲连接
	MaxOpen  int    `json:"max_open"` // 最大打开连接
}

// AuthConfig 鉴权配置（HS256 JWT）
type AuthConfig struct {
	Enabled         bool     `json:"enabled"`
	JWTSecret       string   `json:"jwt_secret"`
	Issuer          string   `json:"issuer"`
	Audience        string   `json:"audience"`
	TokenTTLMinutes int      `json:"token_ttl_minutes"`
	PublicPaths     []string `json:"public_paths"` // 免鉴权路径前缀
}

// TokenTTL 访问令牌有效期。
func (a AuthConfig) TokenTTL() time.Duration {
	if a.TokenTTLMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

// FeedConfig 外部车型数据源配置
type FeedConfig struct {
	URL            string `json:"url"`
	AppID          string `json:"app_id"`     // X-Parse-Application-Id
	MasterKey      string `json:"master_key"` // X-Parse-Master-Key
	TimeoutSeconds int    `json:"timeout_seconds"`
	BatchLimit     int    `json:"batch_limit"` // 单次拉取上限
}

// SyncConfig 同步任务配置
type SyncConfig struct {
	IntervalMinutes int  `json:"interval_minutes"` // 定时触发间隔
	VINDedup        bool `json:"vin_dedup"`        // 按 VIN 去重入库
	AdminPort       int  `json:"admin_port"`       // worker 管理端口（healthz / 手动触发）
}

// CatalogConfig 目录领域配置
type CatalogConfig struct {
	MinYear         int `json:"min_year"`
	MaxYear         int `json:"max_year"`
	DefaultPageSize int `json:"default_page_size"`
	MaxPageSize     int `json:"max_page_size"`
}

// RetryConfig 写边界的有限重试策略（仅对瞬时存储错误生效）
type RetryConfig struct {
	Attempts  int `json:"attempts"`
	BackoffMS int `json:"backoff_ms"`
}

// RateLimitConfig 令牌桶限流配置
type RateLimitConfig struct {
	Enabled    bool  `json:"enabled"`
	Capacity   int64 `json:"capacity"`
	RefillRate int64 `json:"refill_rate"` // 每秒补充令牌数
}

// ConsulConfig Consul配置
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig Jaeger配置
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, file
	Path   string `json:"path"`   // 日志文件路径
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		globalConfig = &Config{}
		// 如果配置文件不存在，使用默认配置
		if _, err = os.Stat(configPath); os.IsNotExist(err) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
			globalConfig = defaultConfig()
			err = nil
			applyEnvOverrides(globalConfig)
			return
		}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file: %w", readErr)
			return
		}

		if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
			err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
			return
		}
		applyEnvOverrides(globalConfig)
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// applyEnvOverrides 敏感项允许用环境变量覆盖配置文件。
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CARBASE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("CARBASE_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("CARBASE_FEED_APP_ID"); v != "" {
		cfg.Feed.AppID = v
	}
	if v := os.Getenv("CARBASE_FEED_MASTER_KEY"); v != "" {
		cfg.Feed.MasterKey = v
	}
}

// defaultConfig 默认配置（开发环境）
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:     "catalog-service",
			Host:     "0.0.0.0",
			HTTPPort: 8080,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "carbase",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Auth: AuthConfig{
			Enabled:         true,
			JWTSecret:       "dev-secret",
			Issuer:          "carbase",
			Audience:        "carbase",
			TokenTTLMinutes: 24 * 60,
			PublicPaths:     []string{"/auth/", "/healthz"},
		},
		Feed: FeedConfig{
			URL:            "https://parseapi.back4app.com/classes/Car_Model_List",
			TimeoutSeconds: 10,
			BatchLimit:     10000,
		},
		Sync: SyncConfig{
			IntervalMinutes: 5,
			VINDedup:        true,
			AdminPort:       8081,
		},
		Catalog: CatalogConfig{
			MinYear:         1990,
			MaxYear:         2026,
			DefaultPageSize: 10,
			MaxPageSize:     100,
		},
		Retry: RetryConfig{
			Attempts:  3,
			BackoffMS: 100,
		},
		RateLimit: RateLimitConfig{
			Enabled:    true,
			Capacity:   200,
			RefillRate: 100,
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "http://localhost:14268/api/traces",
			Sampler:  1.0,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
			Path:   "logs/app.log",
		},
	}
}
