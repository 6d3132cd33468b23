package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	HTTP     HTTPConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	DBPool   DBPoolConfig
	Tasks    TasksConfig
	Stream   StreamConfig
	Worker   WorkerConfig
	Log      LogConfig
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr string
}

// RedisConfig Redis 配置。URI 形如 redis://host:port/db，asynq 与结果缓存共用。
type RedisConfig struct {
	URI string
}

// PostgresConfig PostgreSQL 配置，DSN 为空时不做持久化
type PostgresConfig struct {
	DSN string
}

// Enabled 是否启用持久化
func (p PostgresConfig) Enabled() bool { return p.DSN != "" }

// DBPoolConfig 数据库连接池配置
type DBPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// TasksConfig 任务注册表配置
type TasksConfig struct {
	Retention  time.Duration // 终态任务保留时长
	GCInterval time.Duration
	Queue      string // asynq 队列名
	ResultTTL  time.Duration
}

// StreamConfig WebSocket 推送配置
type StreamConfig struct {
	TaskInterval    time.Duration
	DatasetInterval time.Duration
}

// WorkerConfig worker 进程配置
type WorkerConfig struct {
	Concurrency     int
	ControlPlaneURL string
	ReportEvery     int // 每处理多少个条目上报一次进度
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string
	Production bool
}

// Load 加载配置
func Load() (*Config, error) {
	v := viper.New()

	// 设置配置文件名和路径
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")

	// 允许从环境变量读取（优先级最高）
	v.AutomaticEnv()

	// 读取配置文件（如果存在）
	_ = v.ReadInConfig() // 忽略错误，因为可能只使用环境变量

	v.SetDefault("HTTP_ADDR", ":28080")
	v.SetDefault("REDIS_ADDR", "redis://localhost:6379/0")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_MAX_CONN_LIFETIME", 30*time.Minute)
	v.SetDefault("DB_MAX_CONN_IDLE_TIME", 5*time.Minute)
	v.SetDefault("DB_HEALTH_CHECK_PERIOD", time.Minute)
	v.SetDefault("TASK_RETENTION", time.Hour)
	v.SetDefault("TASK_GC_INTERVAL", time.Minute)
	v.SetDefault("RESULT_TTL", 7*24*time.Hour)
	v.SetDefault("ANALYSIS_QUEUE", "analysis")
	v.SetDefault("WS_PUSH_INTERVAL", 2*time.Second)
	v.SetDefault("DATASET_PUSH_INTERVAL", 3*time.Second)
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("WORKER_REPORT_EVERY", 10)
	v.SetDefault("CONTROL_PLANE_URL", "http://localhost:28080")
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{}

	cfg.HTTP.Addr = v.GetString("HTTP_ADDR")

	// Redis 配置：兼容 host:port 写法
	cfg.Redis.URI = NormalizeRedisURI(v.GetString("REDIS_ADDR"))

	// PostgreSQL 配置（可选）
	cfg.Postgres.DSN = v.GetString("POSTGRES_DSN")

	// 数据库连接池配置
	cfg.DBPool.MaxConns = int32(v.GetInt("DB_MAX_CONNS"))
	cfg.DBPool.MinConns = int32(v.GetInt("DB_MIN_CONNS"))
	cfg.DBPool.MaxConnLifetime = v.GetDuration("DB_MAX_CONN_LIFETIME")
	cfg.DBPool.MaxConnIdleTime = v.GetDuration("DB_MAX_CONN_IDLE_TIME")
	cfg.DBPool.HealthCheckPeriod = v.GetDuration("DB_HEALTH_CHECK_PERIOD")

	cfg.Tasks.Retention = v.GetDuration("TASK_RETENTION")
	cfg.Tasks.GCInterval = v.GetDuration("TASK_GC_INTERVAL")
	cfg.Tasks.ResultTTL = v.GetDuration("RESULT_TTL")
	cfg.Tasks.Queue = v.GetString("ANALYSIS_QUEUE")

	cfg.Stream.TaskInterval = v.GetDuration("WS_PUSH_INTERVAL")
	cfg.Stream.DatasetInterval = v.GetDuration("DATASET_PUSH_INTERVAL")

	cfg.Worker.Concurrency = v.GetInt("WORKER_CONCURRENCY")
	cfg.Worker.ControlPlaneURL = strings.TrimRight(v.GetString("CONTROL_PLANE_URL"), "/")
	cfg.Worker.ReportEvery = v.GetInt("WORKER_REPORT_EVERY")

	cfg.Log.Level = v.GetString("LOG_LEVEL")
	cfg.Log.Production = v.GetBool("PRODUCTION")

	return cfg, nil
}

// NormalizeRedisURI host:port -> redis://host:port/0
func NormalizeRedisURI(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if strings.Contains(addr, "://") {
		return addr
	}
	return "redis://" + addr + "/0"
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Redis.URI == "" {
		return fmt.Errorf("Redis address is required")
	}
	if c.Tasks.Queue == "" {
		return fmt.Errorf("analysis queue name is required")
	}
	if c.Tasks.Retention <= 0 || c.Tasks.GCInterval <= 0 {
		return fmt.Errorf("task retention and gc interval must be positive")
	}
	if c.Stream.TaskInterval <= 0 || c.Stream.DatasetInterval <= 0 {
		return fmt.Errorf("push intervals must be positive")
	}
	if c.DBPool.MinConns > c.DBPool.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBPool.MinConns, c.DBPool.MaxConns)
	}
	return nil
}
