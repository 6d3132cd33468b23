package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/azhengyongqin/analysis-hub/internal/config"
)

// NewPool 创建 pgx 连接池，任务仓储的读写都走这里
func NewPool(ctx context.Context, dsn string, cfg config.DBPoolConfig) (*pgxpool.Pool, error) {
	pcfg, err := parsePoolConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_DSN: %w", err)
	}
	applyPoolConfig(pcfg, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 连通性检查
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func applyPoolConfig(pcfg *pgxpool.Config, cfg config.DBPoolConfig) {
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pcfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		pcfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
}

// PoolStats 连接池统计：使用中、空闲、最大
func PoolStats(pool *pgxpool.Pool) (inUse, idle, max int32) {
	s := pool.Stat()
	return s.AcquiredConns(), s.IdleConns(), s.MaxConns()
}

// OpenGorm 打开 GORM 连接，仅用于 schema 迁移
func OpenGorm(ctx context.Context, dsn string) (*gorm.DB, error) {
	if _, err := parsePoolConfig(dsn); err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_DSN: %w", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(2)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db.WithContext(ctx), nil
}
