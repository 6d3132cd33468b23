package postgres

import (
	"context"
	"fmt"

	"github.com/azhengyongqin/analysis-hub/internal/repository"
)

// Migrate 用 GORM AutoMigrate 同步 analysis_task 表结构，完成后关闭连接
func Migrate(ctx context.Context, dsn string) error {
	db, err := OpenGorm(ctx, dsn)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	if err := db.AutoMigrate(repository.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
