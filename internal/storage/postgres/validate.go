package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// applicationName 未指定时写入 pg_stat_activity，便于区分控制面连接
const applicationName = "analysis-hub"

// parsePoolConfig 接受 URI 与 key=value 两种写法，必须显式指定数据库
func parsePoolConfig(dsn string) (*pgxpool.Config, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty postgres dsn")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cc := pcfg.ConnConfig
	if cc.Database == "" {
		return nil, errors.New("postgres dsn missing database name")
	}
	if _, ok := cc.RuntimeParams["application_name"]; !ok {
		cc.RuntimeParams["application_name"] = applicationName
	}
	return pcfg, nil
}
