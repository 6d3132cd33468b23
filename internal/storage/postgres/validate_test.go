package postgres

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/analysis-hub/internal/config"
)

func TestParsePoolConfig(t *testing.T) {
	t.Setenv("PGDATABASE", "")

	tests := []struct {
		name    string
		dsn     string
		wantApp string
		wantErr bool
	}{
		{name: "uri", dsn: "postgres://u:p@localhost:5432/analysis", wantApp: "analysis-hub"},
		{name: "key value", dsn: "host=localhost user=u dbname=analysis", wantApp: "analysis-hub"},
		{name: "explicit application_name", dsn: "postgresql://localhost/analysis?application_name=ops", wantApp: "ops"},
		{name: "empty", dsn: "  ", wantErr: true},
		{name: "missing database", dsn: "postgres://u@localhost:5432", wantErr: true},
		{name: "wrong scheme", dsn: "mysql://localhost/analysis", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcfg, err := parsePoolConfig(tt.dsn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "analysis", pcfg.ConnConfig.Database)
			assert.Equal(t, tt.wantApp, pcfg.ConnConfig.RuntimeParams["application_name"])
		})
	}
}

func TestApplyPoolConfig(t *testing.T) {
	pcfg, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/db")
	require.NoError(t, err)

	applyPoolConfig(pcfg, config.DBPoolConfig{
		MaxConns:        20,
		MinConns:        5,
		MaxConnLifetime: 30 * time.Minute,
	})

	assert.Equal(t, int32(20), pcfg.MaxConns)
	assert.Equal(t, int32(5), pcfg.MinConns)
	assert.Equal(t, 30*time.Minute, pcfg.MaxConnLifetime)
}
