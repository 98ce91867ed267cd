package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  id: server-a
  port: 9090
core:
  scan_interval: 10s
channel:
  max_deliveries: 3
agent:
  deliverer: log
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Same(t, cfg, GlobalConfig)

	assert.Equal(t, "server-a", cfg.Server.ID)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "fleet-rollout", cfg.Server.Name)
	assert.Equal(t, "10s", cfg.Core.ScanInterval)
	assert.Equal(t, 50, cfg.Core.DispatchConcurrency)
	assert.Equal(t, "log", cfg.Core.Notification.Provider)
	assert.Equal(t, int64(3), cfg.Channel.MaxDeliveries)
	assert.Equal(t, 10, cfg.Channel.BatchSize)
	assert.Equal(t, "0 * * * * *", cfg.Scheduler.ReclaimCron)
	assert.Equal(t, "log", cfg.Agent.Deliverer)
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 10*time.Second, ParseDuration("10s", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("soon", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("-5s", time.Minute))
}

func TestGetDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 3306, Database: "fleet", Username: "u", Password: "p"}
	assert.Equal(t, "u:p@tcp(db:3306)/fleet?charset=utf8mb4&parseTime=True&loc=Local", c.GetDSN())
}
