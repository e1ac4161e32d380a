package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/wxorca/internal/retention"
	"github.com/wwwzy/wxorca/internal/tools"
)

func clearArkEnv(t *testing.T) {
	t.Helper()
	// 运行环境里可能已经配置了真实的 Ark 凭据
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("ARK_MODEL_ID", "")
}

func TestLoad_Defaults(t *testing.T) {
	clearArkEnv(t)
	chdir(t, t.TempDir())

	// 测试加载默认值（不提供配置文件）
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "wxorca.db", cfg.Storage.Path)
	assert.Equal(t, 10, cfg.Runner.MaxIterations)
	assert.Equal(t, tools.DefaultTimeout, cfg.Tools.Timeout)
	assert.Equal(t, 4, cfg.Tools.MaxParallel)
	assert.False(t, cfg.Ark.Enabled())
	assert.Empty(t, cfg.Metrics.Addr)
	assert.Equal(t, retention.DefaultConfig().Audit.KeepLatest, cfg.Retention.Audit.KeepLatest)
	assert.False(t, cfg.Retention.Enabled)
}

func TestLoad_ConfigFile(t *testing.T) {
	clearArkEnv(t)

	// 创建临时配置文件
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	content := []byte(`
log_level: "debug"
log_format: "json"
ark:
  api_key: "file-key"
  model_id: "file-model"
storage:
  path: "test.db"
  busy_timeout: "10s"
runner:
  max_iterations: 6
tools:
  parallel: true
retention:
  enabled: true
  interval: "1m"
  audit:
    keep_latest: 50
metrics:
  addr: ":9464"
`)
	require.NoError(t, os.WriteFile(configFile, content, 0644))

	// 从文件加载
	cfg, err := Load(configFile)
	require.NoError(t, err)

	// 验证覆盖值
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "test.db", cfg.Storage.Path)
	assert.Equal(t, 10*time.Second, cfg.Storage.BusyTimeout)
	assert.Equal(t, 6, cfg.Runner.MaxIterations)
	assert.True(t, cfg.Tools.Parallel)
	assert.True(t, cfg.Retention.Enabled)
	assert.Equal(t, time.Minute, cfg.Retention.Interval)
	assert.Equal(t, 50, cfg.Retention.Audit.KeepLatest)
	assert.Equal(t, ":9464", cfg.Metrics.Addr)
	assert.True(t, cfg.Ark.Enabled())

	// 验证未覆盖的字段保持默认值
	assert.Equal(t, retention.DefaultConfig().Conversations.KeepAll, cfg.Retention.Conversations.KeepAll)
	assert.Equal(t, tools.DefaultMaxParallel, cfg.Tools.MaxParallel)
}

func TestLoad_EnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("WXORCA_LOG_LEVEL", "warn")
	t.Setenv("WXORCA_STORAGE_PATH", "env.db")
	t.Setenv("WXORCA_RUNNER_MAX_ITERATIONS", "3")
	t.Setenv("WXORCA_RETENTION_INTERVAL", "5m")
	t.Setenv("ARK_API_KEY", "test-key")
	t.Setenv("ARK_MODEL_ID", "test-model")

	// 加载配置（无文件）
	cfg, err := Load("")
	require.NoError(t, err)

	// 验证环境变量覆盖
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "env.db", cfg.Storage.Path)
	assert.Equal(t, 3, cfg.Runner.MaxIterations)
	assert.Equal(t, 5*time.Minute, cfg.Retention.Interval)
	assert.Equal(t, "test-key", cfg.Ark.APIKey)
	assert.Equal(t, "test-model", cfg.Ark.ModelID)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, false},
		{"redis without addr", func(c *Config) { c.Storage.Driver = DriverRedis }, false},
		{"redis with addr", func(c *Config) {
			c.Storage.Driver = DriverRedis
			c.Redis.Addr = "127.0.0.1:6379"
		}, true},
		{"missing path", func(c *Config) { c.Storage.Path = "" }, false},
		{"in memory without path", func(c *Config) {
			c.Storage.Path = ""
			c.Storage.InMemory = true
		}, true},
		{"half ark", func(c *Config) { c.Ark.APIKey = "only-key" }, false},
		{"negative iterations", func(c *Config) { c.Runner.MaxIterations = -1 }, false},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	clearArkEnv(t)
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("storage:\n  driver: mongo\n"), 0644))

	_, err := Load(configFile)
	assert.ErrorContains(t, err, "storage.driver")
}

// chdir 切换工作目录并在测试结束时恢复（等价于 Go 1.24 的 t.Chdir）
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
