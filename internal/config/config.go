package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wwwzy/wxorca/internal/graph"
	"github.com/wwwzy/wxorca/internal/retention"
	"github.com/wwwzy/wxorca/internal/storage"
	"github.com/wwwzy/wxorca/internal/tools"
)

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type ArkConfig struct {
	APIKey  string `mapstructure:"api_key"`
	ModelID string `mapstructure:"model_id"`
	BaseURL string `mapstructure:"base_url"`
}

// Enabled 表示是否配置了可用的 Ark 模型；未配置时使用模板回复
func (c ArkConfig) Enabled() bool {
	return c.APIKey != "" && c.ModelID != ""
}

// StorageConfig 选择会话存储后端；反馈、审计与文档始终存放在 sqlite 中。
type StorageConfig struct {
	Driver         string `mapstructure:"driver"`
	storage.Config `mapstructure:",squash"`
}

type MetricsConfig struct {
	// Addr 为 /metrics 监听地址，为空表示不暴露
	Addr string `mapstructure:"addr"`
}

type Config struct {
	LogLevel  string              `mapstructure:"log_level"`
	LogFormat string              `mapstructure:"log_format"`
	LogFile   string              `mapstructure:"log_file"`
	Storage   StorageConfig       `mapstructure:"storage"`
	Redis     storage.RedisConfig `mapstructure:"redis"`
	Runner    graph.Config        `mapstructure:"runner"`
	Tools     tools.Config        `mapstructure:"tools"`
	Ark       ArkConfig           `mapstructure:"ark"`
	Metrics   MetricsConfig       `mapstructure:"metrics"`
	Retention retention.Config    `mapstructure:"retention"`
}

func Load(cfgFile string) (*Config, error) {
	// 1. 初始化 Viper
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// 默认搜索路径
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.wxorca")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// WXORCA_STORAGE_PATH -> storage.path
	v.SetEnvPrefix("WXORCA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal 只会解码 Viper 已知的 key，所以每个字段都需要默认值
	setDefaults(v)

	// 2. 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件未找到，使用默认值
	}

	// 3. 反序列化 (文件/环境变量 覆盖 默认值)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 4. 验证关键配置
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when storage.driver is redis")
		}
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", DriverSQLite, DriverRedis, c.Storage.Driver)
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required unless storage.in_memory is set")
	}
	if c.Runner.MaxIterations < 0 {
		return fmt.Errorf("runner.max_iterations must not be negative")
	}
	if c.Tools.MaxParallel < 0 {
		return fmt.Errorf("tools.max_parallel must not be negative")
	}
	// Ark 只在两项都提供时启用，只提供一项多半是配置错误
	if (c.Ark.APIKey == "") != (c.Ark.ModelID == "") {
		return fmt.Errorf("ark.api_key and ark.model_id must be set together (or set ARK_API_KEY and ARK_MODEL_ID)")
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// -------------------------------------------------------------------------
	// Global Defaults (全局默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_file", d.LogFile)

	// -------------------------------------------------------------------------
	// Storage Defaults (存储默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.in_memory", d.Storage.InMemory)
	v.SetDefault("storage.memory_name", d.Storage.MemoryName)
	v.SetDefault("storage.enable_wal", d.Storage.EnableWAL)
	v.SetDefault("storage.busy_timeout", d.Storage.BusyTimeout)
	v.SetDefault("storage.max_open_conns", d.Storage.MaxOpenConns)
	v.SetDefault("storage.max_idle_conns", d.Storage.MaxIdleConns)
	v.SetDefault("storage.conn_max_lifetime", d.Storage.ConnMaxLifetime)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	// -------------------------------------------------------------------------
	// Runner / Tools Defaults (运行与工具默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("runner.max_iterations", d.Runner.MaxIterations)
	v.SetDefault("runner.max_node_visits", d.Runner.MaxNodeVisits)

	v.SetDefault("tools.timeout", d.Tools.Timeout)
	v.SetDefault("tools.parallel", d.Tools.Parallel)
	v.SetDefault("tools.max_parallel", d.Tools.MaxParallel)

	// -------------------------------------------------------------------------
	// Metrics / Retention Defaults (指标与数据清理默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetDefault("retention.enabled", d.Retention.Enabled)
	v.SetDefault("retention.interval", d.Retention.Interval)
	v.SetDefault("retention.workers", d.Retention.Workers)
	v.SetDefault("retention.batch_rows", d.Retention.BatchRows)
	v.SetDefault("retention.idle_sleep", d.Retention.IdleSleep)
	v.SetDefault("retention.conversations.keep_all", d.Retention.Conversations.KeepAll)
	v.SetDefault("retention.audit.keep_all", d.Retention.Audit.KeepAll)
	v.SetDefault("retention.audit.keep_latest", d.Retention.Audit.KeepLatest)

	// -------------------------------------------------------------------------
	// Ark AI Defaults (AI 模型默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("ark.api_key", d.Ark.APIKey)
	v.SetDefault("ark.model_id", d.Ark.ModelID)
	v.SetDefault("ark.base_url", d.Ark.BaseURL)

	_ = v.BindEnv("ark.api_key", "ARK_API_KEY")
	_ = v.BindEnv("ark.model_id", "ARK_MODEL_ID")
	_ = v.BindEnv("ark.base_url", "ARK_BASE_URL")
}

func DefaultConfig() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "console",
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Config: storage.Config{
				Path:        "wxorca.db",
				MemoryName:  "wxorca",
				EnableWAL:   true,
				BusyTimeout: 5 * time.Second,
			},
		},
		Redis: storage.RedisConfig{
			Addr:      "",
			KeyPrefix: "wxorca:",
			TTL:       7 * 24 * time.Hour,
		},
		Runner: graph.Config{
			MaxIterations: graph.DefaultMaxIterations,
			MaxNodeVisits: 0,
		},
		Tools: tools.Config{
			Timeout:     tools.DefaultTimeout,
			Parallel:    false,
			MaxParallel: tools.DefaultMaxParallel,
		},
		Ark: ArkConfig{
			BaseURL: "https://ark.cn-beijing.volces.com/api/v3",
		},
		Retention: retention.DefaultConfig(),
	}
}
