package retention

import (
	"runtime"
	"time"
)

type ErrorHandler func(err error)

type ConversationPolicy struct {
	// KeepAll 为会话的保留时长，按最后更新时间计算；<=0 表示不清理。
	KeepAll time.Duration `mapstructure:"keep_all"`
}

type AuditPolicy struct {
	// KeepAll 为审计记录的保留时长，按创建时间计算；<=0 表示不按时间清理。
	KeepAll time.Duration `mapstructure:"keep_all"`
	// KeepLatest 只保留最新的 N 条审计记录；<=0 表示不限制条数。
	KeepLatest int `mapstructure:"keep_latest"`
}

type Config struct {
	// Enabled 控制 chat 期间是否在后台周期性清理；storage prune 命令不受影响。
	Enabled bool `mapstructure:"enabled"`

	// Interval 为后台清理周期。
	Interval time.Duration `mapstructure:"interval"`
	// Workers 为并发执行清理任务的数量。
	Workers int `mapstructure:"workers"`
	// BatchRows 为单条 DELETE 语句最多删除的行数，避免长时间持有 sqlite 写锁。
	BatchRows int `mapstructure:"batch_rows"`
	// IdleSleep 为两批删除之间的间隔。
	IdleSleep time.Duration `mapstructure:"idle_sleep"`

	Conversations ConversationPolicy `mapstructure:"conversations"`
	Audit         AuditPolicy        `mapstructure:"audit"`

	// OnError 为后台清理出错时的回调；默认丢弃。
	OnError ErrorHandler `mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:   false,
		Interval:  time.Hour,
		Workers:   2,
		BatchRows: 500,
		IdleSleep: 50 * time.Millisecond,
		Conversations: ConversationPolicy{
			KeepAll: 30 * 24 * time.Hour,
		},
		Audit: AuditPolicy{
			KeepAll:    7 * 24 * time.Hour,
			KeepLatest: 10000,
		},
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Workers <= 0 {
		c.Workers = min(2, runtime.NumCPU())
	}
	if c.BatchRows <= 0 {
		c.BatchRows = 500
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
	return c
}
