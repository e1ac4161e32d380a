// Package storage 持久化会话、用户反馈、工具审计记录与文档库。
//
// sqlite 是唯一的关系型后端；会话另有 redis 实现（见 redis.go），
// 反馈、审计与文档始终落在 sqlite 中。
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultBusyTimeout = 5 * time.Second
	defaultMemoryName  = "wxorca"
)

type Config struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
	// MemoryName 区分同一进程内的多个内存库
	MemoryName string `mapstructure:"memory_name"`
	// EnableWAL 只对文件库生效
	EnableWAL       bool             `mapstructure:"enable_wal"`
	BusyTimeout     time.Duration    `mapstructure:"busy_timeout"`
	MaxOpenConns    int              `mapstructure:"max_open_conns"`
	MaxIdleConns    int              `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration    `mapstructure:"conn_max_lifetime"`
	Logger          logger.Interface `mapstructure:"-"`
}

// Storage 同时实现 ConversationStore、tools 的审计接口与文档源。
type Storage struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// schemaModels 为 Open 时自动迁移的表
var schemaModels = []any{
	&Conversation{},
	&Feedback{},
	&AuditRecord{},
	&WxoDoc{},
}

// Open 打开数据库并迁移表结构，返回前会 Ping 一次。
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	dsn, err := dsnFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{Logger: cfg.Logger}
	db, err := gorm.Open(sqlite.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", describe(cfg), err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	applyPool(sqlDB, cfg)

	s := &Storage{db: db, sqlDB: sqlDB}
	if err := s.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return s, nil
}

func (s *Storage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Storage) migrate(ctx context.Context) error {
	for _, m := range schemaModels {
		if err := s.db.WithContext(ctx).AutoMigrate(m); err != nil {
			return fmt.Errorf("auto migrate %T: %w", m, err)
		}
	}
	return nil
}

func applyPool(sqlDB *sql.DB, cfg Config) {
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

func describe(cfg Config) string {
	if cfg.InMemory {
		return "memory:" + cfg.MemoryName
	}
	return cfg.Path
}

// dsnFromConfig 把 PRAGMA 写进 DSN，连接池里的每个新连接都会执行一遍。
func dsnFromConfig(cfg Config) (string, error) {
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}

	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")

	if cfg.InMemory {
		name := cfg.MemoryName
		if name == "" {
			name = defaultMemoryName
		}
		q.Set("mode", "memory")
		q.Set("cache", "shared")
		return "file:" + name + "?" + q.Encode(), nil
	}

	if cfg.Path == "" {
		return "", errors.New("sqlite path is required unless in_memory is set")
	}
	if cfg.EnableWAL {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + cfg.Path + "?" + q.Encode(), nil
}
