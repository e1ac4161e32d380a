package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wwwzy/wxorca/internal/agent"
	"github.com/wwwzy/wxorca/internal/assistant"
	"github.com/wwwzy/wxorca/internal/config"
	"github.com/wwwzy/wxorca/internal/graph"
	"github.com/wwwzy/wxorca/internal/logger"
	"github.com/wwwzy/wxorca/internal/metrics"
	"github.com/wwwzy/wxorca/internal/storage"
	"github.com/wwwzy/wxorca/internal/tools"
)

// app 持有一次命令执行所需的全部依赖
type app struct {
	db      *storage.Storage
	redis   *storage.RedisConversationStore
	metrics *metrics.Collector
	service *assistant.Service
}

// openStorage 打开 sqlite；反馈、审计与文档总是存放在这里
func openStorage(ctx context.Context, c *config.Config) (*storage.Storage, error) {
	if c == nil {
		return nil, errors.New("config not loaded")
	}
	sc := c.Storage.Config
	level := gormlogger.Warn
	if c.LogLevel == "debug" {
		level = gormlogger.Info
	}
	sc.Logger = logger.NewGormLogger(level)

	db, err := storage.Open(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("打开存储失败: %w", err)
	}
	return db, nil
}

// conversationStore 按 storage.driver 选择会话存储
func (a *app) conversationStore(ctx context.Context, c *config.Config) (storage.ConversationStore, error) {
	if c.Storage.Driver != config.DriverRedis {
		return a.db, nil
	}
	rs, err := storage.NewRedisConversationStore(ctx, c.Redis)
	if err != nil {
		return nil, fmt.Errorf("连接 redis 失败: %w", err)
	}
	a.redis = rs
	return rs, nil
}

func newApp(ctx context.Context, c *config.Config) (*app, error) {
	db, err := openStorage(ctx, c)
	if err != nil {
		return nil, err
	}
	a := &app{db: db, metrics: metrics.NewCollector(metrics.DefaultNamespace)}

	convs, err := a.conversationStore(ctx, c)
	if err != nil {
		a.Close()
		return nil, err
	}

	// 数据库里导入过文档时优先检索数据库，否则使用内置语料
	var docs tools.DocSource
	if n, err := db.CountDocs(ctx); err == nil && n > 0 {
		docs = tools.StoreDocSource{Store: db}
	}
	reg, err := tools.NewBuiltinRegistry(c.Tools, docs, tools.WithAudit(db), tools.WithObserver(a.metrics))
	if err != nil {
		a.Close()
		return nil, err
	}

	var opts []agent.CatalogOption
	if c.Ark.Enabled() {
		responder, err := agent.NewArkResponder(ctx, c.Ark)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("初始化 Ark 模型失败: %w", err)
		}
		opts = append(opts, agent.WithResponder(responder))
		log.Info().Str("model", c.Ark.ModelID).Msg("using ark chat model for responses")
	}

	runner := graph.NewRunner(c.Runner, graph.WithObserver(a.metrics))
	a.service, err = assistant.NewService(convs, agent.NewCatalog(reg, opts...), runner)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("close redis failed")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Warn().Err(err).Msg("close storage failed")
		}
	}
}
