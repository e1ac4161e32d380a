package retention

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Store 是清理所需的分批删除能力，*storage.Storage 实现了该接口。
// 每个方法单次至多删除 limit 行，并返回实际删除的行数。
type Store interface {
	DeleteConversationsBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error)
	DeleteAuditRecordsBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error)
	DeleteAuditRecordsBeyondLimited(ctx context.Context, keep int, limit int) (int64, error)
}

// Report 汇总一次清理删除的行数
type Report struct {
	Conversations int64
	AuditRecords  int64
}

type Collector struct {
	cfg   Config
	store Store
}

func NewCollector(store Store, cfg Config) (*Collector, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	return &Collector{cfg: cfg.withDefaults(), store: store}, nil
}

// Run 立即清理一次，之后按 Interval 周期执行，直到 ctx 结束。
// 单次清理出错只回调 OnError，不会终止循环。
func (c *Collector) Run(ctx context.Context) error {
	if c == nil || c.store == nil {
		return errors.New("retention collector not initialized")
	}

	c.tick(ctx)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Collector) tick(ctx context.Context) {
	rep, err := c.RunOnce(ctx, time.Now().UTC())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("retention run failed")
			c.cfg.OnError(err)
		}
		return
	}
	if rep.Conversations > 0 || rep.AuditRecords > 0 {
		log.Info().Int64("conversations", rep.Conversations).Int64("audit_records", rep.AuditRecords).Msg("retention pruned rows")
	}
}

// RunOnce 以 now 为基准执行一轮清理，各策略并发执行，返回第一个错误。
func (c *Collector) RunOnce(ctx context.Context, now time.Time) (Report, error) {
	if c == nil || c.store == nil {
		return Report{}, errors.New("retention collector not initialized")
	}

	var convs, audits atomic.Int64
	var tasks []func(context.Context) error

	if keep := c.cfg.Conversations.KeepAll; keep > 0 {
		before := now.Add(-keep)
		tasks = append(tasks, func(ctx context.Context) error {
			return c.drain(ctx, &convs, func(ctx context.Context) (int64, error) {
				return c.store.DeleteConversationsBeforeLimited(ctx, before, c.cfg.BatchRows)
			})
		})
	}
	if keep := c.cfg.Audit.KeepAll; keep > 0 {
		before := now.Add(-keep)
		tasks = append(tasks, func(ctx context.Context) error {
			return c.drain(ctx, &audits, func(ctx context.Context) (int64, error) {
				return c.store.DeleteAuditRecordsBeforeLimited(ctx, before, c.cfg.BatchRows)
			})
		})
	}
	if keep := c.cfg.Audit.KeepLatest; keep > 0 {
		tasks = append(tasks, func(ctx context.Context) error {
			return c.drain(ctx, &audits, func(ctx context.Context) (int64, error) {
				return c.store.DeleteAuditRecordsBeyondLimited(ctx, keep, c.cfg.BatchRows)
			})
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for _, task := range tasks {
		task := task
		g.Go(func() error { return task(gctx) })
	}
	err := g.Wait()

	return Report{Conversations: convs.Load(), AuditRecords: audits.Load()}, err
}

// drain 反复分批删除直到某一批为空
func (c *Collector) drain(ctx context.Context, total *atomic.Int64, batch func(context.Context) (int64, error)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		affected, err := batch(ctx)
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		total.Add(affected)
		if err := c.sleepIdle(ctx); err != nil {
			return err
		}
	}
}

func (c *Collector) sleepIdle(ctx context.Context) error {
	if c.cfg.IdleSleep <= 0 {
		return nil
	}
	timer := time.NewTimer(c.cfg.IdleSleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
