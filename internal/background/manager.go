// Package background 管理与对话并行运行的后台任务：/metrics 端点与数据清理。
package background

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/wwwzy/wxorca/internal/metrics"
	"github.com/wwwzy/wxorca/internal/retention"
)

type Manager struct {
	metrics     *metrics.Collector
	metricsAddr string
	retention   *retention.Collector

	started atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	runErrMu sync.Mutex
	runErr   error
}

func NewManager() *Manager {
	return &Manager{}
}

// WithMetrics 在 addr 上暴露 c 的指标；addr 为空时不启动
func (m *Manager) WithMetrics(c *metrics.Collector, addr string) *Manager {
	if m == nil {
		return nil
	}
	m.metrics = c
	m.metricsAddr = addr
	return m
}

func (m *Manager) WithRetention(c *retention.Collector) *Manager {
	if m == nil {
		return nil
	}
	m.retention = c
	return m
}

// Tasks 返回将要启动的任务名，便于启动前提示
func (m *Manager) Tasks() []string {
	var out []string
	if m.metrics != nil && m.metricsAddr != "" {
		out = append(out, "metrics")
	}
	if m.retention != nil {
		out = append(out, "retention")
	}
	return out
}

func (m *Manager) Start(ctx context.Context) error {
	if m == nil {
		return errors.New("manager is nil")
	}
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("manager already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if m.metrics != nil && m.metricsAddr != "" {
		m.spawn(runCtx, "metrics", func(ctx context.Context) error {
			return m.metrics.Serve(ctx, m.metricsAddr)
		})
	}
	if m.retention != nil {
		m.spawn(runCtx, "retention", m.retention.Run)
	}
	return nil
}

// spawn 运行一个任务；任一任务异常退出时记录首个错误并停止其余任务
func (m *Manager) spawn(ctx context.Context, name string, run func(context.Context) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("task", name).Msg("background task stopped")
			m.runErrMu.Lock()
			if m.runErr == nil {
				m.runErr = err
			}
			m.runErrMu.Unlock()
			m.cancel()
		}
	}()
}

func (m *Manager) Stop() {
	if m == nil || m.cancel == nil {
		return
	}
	m.cancel()
}

func (m *Manager) Wait() error {
	if m == nil {
		return nil
	}
	m.wg.Wait()
	m.runErrMu.Lock()
	defer m.runErrMu.Unlock()
	return m.runErr
}
