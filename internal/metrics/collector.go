// Package metrics 暴露图运行与工具调用的 Prometheus 指标。
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/wwwzy/wxorca/internal/graph"
	"github.com/wwwzy/wxorca/internal/tools"
)

const DefaultNamespace = "wxorca"

var (
	_ graph.Observer = (*Collector)(nil)
	_ tools.Observer = (*Collector)(nil)
)

// Collector 指标收集器，同时实现 graph.Observer 与 tools.Observer
type Collector struct {
	registry *prometheus.Registry

	// 运行指标
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	runSteps    *prometheus.HistogramVec

	// 节点指标
	nodeExecutionsTotal *prometheus.CounterVec
	nodeDuration        *prometheus.HistogramVec

	// 工具指标
	toolCallsTotal *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
}

// NewCollector 在独立的 Registry 上注册全部指标，另附 Go 运行时与进程指标。
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_runs_total",
			Help:      "Total number of agent graph runs by terminal status",
		}, []string{"graph", "status"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_run_duration_seconds",
			Help:      "Agent graph run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"graph"}),
		runSteps: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_run_steps",
			Help:      "Node executions per agent graph run",
			Buckets:   prometheus.LinearBuckets(1, 1, 12),
		}, []string{"graph"}),

		nodeExecutionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node executions",
		}, []string{"graph", "node", "result"}),
		nodeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"graph", "node"}),

		toolCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls",
		}, []string{"tool", "result"}),
		toolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool call duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"tool"}),
	}
}

func (c *Collector) ObserveRun(graphName string, status graph.Status, steps int, d time.Duration) {
	c.runsTotal.WithLabelValues(graphName, string(status)).Inc()
	c.runDuration.WithLabelValues(graphName).Observe(d.Seconds())
	c.runSteps.WithLabelValues(graphName).Observe(float64(steps))
}

func (c *Collector) ObserveNode(graphName, node string, d time.Duration, err error) {
	c.nodeExecutionsTotal.WithLabelValues(graphName, node, result(err != nil)).Inc()
	c.nodeDuration.WithLabelValues(graphName, node).Observe(d.Seconds())
}

func (c *Collector) ObserveTool(name string, d time.Duration, failed bool) {
	c.toolCallsTotal.WithLabelValues(name, result(failed)).Inc()
	c.toolDuration.WithLabelValues(name).Observe(d.Seconds())
}

func result(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}

// Registry 返回底层 Registry，便于测试或挂接其它 exporter
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve 在 addr 上暴露 /metrics，直到 ctx 结束。
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
