package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wwwzy/wxorca/internal/state"
)

const (
	DefaultMaxIterations = 10

	tracerName = "github.com/wwwzy/wxorca/internal/graph"
)

// Config 控制一次运行的上限。
type Config struct {
	// MaxIterations 为单次运行允许的节点执行总次数；<=0 使用 DefaultMaxIterations。
	MaxIterations int `mapstructure:"max_iterations"`
	// MaxNodeVisits 为单个节点在一次运行内允许的执行次数；<=0 表示不限制。
	MaxNodeVisits int `mapstructure:"max_node_visits"`
}

func (c Config) maxIterations() int {
	if c.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.MaxIterations
}

// Status 是一次运行的终态。
type Status string

const (
	StatusFinished  Status = "finished"
	StatusFailed    Status = "failed"
	StatusExhausted Status = "exhausted"
	StatusCanceled  Status = "canceled"
)

// StatusOf 根据 Run 返回的错误归类终态。
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusFinished
	case errors.Is(err, ErrRunExhausted):
		return StatusExhausted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCanceled
	}
	return StatusFailed
}

// Observer 接收节点与运行事件，例如用于指标采集。实现必须并发安全。
type Observer interface {
	ObserveNode(graph, node string, d time.Duration, err error)
	ObserveRun(graph string, status Status, steps int, d time.Duration)
}

type Option func(*Runner)

func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

// Runner 从入口节点开始顺序执行编译好的图，直到终止、出错或达到迭代上限。
// Runner 无状态，可被并发复用。
type Runner struct {
	cfg      Config
	observer Observer
	tracer   trace.Tracer
}

func NewRunner(cfg Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Config() Config {
	return r.cfg
}

// Run 以 initial 为初始状态执行 g。
// 失败时同样返回已知的部分状态（若可读取），便于调用方诊断与持久化。
func (r *Runner) Run(ctx context.Context, g *Graph, initial *state.ConversationState) (*state.ConversationState, error) {
	return r.RunHandle(ctx, g, state.NewHandle(initial))
}

// RunHandle 与 Run 相同，但由调用方提供共享句柄。
func (r *Runner) RunHandle(ctx context.Context, g *Graph, h *state.Handle) (*state.ConversationState, error) {
	if g == nil {
		return nil, errors.New("graph is nil")
	}

	started := time.Now()
	ctx, span := r.tracer.Start(ctx, "graph.run", trace.WithAttributes(attribute.String("graph.name", g.name)))
	defer span.End()

	steps, runErr := r.loop(ctx, g, h)

	final, snapErr := h.Snapshot()
	if runErr == nil && snapErr != nil {
		runErr = snapErr
	}

	status := StatusOf(runErr)
	elapsed := time.Since(started)
	span.SetAttributes(attribute.Int("graph.steps", steps), attribute.String("graph.status", string(status)))
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	if r.observer != nil {
		r.observer.ObserveRun(g.name, status, steps, elapsed)
	}

	ev := log.Debug()
	if runErr != nil {
		ev = log.Warn().Err(runErr)
	}
	ev.Str("graph", g.name).Str("status", string(status)).Int("steps", steps).Dur("took", elapsed).Msg("graph run finished")

	return final, runErr
}

func (r *Runner) loop(ctx context.Context, g *Graph, h *state.Handle) (int, error) {
	if err := h.Write(func(s *state.ConversationState) error {
		s.Iteration = 0
		return nil
	}); err != nil {
		return 0, err
	}

	limit := r.cfg.maxIterations()
	visits := make(map[string]int)
	current := g.entry
	steps := 0

	for {
		if err := ctx.Err(); err != nil {
			return steps, err
		}
		if steps >= limit {
			return steps, &RunExhaustedError{Limit: limit, Node: current}
		}
		visits[current]++
		if r.cfg.MaxNodeVisits > 0 && visits[current] > r.cfg.MaxNodeVisits {
			return steps, &RunExhaustedError{Limit: r.cfg.MaxNodeVisits, Node: current, PerNode: true}
		}

		steps++
		if err := h.Write(func(s *state.ConversationState) error {
			s.NextIteration()
			return nil
		}); err != nil {
			return steps, err
		}

		sig, err := r.execNode(ctx, g, current, h)
		if err != nil {
			return steps, err
		}

		next, err := g.resolve(current, sig, h)
		if err != nil {
			return steps, err
		}
		if next == END {
			return steps, nil
		}
		current = next
	}
}

func (r *Runner) execNode(ctx context.Context, g *Graph, id string, h *state.Handle) (sig Signal, err error) {
	node := g.nodes[id]

	ctx, span := r.tracer.Start(ctx, "graph.node", trace.WithAttributes(
		attribute.String("graph.name", g.name),
		attribute.String("graph.node", id),
	))
	started := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = &NodeError{Node: id, Kind: "panic", Message: fmt.Sprint(p)}
		}
		elapsed := time.Since(started)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("graph.signal", sig.String()))
		}
		span.End()
		if r.observer != nil {
			r.observer.ObserveNode(g.name, id, elapsed, err)
		}
		log.Debug().Str("graph", g.name).Str("node", id).Str("signal", sig.String()).Dur("took", elapsed).Err(err).Msg("node executed")
	}()

	sig, err = node.Execute(ctx, h)
	if err != nil {
		err = asNodeError(id, err)
	}
	return sig, err
}

func asNodeError(id string, err error) error {
	var ne *NodeError
	if errors.As(err, &ne) {
		if ne.Node == "" {
			ne.Node = id
		}
		return err
	}
	var se *state.StateAccessError
	if errors.As(err, &se) {
		return &NodeError{Node: id, Kind: "state", Err: err}
	}
	return &NodeError{Node: id, Kind: "execute", Err: err}
}

// resolve 计算下一个节点：条件边优先，其次普通边；没有出边时以 END 结束。
func (g *Graph) resolve(from string, sig Signal, h *state.Handle) (string, error) {
	var (
		dest    string
		pending int
	)
	br, conditional := g.branches[from]
	if err := h.Read(func(s *state.ConversationState) error {
		pending = len(s.PendingToolCalls)
		if conditional {
			dest = br.router(s)
		}
		return nil
	}); err != nil {
		return "", err
	}

	if conditional {
		if dest != END {
			if _, ok := g.nodes[dest]; !ok {
				return "", fmt.Errorf("%w: %q from %q", ErrUnknownRoute, dest, from)
			}
			if br.allowed != nil && !br.allowed[dest] {
				return "", fmt.Errorf("%w: %q not declared for %q", ErrUnknownRoute, dest, from)
			}
		}
	} else if sig == Finish {
		dest = END
	} else if to, ok := g.edges[from]; ok {
		dest = to
	} else {
		dest = END
	}

	if sig == Finish && dest == END && pending > 0 {
		return "", fmt.Errorf("%w: %d call(s) left by %q", ErrUnroutedToolCalls, pending, from)
	}
	return dest, nil
}
