package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/errgroup"

	"github.com/wwwzy/wxorca/internal/state"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxParallel = 4
)

type Config struct {
	// Timeout 为单次工具调用的上限；<=0 使用 DefaultTimeout。
	Timeout time.Duration `mapstructure:"timeout"`
	// Parallel 为 true 时同一批调用并发执行，结果仍按派发顺序返回。
	Parallel bool `mapstructure:"parallel"`
	// MaxParallel 限制并发度；<=0 使用 DefaultMaxParallel。
	MaxParallel int `mapstructure:"max_parallel"`
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c Config) maxParallel() int {
	if c.MaxParallel <= 0 {
		return DefaultMaxParallel
	}
	return c.MaxParallel
}

// Observer 接收每次工具调用的结果，例如用于指标采集。
type Observer interface {
	ObserveTool(name string, d time.Duration, failed bool)
}

type Option func(*Registry)

func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// WithAudit 让之后注册的工具都经过审计包装。store 为 nil 时不生效。
func WithAudit(store AuditStore) Option {
	return func(r *Registry) { r.audit = store }
}

type entry struct {
	impl   tool.InvokableTool
	info   *schema.ToolInfo
	schema *gojsonschema.Schema
}

// Registry 按名称管理工具，负责参数校验、超时与失败吸收。
// 工具失败不会作为错误返回，而是变成 {"error": ...} 形式的结果文本。
type Registry struct {
	cfg      Config
	observer Observer
	audit    AuditStore

	mu    sync.RWMutex
	tools map[string]*entry
}

func NewRegistry(cfg Config, opts ...Option) *Registry {
	r := &Registry{
		cfg:   cfg,
		tools: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register 登记工具，名称重复返回错误。
func (r *Registry) Register(t tool.InvokableTool) error {
	if t == nil {
		return errors.New("tool is nil")
	}
	info, err := t.Info(context.Background())
	if err != nil {
		return fmt.Errorf("get tool info: %w", err)
	}
	if info == nil || info.Name == "" {
		return errors.New("tool name is empty")
	}

	sch, err := compileSchema(info)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", info.Name, err)
	}

	if r.audit != nil {
		t = NewAuditedTool(t, r.audit)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[info.Name]; dup {
		return fmt.Errorf("tool already registered: %s", info.Name)
	}
	r.tools[info.Name] = &entry{impl: t, info: info, schema: sch}
	return nil
}

// Names 返回已登记的工具名（已排序）。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Infos 返回工具描述，顺序与 Names 一致。
func (r *Registry) Infos() []*schema.ToolInfo {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*schema.ToolInfo, 0, len(names))
	for _, name := range names {
		if e, ok := r.tools[name]; ok {
			out = append(out, e.info)
		}
	}
	return out
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e, ok
}

// Execute 执行一次工具调用，总是返回与 call.ID 对应的结果。
func (r *Registry) Execute(ctx context.Context, call state.ToolCall) state.ToolResult {
	started := time.Now()
	res := state.ToolResult{CallID: call.ID, Name: call.Name}

	out, err := r.execute(ctx, call)
	elapsed := time.Since(started)
	if err != nil {
		res.Content = errorContent(err)
		res.Failed = true
		log.Warn().Str("tool", call.Name).Str("call_id", call.ID).Dur("took", elapsed).Err(err).Msg("tool call failed")
	} else {
		res.Content = out
		log.Debug().Str("tool", call.Name).Str("call_id", call.ID).Dur("took", elapsed).Msg("tool call finished")
	}
	if r.observer != nil {
		r.observer.ObserveTool(call.Name, elapsed, res.Failed)
	}
	return res
}

func (r *Registry) execute(ctx context.Context, call state.ToolCall) (string, error) {
	e, ok := r.lookup(call.Name)
	if !ok {
		return "", fmt.Errorf("tool not found: %s", call.Name)
	}

	args := normalizeArgs(call.Arguments)
	if e.schema != nil {
		result, err := e.schema.Validate(gojsonschema.NewBytesLoader(args))
		if err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, d := range result.Errors() {
				msgs = append(msgs, d.String())
			}
			return "", fmt.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
		}
	}

	return r.invoke(ctx, e.impl, string(args))
}

type outcome struct {
	out string
	err error
}

// invoke 在独立 goroutine 中运行工具，超时或取消时立即返回；
// 工具本身收到已取消的 ctx，应尽快退出。
func (r *Registry) invoke(ctx context.Context, t tool.InvokableTool, args string) (string, error) {
	timeout := r.cfg.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", p)}
			}
		}()
		out, err := t.InvokableRun(ctx, args)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		return o.out, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("tool timed out after %s", timeout)
		}
		return "", fmt.Errorf("tool canceled: %w", ctx.Err())
	}
}

// ExecuteAll 执行一批调用，结果顺序与 calls 一致。
func (r *Registry) ExecuteAll(ctx context.Context, calls []state.ToolCall) []state.ToolResult {
	results := make([]state.ToolResult, len(calls))
	if !r.cfg.Parallel || len(calls) < 2 {
		for i, c := range calls {
			results[i] = r.Execute(ctx, c)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(r.cfg.maxParallel())
	for i, c := range calls {
		i, c := i, c
		g.Go(func() error {
			results[i] = r.Execute(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// normalizeArgs 兜底模型偶尔给出的空参数或残缺的 "{"
func normalizeArgs(raw json.RawMessage) []byte {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "{" || s == "null" {
		return []byte("{}")
	}
	return []byte(s)
}

func errorContent(err error) string {
	data, mErr := json.Marshal(map[string]string{"error": err.Error()})
	if mErr != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

// compileSchema 把 eino 的参数描述转换成 JSON Schema 供 gojsonschema 校验。
func compileSchema(info *schema.ToolInfo) (*gojsonschema.Schema, error) {
	if info.ParamsOneOf == nil {
		return nil, nil
	}
	js, err := info.ParamsOneOf.ToJSONSchema()
	if err != nil {
		return nil, err
	}
	if js == nil {
		return nil, nil
	}
	raw, err := json.Marshal(js)
	if err != nil {
		return nil, err
	}

	// gojsonschema 只认识 draft-04/06/07 的 $schema
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	delete(doc, "$schema")
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
}
