package agent

import (
	"sync"

	"github.com/wwwzy/wxorca/internal/graph"
	"github.com/wwwzy/wxorca/internal/state"
)

// Catalog 按助手类型懒加载并缓存编译好的图。每种类型只构建一次，之后并发只读共享。
type Catalog struct {
	exec      ToolExecutor
	responder Responder

	entries map[state.AgentType]*catalogEntry
}

type catalogEntry struct {
	once  sync.Once
	graph *graph.Graph
	err   error
}

type CatalogOption func(*Catalog)

// WithResponder 让所有助手使用同一个回复生成器（例如 LLM），替代各自的模板。
func WithResponder(r Responder) CatalogOption {
	return func(c *Catalog) { c.responder = r }
}

func NewCatalog(exec ToolExecutor, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		exec:    exec,
		entries: make(map[state.AgentType]*catalogEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	// 条目在构造时一次性建好，之后 map 只读，无需额外加锁
	for _, t := range state.AllAgentTypes() {
		c.entries[t] = &catalogEntry{}
	}
	return c
}

// Graph 返回指定助手的图；构建失败的结果同样被缓存。
func (c *Catalog) Graph(agentType state.AgentType) (*graph.Graph, error) {
	agentType = agentType.OrDefault()
	e, ok := c.entries[agentType]
	if !ok {
		// 兼容别名，例如 "docs"
		parsed, err := state.ParseAgentType(string(agentType))
		if err != nil {
			return nil, err
		}
		e = c.entries[parsed]
		agentType = parsed
	}
	e.once.Do(func() {
		e.graph, e.err = BuildGraph(agentType, c.exec, c.responder)
	})
	return e.graph, e.err
}
