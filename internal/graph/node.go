package graph

import (
	"context"

	"github.com/wwwzy/wxorca/internal/state"
)

// END 是终止哨兵，可作为边的目标或路由函数的返回值。
const END = "__end__"

// Signal 是节点执行后的控制信号。节点出错时通过 error 返回，不使用信号表达。
type Signal int

const (
	// Continue 沿边表前进。
	Continue Signal = iota
	// Finish 表示节点认为本次运行可以结束；若节点挂有条件边且路由到非 END，运行继续。
	Finish
)

func (s Signal) String() string {
	switch s {
	case Continue:
		return "continue"
	case Finish:
		return "finish"
	}
	return "unknown"
}

// Node 是编排图中的一个工作单元。
//
// Execute 通过 Handle 的读写作用域访问状态，且不得跨工具调用持有写作用域。
// 返回非 nil error 即视为节点失败，运行立即终止，不会重试。
type Node interface {
	ID() string
	Description() string
	Execute(ctx context.Context, st *state.Handle) (Signal, error)
}

// Router 根据状态快照选择下一个节点，返回 END 表示终止。
// 路由函数应为纯函数，不得修改 s。
type Router func(s *state.ConversationState) string

type funcNode struct {
	id   string
	desc string
	fn   func(ctx context.Context, st *state.Handle) (Signal, error)
}

// NodeFunc 把一个函数包装为 Node。
func NodeFunc(id, desc string, fn func(ctx context.Context, st *state.Handle) (Signal, error)) Node {
	return &funcNode{id: id, desc: desc, fn: fn}
}

func (n *funcNode) ID() string          { return n.id }
func (n *funcNode) Description() string { return n.desc }

func (n *funcNode) Execute(ctx context.Context, st *state.Handle) (Signal, error) {
	return n.fn(ctx, st)
}
