package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrBuild 匹配所有 *BuildError。
	ErrBuild = errors.New("invalid graph")
	// ErrRunExhausted 匹配所有 *RunExhaustedError。
	ErrRunExhausted = errors.New("run exhausted")
	// ErrUnknownRoute 表示路由函数返回了图中不存在（或未声明）的节点。
	ErrUnknownRoute = errors.New("router returned unknown node")
	// ErrUnroutedToolCalls 表示节点以 Finish 结束运行时仍有未执行的工具调用。
	ErrUnroutedToolCalls = errors.New("run finished with pending tool calls")
)

// BuildError 描述 Compile 发现的第一个非法配置。
type BuildError struct {
	Reason string
	Node   string
}

func (e *BuildError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("build graph: %s", e.Reason)
	}
	return fmt.Sprintf("build graph: %s (node %q)", e.Reason, e.Node)
}

func (e *BuildError) Is(target error) bool {
	return target == ErrBuild
}

// RunExhaustedError 表示运行达到了迭代上限；PerNode 为 true 时是单节点重入上限。
type RunExhaustedError struct {
	Limit   int
	Node    string
	PerNode bool
}

func (e *RunExhaustedError) Error() string {
	if e.PerNode {
		return fmt.Sprintf("run exhausted: node %q executed more than %d times", e.Node, e.Limit)
	}
	return fmt.Sprintf("run exhausted: reached %d node executions (next node %q)", e.Limit, e.Node)
}

func (e *RunExhaustedError) Unwrap() error {
	return ErrRunExhausted
}

// NodeError 是节点主动报告的不可恢复错误。
type NodeError struct {
	Node    string
	Kind    string
	Message string
	Err     error
}

func (e *NodeError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("node %q failed (%s): %s", e.Node, e.Kind, msg)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// Fail 构造一个节点错误，节点 ID 由 Runner 补全。
func Fail(kind, format string, args ...any) error {
	return &NodeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
