package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wwwzy/wxorca/internal/graph"
	"github.com/wwwzy/wxorca/internal/state"
)

// 节点 ID，各助手图共用同一套命名
const (
	NodeAnalyze       = "analyze"
	NodeSearchDocs    = "search_docs"
	NodeFetchExamples = "fetch_examples"
	NodeRespond       = "respond"
	NodeExecuteTools  = "execute_tools"
	NodeDiagnose      = "diagnose"
	NodeAssess        = "assess"
	NodeCategorize    = "categorize"
)

// 节点之间通过上下文传递的键
const (
	KeyUserIntent    = "user_intent"
	KeyOriginalQuery = "original_query"
	KeyNeedsTools    = "needs_tools"
	KeyDiagnosis     = "diagnosis"
	KeyBPTopic       = "bp_topic"
	KeyDocsCategory  = "docs_category"
)

// Intent 是基于关键词的粗粒度意图
type Intent string

const (
	IntentHowTo        Intent = "howto"
	IntentTroubleshoot Intent = "troubleshoot"
	IntentSearch       Intent = "search"
	IntentExample      Intent = "example"
	IntentValidate     Intent = "validate"
	IntentAdvice       Intent = "advice"
	IntentGeneral      Intent = "general"
)

var intentRules = []struct {
	intent   Intent
	keywords []string
}{
	{IntentHowTo, []string{"how do i", "how to", "show me"}},
	{IntentTroubleshoot, []string{"error", "failed", "not working", "problem"}},
	{IntentSearch, []string{"documentation", "docs", "where can i find"}},
	{IntentExample, []string{"example", "sample", "show me code"}},
	{IntentValidate, []string{"validate", "check", "is this correct"}},
	{IntentAdvice, []string{"best practice", "recommend", "should i"}},
}

// DetectIntent 按规则顺序匹配关键词，先命中者优先。
func DetectIntent(query string) Intent {
	q := strings.ToLower(query)
	for _, rule := range intentRules {
		if containsAny(q, rule.keywords...) {
			return rule.intent
		}
	}
	return IntentGeneral
}

// NeedsTools 表示该意图是否需要检索或调用工具
func (i Intent) NeedsTools() bool {
	return i == IntentSearch || i == IntentValidate || i == IntentExample
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// AnalyzeQueryNode 读取最近一条用户消息，写入 user_intent / original_query / needs_tools。
// 没有用户消息时不做任何修改。
type AnalyzeQueryNode struct {
	id string
}

func NewAnalyzeQueryNode(id string) *AnalyzeQueryNode {
	return &AnalyzeQueryNode{id: id}
}

func (n *AnalyzeQueryNode) ID() string { return n.id }

func (n *AnalyzeQueryNode) Description() string {
	return "Analyzes the user's query to extract intent and key information"
}

func (n *AnalyzeQueryNode) Execute(_ context.Context, h *state.Handle) (graph.Signal, error) {
	err := h.Write(func(s *state.ConversationState) error {
		msg := s.LastUserMessage()
		if msg == nil {
			return nil
		}
		intent := DetectIntent(msg.Content)
		if err := s.SetContext(KeyUserIntent, intent); err != nil {
			return err
		}
		if err := s.SetContext(KeyOriginalQuery, msg.Content); err != nil {
			return err
		}
		return s.SetContext(KeyNeedsTools, intent.NeedsTools())
	})
	if err != nil {
		return graph.Continue, err
	}
	return graph.Continue, nil
}

// ToolExecutor 批量执行工具调用，结果顺序与 calls 一致。*tools.Registry 实现了该接口。
type ToolExecutor interface {
	ExecuteAll(ctx context.Context, calls []state.ToolCall) []state.ToolResult
}

// ExecuteToolsNode 执行全部待处理的工具调用。
//
// 1. 读作用域内拷贝待执行调用
// 2. 不持锁调用工具
// 3. 一次写作用域内追加全部 tool 消息并清空待执行列表
type ExecuteToolsNode struct {
	id   string
	exec ToolExecutor
}

func NewExecuteToolsNode(id string, exec ToolExecutor) *ExecuteToolsNode {
	return &ExecuteToolsNode{id: id, exec: exec}
}

func (n *ExecuteToolsNode) ID() string          { return n.id }
func (n *ExecuteToolsNode) Description() string { return "Executes pending tool calls" }

func (n *ExecuteToolsNode) Execute(ctx context.Context, h *state.Handle) (graph.Signal, error) {
	var calls []state.ToolCall
	if err := h.Read(func(s *state.ConversationState) error {
		calls = append(calls, s.PendingToolCalls...)
		return nil
	}); err != nil {
		return graph.Continue, err
	}
	if len(calls) == 0 {
		return graph.Continue, nil
	}
	if n.exec == nil {
		return graph.Continue, graph.Fail("config", "no tool executor configured")
	}

	start := time.Now()
	results := n.exec.ExecuteAll(ctx, calls)
	log.Debug().Str("node", n.id).Int("calls", len(calls)).Dur("elapsed", time.Since(start)).Msg("tool calls executed")

	if err := h.Write(func(s *state.ConversationState) error {
		return s.CompleteToolCalls(results)
	}); err != nil {
		return graph.Continue, fmt.Errorf("commit tool results: %w", err)
	}
	return graph.Continue, nil
}

// RouteByTools 有待执行的工具调用时进入 execute_tools，否则结束。
func RouteByTools(s *state.ConversationState) string {
	if len(s.PendingToolCalls) > 0 {
		return NodeExecuteTools
	}
	return graph.END
}

// RouteByIntent needs_tools 为真时先检索文档，否则直接回复。
func RouteByIntent(s *state.ConversationState) string {
	if state.ContextValue(s, KeyNeedsTools, false) {
		return NodeSearchDocs
	}
	return NodeRespond
}

// originalQuery 读取 analyze 节点写入的原始问题
func originalQuery(s *state.ConversationState) string {
	return state.ContextValue(s, KeyOriginalQuery, "")
}

// queueToolNode 根据当前状态生成一个工具调用并加入待执行列表。
// plan 返回 ok=false 时不入队（例如问题为空）。
type queueToolNode struct {
	id   string
	desc string
	plan func(s *state.ConversationState) (name string, args any, ok bool)
}

func (n *queueToolNode) ID() string          { return n.id }
func (n *queueToolNode) Description() string { return n.desc }

func (n *queueToolNode) Execute(_ context.Context, h *state.Handle) (graph.Signal, error) {
	err := h.Write(func(s *state.ConversationState) error {
		name, args, ok := n.plan(s)
		if !ok {
			return nil
		}
		_, err := s.PushToolCall(name, args)
		return err
	})
	return graph.Continue, err
}

// newClassifyNode 对原始问题做分类并把结果写入上下文 key
func newClassifyNode(id, desc, key string, classify func(query string) any) graph.Node {
	return graph.NodeFunc(id, desc, func(_ context.Context, h *state.Handle) (graph.Signal, error) {
		err := h.Write(func(s *state.ConversationState) error {
			return s.SetContext(key, classify(originalQuery(s)))
		})
		return graph.Continue, err
	})
}

// RespondNode 生成助手回复。
// 若仍有待执行的工具调用则不生成回复，由 RouteByTools 转入 execute_tools，
// 工具结果写回后再次进入本节点。
type RespondNode struct {
	id        string
	responder Responder
}

func NewRespondNode(id string, r Responder) *RespondNode {
	return &RespondNode{id: id, responder: r}
}

func (n *RespondNode) ID() string          { return n.id }
func (n *RespondNode) Description() string { return "Generates the assistant response" }

func (n *RespondNode) Execute(ctx context.Context, h *state.Handle) (graph.Signal, error) {
	snap, err := h.Snapshot()
	if err != nil {
		return graph.Finish, err
	}
	if len(snap.PendingToolCalls) > 0 {
		return graph.Finish, nil
	}

	text, err := n.responder.Respond(ctx, snap)
	if err != nil {
		return graph.Finish, &graph.NodeError{Kind: "respond", Err: err}
	}

	err = h.Write(func(s *state.ConversationState) error {
		s.AddAssistantMessage(text)
		s.MarkComplete()
		return nil
	})
	return graph.Finish, err
}
