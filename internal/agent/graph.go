package agent

import (
	"fmt"

	"github.com/wwwzy/wxorca/internal/graph"
	"github.com/wwwzy/wxorca/internal/state"
)

// BuildGraph 构建指定助手的处理流程图。
// r 为 nil 时使用该助手的模板回复。
func BuildGraph(agentType state.AgentType, exec ToolExecutor, r Responder) (*graph.Graph, error) {
	agentType = agentType.OrDefault()
	if r == nil {
		r = TemplateResponder(agentType)
	}

	var b *graph.Builder
	switch agentType {
	case state.AdminSetup:
		b = adminSetupGraph()
	case state.UsageAssistant:
		b = usageAssistantGraph()
	case state.Troubleshoot:
		b = troubleshootGraph()
	case state.BestPractices:
		b = bestPracticesGraph()
	case state.DocsHelper:
		b = docsHelperGraph()
	default:
		return nil, fmt.Errorf("unknown agent type: %s", agentType)
	}

	// 所有助手共用的收尾：respond ⇄ execute_tools
	b.AddNode(NewRespondNode(NodeRespond, r)).
		AddNode(NewExecuteToolsNode(NodeExecuteTools, exec)).
		AddConditionalEdge(NodeRespond, RouteByTools, NodeExecuteTools, graph.END).
		AddEdge(NodeExecuteTools, NodeRespond)

	return b.Compile()
}

// pipeline 按顺序串联 analyze -> ... -> respond，stages 之间为普通边
func pipeline(name string, stages ...graph.Node) *graph.Builder {
	b := graph.NewBuilder(name).
		AddNode(NewAnalyzeQueryNode(NodeAnalyze)).
		SetEntryPoint(NodeAnalyze)

	prev := NodeAnalyze
	for _, n := range stages {
		b.AddNode(n).AddEdge(prev, n.ID())
		prev = n.ID()
	}
	return b.AddEdge(prev, NodeRespond)
}

// searchDocsNode 入队一次 search_wxo_docs 调用；问题为空时不入队。
func searchDocsNode(desc string, args func(s *state.ConversationState, query string) map[string]any) graph.Node {
	return &queueToolNode{
		id:   NodeSearchDocs,
		desc: desc,
		plan: func(s *state.ConversationState) (string, any, bool) {
			query := originalQuery(s)
			if query == "" {
				return "", nil, false
			}
			return searchDocsTool, args(s, query), true
		},
	}
}

// 工具名与 tools 包保持一致；agent 不直接依赖工具实现
const (
	searchDocsTool    = "search_wxo_docs"
	fetchExamplesTool = "fetch_wxo_examples"
)
