package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/wxorca/internal/state"
)

// Responder 根据状态快照生成一条助手回复。快照只读，实现不得修改它。
type Responder interface {
	Respond(ctx context.Context, s *state.ConversationState) (string, error)
}

// ResponderFunc 把纯函数适配为 Responder
type ResponderFunc func(ctx context.Context, s *state.ConversationState) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, s *state.ConversationState) (string, error) {
	return f(ctx, s)
}

// templateResponder 把无需上下文的模板函数包装为 Responder
func templateResponder(fn func(s *state.ConversationState) string) Responder {
	return ResponderFunc(func(_ context.Context, s *state.ConversationState) (string, error) {
		return fn(s), nil
	})
}

// TemplateResponder 返回指定助手的模板回复生成器
func TemplateResponder(agentType state.AgentType) Responder {
	switch agentType.OrDefault() {
	case state.UsageAssistant:
		return templateResponder(usageResponse)
	case state.Troubleshoot:
		return templateResponder(troubleshootResponse)
	case state.BestPractices:
		return templateResponder(bestPracticesResponse)
	case state.DocsHelper:
		return templateResponder(docsResponse)
	default:
		return templateResponder(adminResponse)
	}
}

// ChatModelResponder 使用 eino ChatModel 生成回复。
// 系统提示词来自助手类型，历史消息由 ChatTemplate 注入。
type ChatModelResponder struct {
	model    model.BaseChatModel
	template prompt.ChatTemplate
}

func NewChatModelResponder(m model.BaseChatModel) *ChatModelResponder {
	return &ChatModelResponder{model: m, template: NewChatTemplate()}
}

func (r *ChatModelResponder) Respond(ctx context.Context, s *state.ConversationState) (string, error) {
	if r == nil || r.model == nil {
		return "", fmt.Errorf("chat model not configured")
	}

	// 1. 组装模板变量
	vars := map[string]any{
		"system_prompt": s.AgentType.SystemPrompt(),
		"agent_name":    s.AgentType.DisplayName(),
		"history":       toSchemaMessages(s.Messages),
	}

	// 2. 渲染消息列表
	messages, err := r.template.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("format chat template failed: %w", err)
	}

	// 3. 调用模型；这里只需要文本回复，工具调用由图中的检索节点负责
	msg, err := r.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("chat model generate failed: %w", err)
	}
	if msg == nil || msg.Content == "" {
		return "", fmt.Errorf("chat model returned empty content")
	}
	return msg.Content, nil
}

// toSchemaMessages 把会话消息转换为 eino 消息。
// system 消息由模板统一提供，这里跳过；tool 结果没有对应的模型侧 ToolCall，
// 以系统消息的形式附带工具名交给模型。
func toSchemaMessages(msgs []state.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case state.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case state.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		case state.RoleTool:
			out = append(out, schema.SystemMessage(fmt.Sprintf("Result of tool %s:\n%s", m.ToolName, m.Content)))
		}
	}
	return out
}
