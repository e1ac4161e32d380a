package agent

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// SystemPromptTemplate 包装各助手的系统提示词
// 包含动态变量: {agent_name}, {system_prompt}
const SystemPromptTemplate = `{system_prompt}

You are answering as "{agent_name}" inside WXOrca.
Answer in Markdown. When tool results are present in the conversation, ground your answer on them
and cite document titles or URLs. If the results do not cover the question, say so and suggest where to look next.`

// NewChatTemplate 创建 ChatTemplate：系统消息 + 历史消息
func NewChatTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(SystemPromptTemplate),
		// history 已包含本轮用户消息与工具结果
		schema.MessagesPlaceholder("history", true),
	)
}
