package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message 是会话中的一条消息，创建后不再修改。
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// ToolCallID/ToolName 仅 tool 消息携带，指向发起它的 ToolCall。
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// ToolCall 是一个待执行的工具调用。
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult 是一次工具调用的文本结果；Failed 表示 Content 是错误描述。
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	Failed  bool
}

// ErrUnknownToolCall 表示写入的工具结果不对应任何待执行调用。
var ErrUnknownToolCall = errors.New("tool result does not match a pending tool call")

// ConversationState 是一次会话在编排图中流转的全部数据。
//
// 约定：
//   - Messages 只追加，顺序即创建顺序。
//   - Context 仅在一次运行内有效，节点读取时必须给出默认值（见 ContextValue）。
//   - PendingToolCalls 由检索/回复节点追加，由工具执行节点一次性清空。
//   - IsComplete 只会从 false 变为 true。
type ConversationState struct {
	SessionID        string                     `json:"session_id"`
	AgentType        AgentType                  `json:"agent_type"`
	Messages         []Message                  `json:"messages"`
	Context          map[string]json.RawMessage `json:"context"`
	PendingToolCalls []ToolCall                 `json:"pending_tool_calls"`
	Iteration        int                        `json:"iteration"`
	IsComplete       bool                       `json:"is_complete"`
	CreatedAt        time.Time                  `json:"created_at"`
	UpdatedAt        time.Time                  `json:"updated_at"`
}

// NewConversationState 创建一个新会话，SessionID 为随机 uuid。
func NewConversationState(agentType AgentType) *ConversationState {
	return NewConversationStateWithSession(uuid.NewString(), agentType)
}

func NewConversationStateWithSession(sessionID string, agentType AgentType) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		SessionID: sessionID,
		AgentType: agentType.OrDefault(),
		Messages:  []Message{},
		Context:   map[string]json.RawMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *ConversationState) touch() {
	s.UpdatedAt = time.Now().UTC()
}

func (s *ConversationState) addMessage(role Role, content, callID, toolName string) Message {
	msg := Message{
		ID:         uuid.NewString(),
		Role:       role,
		Content:    content,
		Timestamp:  time.Now().UTC(),
		ToolCallID: callID,
		ToolName:   toolName,
	}
	s.Messages = append(s.Messages, msg)
	s.touch()
	return msg
}

func (s *ConversationState) AddSystemMessage(content string) Message {
	return s.addMessage(RoleSystem, content, "", "")
}

func (s *ConversationState) AddUserMessage(content string) Message {
	return s.addMessage(RoleUser, content, "", "")
}

func (s *ConversationState) AddAssistantMessage(content string) Message {
	return s.addMessage(RoleAssistant, content, "", "")
}

// AddToolResult 追加一条工具结果消息；callID 必须是当前待执行的调用。
func (s *ConversationState) AddToolResult(callID, toolName, content string) (Message, error) {
	if !s.hasPending(callID) {
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownToolCall, callID)
	}
	return s.addMessage(RoleTool, content, callID, toolName), nil
}

func (s *ConversationState) hasPending(callID string) bool {
	for _, c := range s.PendingToolCalls {
		if c.ID == callID {
			return true
		}
	}
	return false
}

// PushToolCall 追加一个待执行调用并返回分配的调用 ID。
func (s *ConversationState) PushToolCall(name string, args any) (string, error) {
	raw, err := encodeArgs(args)
	if err != nil {
		return "", fmt.Errorf("encode arguments for %s: %w", name, err)
	}
	id := uuid.NewString()
	s.PendingToolCalls = append(s.PendingToolCalls, ToolCall{ID: id, Name: name, Arguments: raw})
	s.touch()
	return id, nil
}

func encodeArgs(args any) (json.RawMessage, error) {
	switch v := args.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		return append(json.RawMessage(nil), v...), nil
	case []byte:
		return append(json.RawMessage(nil), v...), nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// DrainToolCalls 取出并清空全部待执行调用。
func (s *ConversationState) DrainToolCalls() []ToolCall {
	calls := s.PendingToolCalls
	s.PendingToolCalls = nil
	s.touch()
	return calls
}

// CompleteToolCalls 为每个结果追加 tool 消息并清空待执行列表，整体作为一次状态变更。
// 结果中出现非待执行的调用 ID 时返回错误，状态由调用方（Handle.Write）丢弃。
func (s *ConversationState) CompleteToolCalls(results []ToolResult) error {
	for _, r := range results {
		if _, err := s.AddToolResult(r.CallID, r.Name, r.Content); err != nil {
			return err
		}
	}
	s.DrainToolCalls()
	return nil
}

// SetContext 以 JSON 形式写入一个上下文值。
func (s *ConversationState) SetContext(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode context %q: %w", key, err)
	}
	if s.Context == nil {
		s.Context = map[string]json.RawMessage{}
	}
	s.Context[key] = b
	s.touch()
	return nil
}

// ResetContext 清空上下文，每轮对话开始时调用。
func (s *ConversationState) ResetContext() {
	s.Context = map[string]json.RawMessage{}
	s.touch()
}

// ContextValue 读取并解码一个上下文值；缺失、null 或类型不匹配时返回 def。
func ContextValue[T any](s *ConversationState, key string, def T) T {
	if s == nil {
		return def
	}
	raw, ok := s.Context[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return def
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}
	return v
}

// MarkComplete 标记本轮已完成。重复调用只刷新 UpdatedAt。
func (s *ConversationState) MarkComplete() {
	s.IsComplete = true
	s.touch()
}

// NextIteration 记录一次节点执行。
func (s *ConversationState) NextIteration() int {
	s.Iteration++
	s.touch()
	return s.Iteration
}

func (s *ConversationState) lastByRole(role Role) *Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == role {
			m := s.Messages[i]
			return &m
		}
	}
	return nil
}

// LastUserMessage 返回最近一条用户消息，没有时为 nil。
func (s *ConversationState) LastUserMessage() *Message {
	return s.lastByRole(RoleUser)
}

func (s *ConversationState) LastAssistantMessage() *Message {
	return s.lastByRole(RoleAssistant)
}

// ToolMessages 返回全部 tool 消息内容（按时间顺序）。
func (s *ConversationState) ToolMessages() []string {
	var out []string
	for _, m := range s.Messages {
		if m.Role == RoleTool {
			out = append(out, m.Content)
		}
	}
	return out
}

// Clone 深拷贝，用于快照与事务写入。
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := *s
	if s.Messages != nil {
		c.Messages = make([]Message, len(s.Messages))
		copy(c.Messages, s.Messages)
	}
	if s.Context != nil {
		c.Context = make(map[string]json.RawMessage, len(s.Context))
		for k, v := range s.Context {
			c.Context[k] = append(json.RawMessage(nil), v...)
		}
	}
	if s.PendingToolCalls != nil {
		c.PendingToolCalls = make([]ToolCall, len(s.PendingToolCalls))
		for i, call := range s.PendingToolCalls {
			call.Arguments = append(json.RawMessage(nil), call.Arguments...)
			c.PendingToolCalls[i] = call
		}
	}
	return &c
}
