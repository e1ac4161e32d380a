package state

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAgentType(t *testing.T) {
	cases := map[string]AgentType{
		"admin-setup":     AdminSetup,
		"AdminSetup":      AdminSetup,
		"usage":           UsageAssistant,
		"troubleshooting": Troubleshoot,
		"best_practices":  BestPractices,
		"documentation":   DocsHelper,
		"docs-helper":     DocsHelper,
	}
	for in, want := range cases {
		got, err := ParseAgentType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseAgentType("sales")
	assert.Error(t, err)
}

func TestAgentTypeMetadata(t *testing.T) {
	for _, at := range AllAgentTypes() {
		assert.True(t, at.Valid())
		assert.NotEmpty(t, at.DisplayName())
		assert.NotEmpty(t, at.Description())
		assert.NotEmpty(t, at.SystemPrompt())
		assert.NotContains(t, at.SystemPrompt(), "{")
	}
	assert.Equal(t, "Troubleshooting Bot", Troubleshoot.DisplayName())
	assert.Equal(t, AdminSetup, AgentType("").OrDefault())
	assert.False(t, AgentType("nope").Valid())
}

func TestMessagesAndLookups(t *testing.T) {
	s := NewConversationState(UsageAssistant)
	assert.NotEmpty(t, s.SessionID)
	assert.Nil(t, s.LastUserMessage())
	assert.Nil(t, s.LastAssistantMessage())

	s.AddSystemMessage("sys")
	first := s.AddUserMessage("first")
	s.AddAssistantMessage("reply")
	second := s.AddUserMessage("second")

	require.Len(t, s.Messages, 4)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "second", s.LastUserMessage().Content)
	assert.Equal(t, "reply", s.LastAssistantMessage().Content)
	assert.False(t, s.UpdatedAt.Before(s.CreatedAt))
}

func TestContextValueDefaults(t *testing.T) {
	s := NewConversationState(DocsHelper)

	// 从未写入的键返回默认值
	assert.Equal(t, "general", ContextValue(s, "user_intent", "general"))
	assert.False(t, ContextValue(s, "needs_tools", false))

	require.NoError(t, s.SetContext("user_intent", "search"))
	require.NoError(t, s.SetContext("needs_tools", true))
	assert.Equal(t, "search", ContextValue(s, "user_intent", "general"))
	assert.True(t, ContextValue(s, "needs_tools", false))

	// 类型不匹配同样回落到默认值
	assert.Equal(t, 7, ContextValue(s, "user_intent", 7))

	type category struct {
		Primary  string   `json:"primary"`
		Keywords []string `json:"keywords"`
	}
	require.NoError(t, s.SetContext("docs_category", category{Primary: "api", Keywords: []string{"token"}}))
	got := ContextValue(s, "docs_category", category{Primary: "user"})
	assert.Equal(t, "api", got.Primary)
	assert.Equal(t, []string{"token"}, got.Keywords)

	assert.Equal(t, "x", ContextValue[string](nil, "k", "x"))

	s.ResetContext()
	assert.Equal(t, "general", ContextValue(s, "user_intent", "general"))
}

func TestToolCallLifecycle(t *testing.T) {
	s := NewConversationState(AdminSetup)
	s.AddUserMessage("how do I reset my password?")

	id1, err := s.PushToolCall("search_wxo_docs", map[string]any{"query": "password", "limit": 5})
	require.NoError(t, err)
	id2, err := s.PushToolCall("fetch_wxo_examples", json.RawMessage(`{"topic":"auth"}`))
	require.NoError(t, err)
	require.Len(t, s.PendingToolCalls, 2)
	assert.JSONEq(t, `{"query":"password","limit":5}`, string(s.PendingToolCalls[0].Arguments))

	_, err = s.AddToolResult("never-issued", "x", "{}")
	assert.True(t, errors.Is(err, ErrUnknownToolCall))

	err = s.CompleteToolCalls([]ToolResult{
		{CallID: id2, Name: "fetch_wxo_examples", Content: "[]"},
		{CallID: id1, Name: "search_wxo_docs", Content: "[]"},
	})
	require.NoError(t, err)
	assert.Empty(t, s.PendingToolCalls)

	tools := 0
	seen := map[string]bool{}
	for _, m := range s.Messages {
		if m.Role == RoleTool {
			tools++
			seen[m.ToolCallID] = true
		}
	}
	assert.Equal(t, 2, tools)
	assert.True(t, seen[id1] && seen[id2])
	assert.Len(t, s.ToolMessages(), 2)
}

func TestDrainToolCalls(t *testing.T) {
	s := NewConversationState(AdminSetup)
	_, err := s.PushToolCall("a", nil)
	require.NoError(t, err)
	calls := s.DrainToolCalls()
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{}`, string(calls[0].Arguments))
	assert.Empty(t, s.PendingToolCalls)
}

func TestMarkCompleteIdempotent(t *testing.T) {
	s := NewConversationState(AdminSetup)
	s.AddAssistantMessage("done")
	s.MarkComplete()
	firstUpdate := s.UpdatedAt
	msgs := len(s.Messages)

	time.Sleep(2 * time.Millisecond)
	s.MarkComplete()

	assert.True(t, s.IsComplete)
	assert.Len(t, s.Messages, msgs)
	assert.False(t, s.UpdatedAt.Before(firstUpdate))
}

func TestCloneIsDeep(t *testing.T) {
	s := NewConversationState(AdminSetup)
	s.AddUserMessage("q")
	require.NoError(t, s.SetContext("k", "v"))
	_, err := s.PushToolCall("t", map[string]string{"a": "b"})
	require.NoError(t, err)

	c := s.Clone()
	c.Messages[0].Content = "changed"
	c.Context["k"] = json.RawMessage(`"other"`)
	c.PendingToolCalls[0].Arguments[2] = 'z'

	assert.Equal(t, "q", s.Messages[0].Content)
	assert.Equal(t, "v", ContextValue(s, "k", ""))
	assert.JSONEq(t, `{"a":"b"}`, string(s.PendingToolCalls[0].Arguments))
}

func TestHandleWriteIsTransactional(t *testing.T) {
	h := NewHandle(NewConversationState(AdminSetup))

	boom := errors.New("boom")
	err := h.Write(func(s *ConversationState) error {
		s.AddAssistantMessage("half")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	snap, err := h.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Messages)

	require.NoError(t, h.Write(func(s *ConversationState) error {
		s.AddAssistantMessage("full")
		return nil
	}))
	snap, err = h.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Messages, 1)
}

func TestHandlePoisonedAfterPanic(t *testing.T) {
	h := NewHandle(nil)

	err := h.Write(func(s *ConversationState) error {
		panic("bad node")
	})
	var accessErr *StateAccessError
	require.ErrorAs(t, err, &accessErr)
	assert.Equal(t, "write", accessErr.Op)
	assert.ErrorIs(t, err, ErrStatePoisoned)

	err = h.Read(func(s *ConversationState) error { return nil })
	assert.ErrorIs(t, err, ErrStatePoisoned)

	// 锁已释放，后续调用不会阻塞
	_, err = h.Snapshot()
	assert.ErrorIs(t, err, ErrStatePoisoned)
}

func TestHandleConcurrentWrites(t *testing.T) {
	h := NewHandle(NewConversationState(AdminSetup))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Write(func(s *ConversationState) error {
				s.AddUserMessage("hi")
				return nil
			})
			_ = h.Read(func(s *ConversationState) error {
				_ = s.LastUserMessage()
				return nil
			})
		}()
	}
	wg.Wait()

	snap, err := h.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Messages, 50)
}
