package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/wxorca/internal/assistant"
	"github.com/wwwzy/wxorca/internal/state"
	"github.com/wwwzy/wxorca/internal/ui"
)

type stubBackend struct {
	last assistant.Request
}

func (b *stubBackend) Process(_ context.Context, req assistant.Request) assistant.AgentResponse {
	b.last = req
	return assistant.AgentResponse{SessionID: "s-1", AgentType: req.AgentType, Response: "## 答复\n\n" + strings.Repeat("内容", 40)}
}

func TestChatModelRoundTrip(t *testing.T) {
	backend := &stubBackend{}
	var m tea.Model = newChatModel(context.Background(), backend, ui.ChatOptions{AgentType: state.DocsHelper})

	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	for _, r := range "where are the docs" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	cm := m.(chatModel)
	assert.True(t, cm.thinking)
	require.Len(t, cm.entries, 1)
	assert.Equal(t, state.RoleUser, cm.entries[0].role)

	// 直接调用后端代替执行 tea.Cmd
	resp := backend.Process(context.Background(), assistant.Request{AgentType: cm.agentType, Message: "where are the docs"})
	m, _ = m.Update(backendResultMsg{resp: resp})
	cm = m.(chatModel)
	assert.False(t, cm.thinking)
	assert.Equal(t, "s-1", cm.sessionID)
	require.Len(t, cm.entries, 2)
	assert.True(t, cm.streaming)

	for i := 0; i < 100 && cm.streaming; i++ {
		m, _ = m.Update(streamTickMsg{})
		cm = m.(chatModel)
	}
	assert.False(t, cm.streaming)
	assert.Contains(t, cm.View(), "s-1")
}

func TestChatModelShowsErrors(t *testing.T) {
	var m tea.Model = newChatModel(context.Background(), &stubBackend{}, ui.ChatOptions{})
	m, _ = m.Update(backendResultMsg{resp: assistant.AgentResponse{Response: assistant.FallbackResponse, Error: "boom"}})
	cm := m.(chatModel)
	require.Len(t, cm.entries, 2)
	assert.Equal(t, state.RoleSystem, cm.entries[0].role)
	assert.Contains(t, cm.entries[0].content, "boom")
}

func TestNextStreamPosStopsOnRuneBoundary(t *testing.T) {
	s := strings.Repeat("中", 20)
	pos := 0
	for pos < len(s) {
		pos = nextStreamPos(s, pos)
		assert.True(t, pos == len(s) || utf8RuneStart(s[pos]))
	}
	assert.Equal(t, len(s), pos)
}

func TestChatModelQuitsOnExit(t *testing.T) {
	var m tea.Model = newChatModel(context.Background(), &stubBackend{}, ui.ChatOptions{})
	for _, r := range "exit" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
}
