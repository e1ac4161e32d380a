package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/wxorca/internal/assistant"
	"github.com/wwwzy/wxorca/internal/state"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("ARK_MODEL_ID", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("log_level: error\nstorage:\n  path: %q\n", filepath.Join(dir, "wxorca.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute 以给定参数运行根命令；全局 flag 变量在每次执行前重置
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	chatAgent, chatSession, chatMessage = string(state.DefaultAgentType), "", ""
	chatFormat, chatUI, chatRender = "text", "console", false
	sessionsJSON, sessionsAgent, sessionsLimit = false, "", 20
	feedbackAgent, feedbackComment = "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAgentsCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)
	out, err := execute(t, "--config", cfgPath, "agents")
	require.NoError(t, err)
	for _, at := range state.AllAgentTypes() {
		assert.Contains(t, out, string(at))
		assert.Contains(t, out, at.DisplayName())
	}
}

func TestChatSessionsAndFeedback(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := execute(t, "--config", cfgPath, "chat", "--agent", "troubleshoot", "--format", "json", "--message", "My workflow is timing out")
	require.NoError(t, err)

	var resp assistant.AgentResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Empty(t, resp.Error)
	assert.Equal(t, state.Troubleshoot, resp.AgentType)
	assert.Contains(t, resp.Response, "Issue Analysis")
	require.NotEmpty(t, resp.SessionID)

	out, err = execute(t, "--config", cfgPath, "sessions", "list", "--agent", "troubleshoot")
	require.NoError(t, err)
	assert.Contains(t, out, resp.SessionID)

	out, err = execute(t, "--config", cfgPath, "sessions", "show", resp.SessionID)
	require.NoError(t, err)
	assert.Contains(t, out, "My workflow is timing out")
	assert.Contains(t, out, "tool:search_wxo_docs")

	_, err = execute(t, "--config", cfgPath, "feedback", "submit", "--session", resp.SessionID, "--rating", "4")
	require.NoError(t, err)
	_, err = execute(t, "--config", cfgPath, "feedback", "submit", "--session", resp.SessionID, "--rating", "9")
	assert.Error(t, err)

	out, err = execute(t, "--config", cfgPath, "feedback", "rating", "--agent", "troubleshoot")
	require.NoError(t, err)
	assert.Contains(t, out, "4.00")

	out, err = execute(t, "--config", cfgPath, "storage", "audit", "--session", resp.SessionID)
	require.NoError(t, err)
	assert.Contains(t, out, "search_wxo_docs")

	_, err = execute(t, "--config", cfgPath, "sessions", "delete", resp.SessionID)
	require.NoError(t, err)
	_, err = execute(t, "--config", cfgPath, "sessions", "show", resp.SessionID)
	assert.Error(t, err)
}

func TestStorageCommands(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := execute(t, "--config", cfgPath, "storage", "seed-docs")
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 8 documents.")

	out, err = execute(t, "--config", cfgPath, "storage", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "WxoDocs")
	assert.Contains(t, out, "8")

	out, err = execute(t, "--config", cfgPath, "storage", "prune", "--audit-keep", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Prune completed.")
}

func TestChatRejectsUnknownAgent(t *testing.T) {
	cfgPath := writeTestConfig(t)
	_, err := execute(t, "--config", cfgPath, "chat", "--agent", "wizard", "--message", "hi")
	assert.Error(t, err)
}
