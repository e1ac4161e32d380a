package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/wwwzy/wxorca/internal/assistant"
	"github.com/wwwzy/wxorca/internal/state"
)

// ChatBackend 处理一轮对话，*assistant.Service 实现了它
type ChatBackend interface {
	Process(ctx context.Context, req assistant.Request) assistant.AgentResponse
}

var _ ChatBackend = (*assistant.Service)(nil)

type ChatUI interface {
	Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error
}

type ChatOptions struct {
	AgentType state.AgentType
	// SessionID 为空时由第一轮回复分配，之后沿用
	SessionID string
	// Render 为 true 时用 glamour 渲染助手回复中的 markdown
	Render bool
}

// MarkdownRenderer 渲染失败时原样返回文本
type MarkdownRenderer struct {
	r *glamour.TermRenderer
}

func NewMarkdownRenderer(width int) *MarkdownRenderer {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return &MarkdownRenderer{}
	}
	return &MarkdownRenderer{r: r}
}

func (m *MarkdownRenderer) Render(md string) string {
	if m == nil || m.r == nil || strings.TrimSpace(md) == "" {
		return md
	}
	out, err := m.r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

func isExit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "exit", "quit":
		return true
	}
	return false
}
