package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wwwzy/wxorca/internal/assistant"
)

type ConsoleChatUI struct {
	In  io.Reader
	Out io.Writer
}

func (u *ConsoleChatUI) Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error {
	in := u.In
	if in == nil {
		return fmt.Errorf("console ui: In is nil")
	}
	out := u.Out
	if out == nil {
		return fmt.Errorf("console ui: Out is nil")
	}

	var renderer *MarkdownRenderer
	if opts.Render {
		renderer = NewMarkdownRenderer(100)
	}

	reader := bufio.NewReader(in)
	sessionID := opts.SessionID

	fmt.Fprintf(out, "进入 WXOrca 对话模式（%s）。输入 exit/quit 退出。\n", opts.AgentType.OrDefault().DisplayName())
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "已退出。")
			return nil
		default:
		}

		fmt.Fprint(out, "你: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return fmt.Errorf("读取输入失败: %w", err)
			}
			// 输入结束，最后一行没有换行时仍然处理
			if strings.TrimSpace(line) == "" {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "已退出。")
				return nil
			}
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isExit(line) {
			fmt.Fprintln(out, "已退出。")
			return nil
		}

		resp := backend.Process(ctx, assistant.Request{
			AgentType: opts.AgentType,
			SessionID: sessionID,
			Message:   line,
		})
		// 后续轮次沿用服务端分配的会话
		if resp.SessionID != "" {
			sessionID = resp.SessionID
		}

		printResponse(out, resp, renderer)
		fmt.Fprintln(out)
	}
}

func printResponse(w io.Writer, resp assistant.AgentResponse, renderer *MarkdownRenderer) {
	if resp.Error != "" {
		fmt.Fprintf(w, "发生错误：%s\n", resp.Error)
	}
	content := strings.TrimSpace(resp.Response)
	if content == "" {
		fmt.Fprintln(w, "助手: (无文本输出)")
		return
	}
	if renderer != nil {
		content = renderer.Render(content)
	}
	fmt.Fprintf(w, "助手: %s\n", content)
}
