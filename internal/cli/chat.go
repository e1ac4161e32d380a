package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wwwzy/wxorca/internal/assistant"
	"github.com/wwwzy/wxorca/internal/state"
	"github.com/wwwzy/wxorca/internal/tui"
	"github.com/wwwzy/wxorca/internal/ui"
)

var (
	chatAgent       string
	chatSession     string
	chatMessage     string
	chatFormat      string
	chatUI          string
	chatRender      bool
	chatMetricsAddr string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "与助手对话",
	Long: `与指定助手对话。提供 --message 时只处理一轮并输出结果，
否则进入交互模式（console / tui），或以 stdin 行协议供程序调用。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		agentType, err := state.ParseAgentType(chatAgent)
		if err != nil {
			return err
		}
		if chatFormat != "text" && chatFormat != "json" {
			return fmt.Errorf("未知输出格式: %s (支持: text, json)", chatFormat)
		}

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := cfg.Metrics.Addr
		if chatMetricsAddr != "" {
			addr = chatMetricsAddr
		}
		mgr, err := newBackgroundManager(a, addr, cfg.Retention.Enabled)
		if err != nil {
			return err
		}
		if err := mgr.Start(ctx); err != nil {
			return err
		}
		defer func() {
			mgr.Stop()
			_ = mgr.Wait()
		}()

		if chatMessage != "" {
			resp := a.service.Process(ctx, assistant.Request{
				AgentType: agentType,
				SessionID: chatSession,
				Message:   chatMessage,
			})
			return printAgentResponse(cmd, resp)
		}

		var uiImpl ui.ChatUI
		switch chatUI {
		case "console", "":
			uiImpl = &ui.ConsoleChatUI{In: os.Stdin, Out: os.Stdout}
		case "tui":
			uiImpl = &tui.ChatUI{}
		case "stdin":
			uiImpl = &ui.StdinUI{In: os.Stdin, Out: os.Stdout}
		default:
			return fmt.Errorf("未知 ui 类型: %s (支持: console, tui, stdin)", chatUI)
		}

		return uiImpl.Run(ctx, a.service, ui.ChatOptions{
			AgentType: agentType,
			SessionID: chatSession,
			Render:    chatRender,
		})
	},
}

func printAgentResponse(cmd *cobra.Command, resp assistant.AgentResponse) error {
	out := cmd.OutOrStdout()
	if chatFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	text := resp.Response
	if chatRender {
		text = ui.NewMarkdownRenderer(100).Render(text)
	}
	fmt.Fprintln(out, text)
	fmt.Fprintf(cmd.ErrOrStderr(), "\nsession: %s\n", resp.SessionID)
	if resp.Error != "" {
		return fmt.Errorf("agent run failed: %s", resp.Error)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatAgent, "agent", "a", string(state.DefaultAgentType), "助手类型: admin-setup/usage/troubleshoot/best-practices/docs")
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "继续已有会话")
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "只处理这一条消息并退出")
	chatCmd.Flags().StringVar(&chatFormat, "format", "text", "单轮输出格式: text/json")
	chatCmd.Flags().StringVar(&chatUI, "ui", "console", "交互界面类型: console/tui/stdin")
	chatCmd.Flags().BoolVar(&chatRender, "render", false, "用 markdown 渲染助手回复")
	chatCmd.Flags().StringVar(&chatMetricsAddr, "metrics-addr", "", "暴露 /metrics 的地址，覆盖 metrics.addr")
}
