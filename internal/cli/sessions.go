package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wwwzy/wxorca/internal/config"
	"github.com/wwwzy/wxorca/internal/state"
	"github.com/wwwzy/wxorca/internal/storage"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "查看和管理会话",
}

var (
	sessionsLimit int
	sessionsAgent string
	sessionsJSON  bool
)

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "按最近更新时间列出会话",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openSessionBackend(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		agentFilter := ""
		if sessionsAgent != "" {
			t, err := state.ParseAgentType(sessionsAgent)
			if err != nil {
				return err
			}
			agentFilter = string(t)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		defer w.Flush()

		if a.redis != nil {
			ids, err := a.redis.List(ctx, sessionsLimit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "Session\tAgent\tMessages\tComplete\tUpdated")
			for _, id := range ids {
				st, err := a.redis.Load(ctx, id)
				if err != nil {
					continue
				}
				if agentFilter != "" && string(st.AgentType) != agentFilter {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%s\n", st.SessionID, st.AgentType, len(st.Messages), st.IsComplete, st.UpdatedAt.Local().Format(time.DateTime))
			}
			return nil
		}

		rows, err := a.db.ListConversations(ctx, storage.ConversationQuery{AgentType: agentFilter, Limit: sessionsLimit})
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "Session\tAgent\tMessages\tComplete\tUpdated")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%s\n", r.SessionID, r.AgentType, r.MessageCount, r.IsComplete, r.UpdatedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "显示会话的全部消息",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openSessionBackend(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.store().Load(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if sessionsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		fmt.Fprintf(out, "Session: %s\nAgent:   %s (%s)\nUpdated: %s\n\n", st.SessionID, st.AgentType.DisplayName(), st.AgentType, st.UpdatedAt.Local().Format(time.DateTime))
		for _, m := range st.Messages {
			label := string(m.Role)
			if m.Role == state.RoleTool {
				label = fmt.Sprintf("tool:%s", m.ToolName)
			}
			fmt.Fprintf(out, "[%s]\n%s\n\n", label, m.Content)
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "删除会话",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openSessionBackend(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.redis != nil {
			err = a.redis.Delete(ctx, args[0])
		} else {
			err = a.db.DeleteConversation(ctx, args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
		return nil
	},
}

// openSessionBackend 只打开存储，不构建助手
func openSessionBackend(ctx context.Context) (*app, error) {
	db, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{db: db}
	if cfg.Storage.Driver == config.DriverRedis {
		if _, err := a.conversationStore(ctx, cfg); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) store() storage.ConversationStore {
	if a.redis != nil {
		return a.redis
	}
	return a.db
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd)

	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "最多列出的会话数")
	sessionsListCmd.Flags().StringVar(&sessionsAgent, "agent", "", "只列出指定助手类型的会话")
	sessionsShowCmd.Flags().BoolVar(&sessionsJSON, "json", false, "以 JSON 输出完整状态")
}
