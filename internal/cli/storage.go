package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wwwzy/wxorca/internal/retention"
	"github.com/wwwzy/wxorca/internal/storage"
	"github.com/wwwzy/wxorca/internal/tools"
)

// storageCmd represents the storage command
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "管理存储和数据库",
	Long:  `提供查看数据库概况、清理会话与审计记录、导入文档语料和查询审计记录的命令。`,
}

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "显示数据库统计概况",
	RunE:  runInfo,
}

// pruneCmd represents the prune command
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "按保留策略立即清理会话与审计记录",
	Long: `忽略定时任务间隔，立即执行一次清理。默认读取配置文件中的 retention 策略，
命令行参数可覆盖单项策略。`,
	RunE: runPrune,
}

var seedDocsCmd = &cobra.Command{
	Use:   "seed-docs",
	Short: "把内置文档语料导入数据库",
	RunE:  runSeedDocs,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "查询工具调用审计记录",
	RunE:  runAudit,
}

var (
	pruneConversationDays int
	pruneAuditDays        int
	pruneAuditKeep        int

	auditTrace   string
	auditSession string
	auditTool    string
	auditStatus  string
	auditLimit   int
)

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(infoCmd, pruneCmd, seedDocsCmd, auditCmd)

	pruneCmd.Flags().IntVar(&pruneConversationDays, "conversation-days", 0, "保留最近 N 天更新过的会话")
	pruneCmd.Flags().IntVar(&pruneAuditDays, "audit-days", 0, "保留最近 N 天的审计记录")
	pruneCmd.Flags().IntVar(&pruneAuditKeep, "audit-keep", 0, "只保留最近的 N 条审计记录")

	auditCmd.Flags().StringVar(&auditTrace, "trace", "", "按链路 ID 过滤")
	auditCmd.Flags().StringVar(&auditSession, "session", "", "按会话过滤")
	auditCmd.Flags().StringVar(&auditTool, "tool", "", "按工具名过滤")
	auditCmd.Flags().StringVar(&auditStatus, "status", "", "按状态过滤: running/success/failed")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "最多返回的记录数")
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	// 1. 获取数据库文件信息
	dbSizeStr := "in-memory"
	if !cfg.Storage.InMemory {
		dbPath := cfg.Storage.Path
		if absPath, err := filepath.Abs(dbPath); err == nil {
			dbPath = absPath
		}
		info, err := os.Stat(dbPath)
		switch {
		case os.IsNotExist(err):
			dbSizeStr = "Not Found (Will be created on first run)"
		case err != nil:
			dbSizeStr = fmt.Sprintf("Error: %v", err)
		default:
			dbSizeStr = fmt.Sprintf("%.2f MB (%s)", float64(info.Size())/1024/1024, dbPath)
		}
	}

	// 2. 连接数据库
	store, err := openStorage(ctx, cfg)
	if err != nil {
		fmt.Fprintf(out, "Database File: %s\n", dbSizeStr)
		return err
	}
	defer store.Close()

	// 3. 获取统计信息
	convCount, err := store.CountConversations(ctx)
	if err != nil {
		return err
	}
	auditCount, err := store.CountAuditRecords(ctx, storage.AuditQuery{})
	if err != nil {
		return err
	}
	docCount, err := store.CountDocs(ctx)
	if err != nil {
		return err
	}

	// 4. 格式化输出
	fmt.Fprintf(out, "Database File: %s\n", dbSizeStr)
	fmt.Fprintf(out, "Conversation Driver: %s\n\n", cfg.Storage.Driver)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Table\tCount")
	fmt.Fprintln(w, "-----\t-----")
	fmt.Fprintf(w, "Conversations\t%d\n", convCount)
	fmt.Fprintf(w, "AuditRecords\t%d\n", auditCount)
	fmt.Fprintf(w, "WxoDocs\t%d\n", docCount)
	return w.Flush()
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	policy := cfg.Retention
	if pruneConversationDays > 0 {
		policy.Conversations.KeepAll = days(pruneConversationDays)
	}
	if pruneAuditDays > 0 {
		policy.Audit.KeepAll = days(pruneAuditDays)
	}
	if pruneAuditKeep > 0 {
		policy.Audit.KeepLatest = pruneAuditKeep
	}

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	collector, err := retention.NewCollector(store, policy)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Policy: Conversations KeepAll=%v, Audit KeepAll=%v KeepLatest=%d\n",
		policy.Conversations.KeepAll, policy.Audit.KeepAll, policy.Audit.KeepLatest)

	rep, err := collector.RunOnce(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}
	fmt.Fprintf(out, "Prune completed. Deleted %d conversations and %d audit records.\n", rep.Conversations, rep.AuditRecords)
	return nil
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func runSeedDocs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	builtin := tools.BuiltinDocs()
	rows := make([]storage.WxoDoc, 0, len(builtin))
	for _, d := range builtin {
		rows = append(rows, storage.WxoDoc{
			Title:     d.Title,
			URL:       d.URL,
			Content:   d.Content,
			Category:  d.Category,
			Relevance: d.Relevance,
		})
	}
	n, err := store.SeedDocs(ctx, rows)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d documents.\n", n)
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.QueryAuditRecords(ctx, storage.AuditQuery{
		TraceID:   auditTrace,
		SessionID: auditSession,
		Action:    auditTool,
		Status:    auditStatus,
		Limit:     auditLimit,
		Desc:      true,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tTime\tTool\tStatus\tDuration\tSession\tTrace")
	for _, r := range records {
		dur := "-"
		if !r.FinishedAt.IsZero() {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Action, r.Status, dur, r.SessionID, r.TraceID)
	}
	return w.Flush()
}
