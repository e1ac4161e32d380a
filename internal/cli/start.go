package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wwwzy/wxorca/internal/background"
	"github.com/wwwzy/wxorca/internal/metrics"
	"github.com/wwwzy/wxorca/internal/retention"
)

var startMetricsAddr string

// startCmd 代表 start 命令
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "启动 WXOrca 后台维护服务",
	Long: `在前台运行后台维护任务，直到收到退出信号：
按 retention 策略周期清理会话与审计记录，并按需暴露 /metrics 端点。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 上下文用于优雅退出
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// 2. 初始化存储
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "正在初始化存储...")
		db, err := openStorage(ctx, cfg)
		if err != nil {
			return err
		}
		a := &app{db: db, metrics: metrics.NewCollector(metrics.DefaultNamespace)}
		defer a.Close()

		addr := cfg.Metrics.Addr
		if startMetricsAddr != "" {
			addr = startMetricsAddr
		}

		// 3. 初始化后台任务，start 总是执行清理
		mgr, err := newBackgroundManager(a, addr, true)
		if err != nil {
			return err
		}

		// 4. 启动
		fmt.Fprintf(out, "正在启动后台任务: %s\n", strings.Join(mgr.Tasks(), ", "))
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("启动后台任务失败: %w", err)
		}

		// 5. 等待信号
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		fmt.Fprintln(out, "WXOrca 已启动。按 Ctrl+C 停止。")

		select {
		case sig := <-sigChan:
			fmt.Fprintf(out, "收到信号: %s, 正在关闭...\n", sig)
		case <-ctx.Done():
		}

		// 6. 优雅停止
		mgr.Stop()
		if err := mgr.Wait(); err != nil {
			return fmt.Errorf("后台任务停止时发生错误: %w", err)
		}
		fmt.Fprintln(out, "关闭完成。")
		return nil
	},
}

// newBackgroundManager 组装 /metrics 与数据清理任务
func newBackgroundManager(a *app, metricsAddr string, withRetention bool) (*background.Manager, error) {
	mgr := background.NewManager().WithMetrics(a.metrics, metricsAddr)
	if !withRetention {
		return mgr, nil
	}
	collector, err := retention.NewCollector(a.db, cfg.Retention)
	if err != nil {
		return nil, err
	}
	return mgr.WithRetention(collector), nil
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringVar(&startMetricsAddr, "metrics-addr", "", "暴露 /metrics 的地址，覆盖 metrics.addr")
}
