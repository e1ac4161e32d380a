package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wwwzy/wxorca/internal/config"
	"github.com/wwwzy/wxorca/internal/logger"
)

var (
	cfgFile   string
	verbose   bool
	cfg       *config.Config
	logCloser io.Closer
)

// rootCmd 是没有子命令时调用的基础命令
var rootCmd = &cobra.Command{
	Use:   "wxorca",
	Short: "WXOrca 是 watsonx Orchestrate 的多智能体问答助手",
	Long: `WXOrca 提供管理员配置、使用指导、故障排查、最佳实践与文档导航五类助手，
每类助手按固定流程分析问题、检索文档并生成回答。`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

// Execute 将所有子命令添加到根命令并适当设置标志。
// 这由 main.main() 调用。它只需要对 rootCmd 调用一次。
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件（默认按 ./config.yaml、$HOME/.wxorca/config.yaml 搜索）")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "输出 debug 日志")
}

// initConfig 读取配置文件和环境变量（如果已设置），并初始化全局日志。
func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	logCloser, err = logger.Setup(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logger: %v\n", err)
		os.Exit(1)
	}
}
