package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/life2you_mini/cloengine/internal/config"
	"github.com/life2you_mini/cloengine/internal/logger"
)

var (
	configFile string
	logLevel   string

	cfg *config.Config
	log *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "cloengine",
	Short:         "CLO 现金流瀑布与合规测试引擎",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == configInitCmd.Name() {
			return nil
		}

		var err error
		if _, statErr := os.Stat(configFile); statErr == nil {
			cfg, err = config.LoadConfig(configFile)
			if err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
		} else {
			cfg = config.GetDefaultConfig()
		}

		level := cfg.System.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		log, err = logger.NewLogger(cfg.System.LogDir, level)
		if err != nil {
			return fmt.Errorf("初始化日志失败: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "覆盖日志级别 (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(configInitCmd)
}
