// Command luminagentd 运行 Lumin 任务助手的 API 服务。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"Lumin-Agent/internal/config"
	"Lumin-Agent/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "luminagentd",
	Short:         "Lumin task assistant daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径，默认读取 LUMIN_CONFIG 或 configs/luminagent.yaml")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "luminagentd 运行失败: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig 加载配置并初始化全局日志。
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("LUMIN_CONFIG")
	}
	if path == "" {
		path = filepath.Join("configs", "luminagent.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
			Compress:   cfg.Logging.Audit.Compress,
		},
	}); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}
