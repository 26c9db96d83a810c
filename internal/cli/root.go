// 包 cli 是命令行入口：build 构建静态产物，serve 启动服务，cache/songs 为排查用的查看命令。
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kayblog/internal/config"
	"kayblog/internal/logx"
)

// commandContext 在子命令间共享配置，首次使用时加载。
type commandContext struct {
	configPath string
	cfg        *config.Config
}

func (c *commandContext) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}
	root := &cobra.Command{
		Use:           "kayblog",
		Short:         "博客内容构建与播放服务",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logx.Init(logx.Options{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
				Locale: cfg.LogLocale,
				Color:  cfg.LogColor,
				File:   cfg.LogFile,
				Writer: cmd.ErrOrStderr(),
			})
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "settings.yaml", "配置文件路径")

	root.AddCommand(newBuildCommand(ctx))
	root.AddCommand(newServeCommand(ctx))
	root.AddCommand(newCacheCommand(ctx))
	root.AddCommand(newSongsCommand(ctx))
	return root
}

// Execute 运行命令行，失败时以非零状态退出。
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
