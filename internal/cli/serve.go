package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kayblog/internal/fetch"
	"kayblog/internal/friends"
	"kayblog/internal/logx"
	"kayblog/internal/player"
	"kayblog/internal/proxy"
	"kayblog/internal/server"
	"kayblog/internal/steam"
)

const watchDebounce = 500 * time.Millisecond

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		addr  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务（API、音频中转、播放控制与静态文件）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("watch") {
				cfg.Server.Watch = watch
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(runCtx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			audioClient, err := proxy.NewClient(cfg.Proxy.HTTP, cfg.Proxy.HTTPS)
			if err != nil {
				return err
			}
			steamClient, err := fetch.New(fetch.Options{ProxyHTTPS: cfg.Steam.Proxy, Timeout: cfg.UpstreamTimeout()})
			if err != nil {
				return err
			}

			sink := server.NewRemoteSink()
			pc := player.New(sink, player.NewFileVolumeStore(filepath.Join(cfg.Cache.Dir, "player.json")),
				player.WithListener(sink.Broadcast))
			defer func() {
				if err := pc.Close(); err != nil {
					logx.Warnf("保存音量失败：%v", err)
				}
			}()
			sink.OnEnded(func() {
				if err := pc.HandleEnded(context.Background()); err != nil {
					logx.Debugf("自动切歌失败：%v", err)
				}
			})

			var circle *friends.Circle
			if cfg.FriendCircle.Enabled {
				circle = friends.NewCircle(a.client, cfg.Concurrency.Friends, cfg.FriendCircle.MaxPosts)
			}
			srv := server.New(server.Deps{
				Posts:       a.assembler,
				SongsFile:   cfg.SongsFile,
				FriendsFile: cfg.FriendsFile,
				Circle:      circle,
				Steam:       steam.New(steamClient, cfg.Steam.APIKey, cfg.Steam.SteamID, ""),
				Player:      pc,
				Sink:        sink,
				AudioProxy:  proxy.New(audioClient),
				StaticDir:   cfg.OutputDir,
			})
			srv.Refresh(runCtx)
			go srv.RefreshFriendPosts(runCtx)

			if cfg.Server.Watch {
				paths := []string{cfg.ContentDir, cfg.SongsFile, cfg.FriendsFile}
				go func() {
					err := server.Watch(runCtx, paths, watchDebounce, func() {
						logx.Infof("检测到内容变化，重新组装")
						srv.Refresh(runCtx)
					})
					if err != nil {
						logx.Errorf("文件监听退出：%v", err)
					}
				}()
			}
			return srv.Run(runCtx, cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "监听地址（覆盖 SERVER.addr）")
	cmd.Flags().BoolVar(&watch, "watch", false, "监听内容目录变化并自动重新组装")
	return cmd
}
