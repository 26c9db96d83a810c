package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"kayblog/internal/config"
	"kayblog/internal/export"
	"kayblog/internal/friends"
	"kayblog/internal/logx"
	"kayblog/internal/model"
	"kayblog/internal/songs"
)

// ErrBuildLocked 表示同一输出目录已有构建在进行。
var ErrBuildLocked = errors.New("another build is running for this output directory")

const lockFile = ".build.lock"

func newBuildCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "组装文章并输出 site.json / sitemap.xml / feed.xml / theme.css",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			if output != "" {
				cfg.OutputDir = output
			}
			_, err = runBuild(cmd.Context(), cfg, cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "输出目录（覆盖 OUTPUT_DIR）")
	return cmd
}

// runBuild 执行一次完整构建。同一输出目录同时只允许一个构建。
func runBuild(ctx context.Context, cfg *config.Config, out io.Writer) (model.Site, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return model.Site{}, fmt.Errorf("create output dir: %w", err)
	}
	lock := flock.New(filepath.Join(cfg.OutputDir, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return model.Site{}, fmt.Errorf("acquire build lock: %w", err)
	}
	if !ok {
		return model.Site{}, ErrBuildLocked
	}
	defer func() { _ = lock.Unlock() }()

	start := time.Now()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return model.Site{}, err
	}
	defer a.Close()

	logx.Infof("开始构建：内容目录=%s 输出目录=%s", cfg.ContentDir, cfg.OutputDir)
	posts := a.assembler.Assemble(ctx)

	list, err := songs.Load(cfg.SongsFile)
	if err != nil {
		logx.Warnf("读取歌单失败，跳过：%v", err)
	}
	fr, err := friends.Load(cfg.FriendsFile)
	if err != nil {
		logx.Warnf("读取友链失败，跳过：%v", err)
	}
	var fp []model.FriendPost
	if cfg.FriendCircle.Enabled && len(fr) > 0 {
		fp = friends.NewCircle(a.client, cfg.Concurrency.Friends, cfg.FriendCircle.MaxPosts).Collect(ctx, fr)
	}

	b := export.Bundle{
		SiteURL:     cfg.SiteURL,
		Title:       cfg.SiteTitle,
		Description: cfg.SiteDesc,
		Author:      cfg.SiteAuthor,
		Posts:       posts,
		Songs:       list,
		Friends:     fr,
		FriendPosts: fp,
		Now:         time.Now(),
	}
	if err := export.Write(cfg.OutputDir, b); err != nil {
		return model.Site{}, err
	}
	site := export.NewSite(b)
	logx.Infof("构建完成：耗时 %s", time.Since(start).Round(time.Millisecond))
	if out != nil {
		fmt.Fprintln(out, summaryTable(site, len(fp)))
	}
	return site, nil
}

func summaryTable(site model.Site, friendPosts int) string {
	music := 0
	for _, p := range site.Posts {
		if p.Music != nil {
			music++
		}
	}
	rows := [][]string{
		{"文章", strconv.Itoa(site.Stats.PostsTotal)},
		{"视频", strconv.Itoa(site.Stats.VideosTotal)},
		{"音乐", strconv.Itoa(music)},
		{"歌曲", strconv.Itoa(site.Stats.SongsTotal)},
		{"朋友", strconv.Itoa(site.Stats.FriendsTotal)},
		{"朋友圈文章", strconv.Itoa(friendPosts)},
	}
	return renderTable([]string{"项目", "数量"}, rows, 1)
}
