package cli

import (
	"context"
	"fmt"

	"kayblog/internal/assemble"
	"kayblog/internal/cache"
	"kayblog/internal/config"
	"kayblog/internal/content"
	"kayblog/internal/enrich"
	"kayblog/internal/fetch"
	"kayblog/internal/logx"
	"kayblog/internal/render"
)

// app 为 build 与 serve 共用的组件。
type app struct {
	cfg       *config.Config
	client    *fetch.Client
	assembler *assemble.Assembler
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	cl, err := fetch.New(fetch.Options{
		ProxyHTTP:  cfg.Proxy.HTTP,
		ProxyHTTPS: cfg.Proxy.HTTPS,
		Timeout:    cfg.UpstreamTimeout(),
		Retry:      0, // 富化请求只尝试一次
		UserAgent:  cfg.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}
	a := &app{cfg: cfg, client: cl}

	videoCache, closeVideo, err := cache.Open(ctx, cfg.Cache, cache.NamespaceVideo)
	if err != nil {
		return nil, fmt.Errorf("open video cache: %w", err)
	}
	a.closers = append(a.closers, closeVideo)
	musicCache, closeMusic, err := cache.Open(ctx, cfg.Cache, cache.NamespaceMusic)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open music cache: %w", err)
	}
	a.closers = append(a.closers, closeMusic)
	logx.Debugf("缓存后端：%s", cfg.Cache.Type)

	a.assembler = assemble.New(
		content.NewStore(cfg.ContentDir, cfg.Location()),
		render.New(render.Options{SiteURL: cfg.SiteURL}),
		enrich.NewVideos(cl, videoCache, cfg.Upstream.BilibiliAPI),
		enrich.NewMusic(cl, musicCache, cfg.Upstream.MusicAPI),
		assemble.Options{Concurrency: cfg.Concurrency.Render},
	)
	return a, nil
}

func (a *app) Close() {
	for _, fn := range a.closers {
		if err := fn(); err != nil {
			logx.Warnf("关闭缓存失败：%v", err)
		}
	}
	a.closers = nil
}
