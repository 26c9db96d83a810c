// 包 export 负责构建产物输出：site.json、sitemap.xml、feed.xml 与代码高亮主题 theme.css。
// 所有文件先写临时文件再 rename，半截文件不会被静态服务器读到。
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kayblog/internal/logx"
	"kayblog/internal/model"
	"kayblog/internal/render"
)

// 全局文章数上限保护：只导出最新的 maxExportPosts 篇
const maxExportPosts = 500

// Bundle 为一次构建的全部数据。
type Bundle struct {
	SiteURL     string
	Title       string
	Description string
	Author      string
	Posts       []model.Post
	Songs       []model.Song
	Friends     []model.Friend
	FriendPosts []model.FriendPost
	Now         time.Time
}

// NewSite 组装 site.json 的内容并计算统计。
func NewSite(b Bundle) model.Site {
	posts := b.Posts
	if len(posts) > maxExportPosts {
		posts = posts[:maxExportPosts]
	}
	videos := 0
	for _, p := range posts {
		if p.BilibiliVideo != nil {
			videos++
		}
	}
	now := b.Now
	if now.IsZero() {
		now = time.Now()
	}
	return model.Site{
		Stats: model.Stats{
			PostsTotal:   len(posts),
			SongsTotal:   len(b.Songs),
			FriendsTotal: len(b.Friends),
			VideosTotal:  videos,
			UpdatedAt:    now,
		},
		Posts:       nonNil(posts),
		Songs:       nonNil(b.Songs),
		Friends:     nonNil(b.Friends),
		FriendPosts: b.FriendPosts,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Write 把全部产物写入 dir。
func Write(dir string, b Bundle) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if b.Now.IsZero() {
		b.Now = time.Now()
	}
	site := NewSite(b)
	js, err := json.MarshalIndent(site, "", "  ")
	if err != nil {
		return fmt.Errorf("encode site json: %w", err)
	}
	if err := writeFile(filepath.Join(dir, "site.json"), js); err != nil {
		return err
	}
	sm, err := Sitemap(b.SiteURL, site.Posts, b.Now)
	if err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "sitemap.xml"), sm); err != nil {
		return err
	}
	rss, err := Feed(b, site.Posts)
	if err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "feed.xml"), []byte(rss)); err != nil {
		return err
	}
	css, err := render.ThemeCSS()
	if err != nil {
		return fmt.Errorf("theme css: %w", err)
	}
	if err := writeFile(filepath.Join(dir, "theme.css"), []byte(css)); err != nil {
		return err
	}
	logx.Infof("导出完成：%s（文章=%d 歌曲=%d 友链=%d）", dir, site.Stats.PostsTotal, site.Stats.SongsTotal, site.Stats.FriendsTotal)
	return nil
}

func writeFile(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
