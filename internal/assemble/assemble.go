// 包 assemble 负责文章组装主流程：
// 枚举源文件 → 解析 front-matter → 渲染正文 → 通过缓存补充视频/音乐信息 → 按日期倒序。
// 单篇文章的任何失败都只跳过该篇（或丢弃该篇的富化字段），不影响整批。
package assemble

import (
	"context"
	"sort"
	"sync"
	"time"

	"kayblog/internal/content"
	"kayblog/internal/logx"
	"kayblog/internal/model"
)

// DefaultEditTolerance 为判定“已编辑”的时钟偏差容忍度。
const DefaultEditTolerance = 60 * time.Second

type Renderer interface {
	Render(src []byte) (string, error)
}

type VideoSource interface {
	Video(ctx context.Context, bvid string) (*model.VideoMeta, error)
}

type MusicSource interface {
	Music(ctx context.Context, source, keyword string) (*model.MusicMeta, error)
}

type Options struct {
	Concurrency   int
	EditTolerance time.Duration
	// MusicSource 为 front-matter 未指定 music_source 时的默认平台
	MusicSource string
}

// Assembler 持有内容存储、渲染器与富化来源；videos/music 可为 nil（不富化）。
type Assembler struct {
	store  *content.Store
	render Renderer
	videos VideoSource
	music  MusicSource
	opts   Options
}

func New(store *content.Store, r Renderer, videos VideoSource, music MusicSource, opts Options) *Assembler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.EditTolerance <= 0 {
		opts.EditTolerance = DefaultEditTolerance
	}
	if opts.MusicSource == "" {
		opts.MusicSource = "netease"
	}
	return &Assembler{store: store, render: r, videos: videos, music: music, opts: opts}
}

// Assemble 组装全部文章。内容目录不可读时返回空列表。
func (a *Assembler) Assemble(ctx context.Context) []model.Post {
	start := time.Now()
	files, err := a.store.List()
	if err != nil {
		logx.Errorf("读取文章目录失败：%v", err)
		return []model.Post{}
	}
	results := make([]*model.Post, len(files))
	sem := make(chan struct{}, a.opts.Concurrency)
	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, f content.File) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = a.assembleOne(ctx, f)
		}(i, f)
	}
	wg.Wait()

	posts := make([]model.Post, 0, len(files))
	for _, p := range results {
		if p != nil {
			posts = append(posts, *p)
		}
	}
	// results 已按文件顺序排列，稳定排序保证同一日期保持文件顺序
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].Date.After(posts[j].Date) })
	logx.Infof("文章组装完成：%d/%d 篇，耗时 %s", len(posts), len(files), time.Since(start).Round(time.Millisecond))
	return posts
}

func (a *Assembler) assembleOne(ctx context.Context, f content.File) *model.Post {
	doc, err := a.store.Read(f)
	if err != nil {
		logx.Warnf("跳过文章 %s：%v", f.ID, err)
		return nil
	}
	html, err := a.render.Render(doc.Body)
	if err != nil {
		logx.Warnf("跳过文章 %s：%v", f.ID, err)
		return nil
	}
	p := &model.Post{
		ID:      doc.ID,
		Date:    doc.Date,
		Edited:  a.edited(doc),
		Content: html,
	}
	if bvid := doc.Meta.BVID; bvid != "" && a.videos != nil {
		v, err := a.videos.Video(ctx, bvid)
		if err != nil {
			logx.Warnf("文章 %s 的视频 %s 获取失败，忽略：%v", f.ID, bvid, err)
		} else {
			p.BilibiliVideo = v
		}
	}
	if kw := doc.Meta.Music; kw != "" && a.music != nil {
		src := doc.Meta.MusicSource
		if src == "" {
			src = a.opts.MusicSource
		}
		m, err := a.music.Music(ctx, src, kw)
		if err != nil {
			logx.Warnf("文章 %s 的音乐 %s 获取失败，忽略：%v", f.ID, kw, err)
		} else {
			p.Music = m
		}
	}
	return p
}

// edited 优先使用 front-matter 的 edited；否则文件修改时间与发布时间相差超过容忍度时视为已编辑。
func (a *Assembler) edited(doc *content.Document) *time.Time {
	if doc.Edited != nil {
		e := *doc.Edited
		return &e
	}
	if doc.ModTime.IsZero() {
		return nil
	}
	diff := doc.ModTime.Sub(doc.Date)
	if diff < 0 {
		diff = -diff
	}
	if diff <= a.opts.EditTolerance {
		return nil
	}
	m := doc.ModTime
	return &m
}
