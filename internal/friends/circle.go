package friends

import (
	"context"
	"sort"
	"sync"

	"kayblog/internal/fetch"
	"kayblog/internal/logx"
	"kayblog/internal/model"
)

// Circle 并发抓取朋友们的最新文章。单个朋友失败只记录日志。
type Circle struct {
	client      *fetch.Client
	concurrency int
	maxPosts    int
}

func NewCircle(client *fetch.Client, concurrency, maxPosts int) *Circle {
	return &Circle{client: client, concurrency: max(1, concurrency), maxPosts: maxPosts}
}

// Collect 返回按发布时间倒序的文章，同一链接只保留一条。
func (c *Circle) Collect(ctx context.Context, list []model.Friend) []model.FriendPost {
	buf := newCollector()
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	for _, f := range list {
		wg.Add(1)
		sem <- struct{}{}
		go func(f model.Friend) {
			defer wg.Done()
			defer func() { <-sem }()
			c.collectOne(ctx, f, buf)
		}(f)
	}
	wg.Wait()
	return buf.snapshot()
}

func (c *Circle) collectOne(ctx context.Context, f model.Friend, buf *collector) {
	feedURL, err := DiscoverFeed(ctx, c.client, f.URL)
	if err != nil {
		logx.Warnf("[%s] 发现订阅失败：%v", f.Title, err)
		return
	}
	posts, err := ParseFeed(ctx, c.client, feedURL, f, c.maxPosts)
	if err != nil {
		logx.Warnf("[%s] 解析订阅失败：%v", f.Title, err)
		return
	}
	logx.Infof("[%s] 文章解析完成：%d", f.Title, len(posts))
	buf.add(posts)
}

// collector 以链接为键收集并发结果。
type collector struct {
	mu    sync.Mutex
	posts map[string]model.FriendPost
}

func newCollector() *collector {
	return &collector{posts: make(map[string]model.FriendPost)}
}

func (b *collector) add(list []model.FriendPost) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range list {
		if _, ok := b.posts[p.Link]; !ok {
			b.posts[p.Link] = p
		}
	}
}

func (b *collector) snapshot() []model.FriendPost {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.FriendPost, 0, len(b.posts))
	for _, p := range b.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.After(out[j].Created)
		}
		return out[i].Link < out[j].Link
	})
	return out
}
