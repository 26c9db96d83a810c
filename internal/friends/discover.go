package friends

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"kayblog/internal/fetch"
	"kayblog/internal/logx"
	"kayblog/internal/model"
)

// 站点根下的常见订阅路径，按命中率排序
var commonFeedPaths = []string{
	"/atom.xml",
	"/feed",
	"/rss.xml",
	"/index.xml",
	"/feed.xml",
	"/rss",
	"/?feed=rss2",
	"/feed.json",
	"/index.json",
}

// DiscoverFeed 先解析首页 <link rel="alternate">，再依次探测常见路径。
func DiscoverFeed(ctx context.Context, cl *fetch.Client, site string) (string, error) {
	if u, err := feedFromHTML(ctx, cl, site); err == nil && u != "" {
		if sniffFeed(ctx, cl, u) {
			return u, nil
		}
	} else if err != nil {
		logx.Debugf("读取首页失败：%s 错误=%v", site, err)
	}
	for _, p := range commonFeedPaths {
		u := resolve(site, p)
		logx.Debugf("探测候选订阅：%s", u)
		if sniffFeed(ctx, cl, u) {
			return u, nil
		}
	}
	return "", fmt.Errorf("no feed discovered for %s", site)
}

func feedFromHTML(ctx context.Context, cl *fetch.Client, site string) (string, error) {
	resp, err := cl.Get(ctx, site)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("parse html %s: %w", site, err)
	}
	var found string
	doc.Find(`link[rel~="alternate"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := strings.ToLower(s.AttrOr("type", ""))
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return true
		}
		if strings.Contains(t, "rss") || strings.Contains(t, "atom") || strings.Contains(t, "feed+json") {
			found = resolve(site, href)
			return false
		}
		return true
	})
	return found, nil
}

// sniffFeed 读取开头少量字节，按 Content-Type 或内容标记判断是否为订阅。
func sniffFeed(ctx context.Context, cl *fetch.Client, feedURL string) bool {
	pctx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	resp, err := cl.Get(pctx, feedURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	head, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	lb := bytes.ToLower(head)
	switch {
	case strings.Contains(ct, "rss"), strings.Contains(ct, "atom"):
		return true
	case strings.Contains(ct, "json"):
		return bytes.Contains(lb, []byte("jsonfeed.org/version"))
	}
	// text/html 的首页也可能是 xml 声明开头，必须看到订阅根元素
	return bytes.Contains(lb, []byte("<rss")) || bytes.Contains(lb, []byte("<feed")) ||
		bytes.Contains(lb, []byte("<rdf")) || bytes.Contains(lb, []byte("jsonfeed.org/version"))
}

// ParseFeed 抓取并解析订阅，返回最多 limit 条（0 表示不限制）。作者与头像取自友链信息。
func ParseFeed(ctx context.Context, cl *fetch.Client, feedURL string, f model.Friend, limit int) ([]model.FriendPost, error) {
	rctx, cancel := context.WithTimeout(ctx, 25*time.Second)
	defer cancel()
	resp, err := cl.Get(rctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("GET feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()
	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	author := f.Author
	if author == "" {
		author = f.Title
	}
	out := make([]model.FriendPost, 0, len(feed.Items))
	for _, it := range feed.Items {
		link := strings.TrimSpace(it.Link)
		if link == "" {
			continue
		}
		out = append(out, model.FriendPost{
			Title:   strings.TrimSpace(it.Title),
			Link:    resolve(f.URL, link),
			Author:  author,
			Avatar:  f.AvatarURL,
			Created: firstTime(it.PublishedParsed, it.UpdatedParsed),
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func firstTime(ts ...*time.Time) time.Time {
	for _, t := range ts {
		if t != nil {
			return *t
		}
	}
	return time.Time{}
}

// resolve 将 ref 解析为相对 base 的绝对地址。
func resolve(base, ref string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return u.ResolveReference(r).String()
}
