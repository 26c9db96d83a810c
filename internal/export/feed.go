package export

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gorilla/feeds"

	"kayblog/internal/model"
)

// 订阅中最多包含的文章数
const feedItems = 20

// Feed 生成 RSS 2.0。文章没有标题，取正文纯文本开头作为标题。
func Feed(b Bundle, posts []model.Post) (string, error) {
	title := b.Title
	if title == "" {
		title = "14K | Life & Music"
	}
	f := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: b.SiteURL},
		Description: b.Description,
		Author:      &feeds.Author{Name: b.Author},
		Created:     b.Now,
	}
	if len(posts) > 0 {
		f.Updated = posts[0].LastModified()
	}
	for i, p := range posts {
		if i >= feedItems {
			break
		}
		link := PostURL(b.SiteURL, p.ID)
		item := &feeds.Item{
			Id:          link,
			Title:       Summary(p.Content, 40),
			Link:        &feeds.Link{Href: link},
			Description: Summary(p.Content, 140),
			Content:     p.Content,
			Created:     p.Date,
		}
		if p.Edited != nil {
			item.Updated = *p.Edited
		}
		if p.BilibiliVideo != nil {
			item.Enclosure = &feeds.Enclosure{Url: p.BilibiliVideo.ThumbnailURL, Type: "image/jpeg", Length: "0"}
		}
		f.Items = append(f.Items, item)
	}
	rss, err := f.ToRss()
	if err != nil {
		return "", fmt.Errorf("encode rss: %w", err)
	}
	return rss, nil
}

// Summary 提取 HTML 的纯文本并截断到 n 个字符。
func Summary(html string, n int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	r := []rune(text)
	return string(r[:n]) + "…"
}
